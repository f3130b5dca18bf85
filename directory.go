package bollywood

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// WellKnownDirectory is the address the directory actor is spawned at
// by System.Start (spec.md §6).
const WellKnownDirectory = "system.discovery"

// Directory message types (§4.6).
const (
	MsgRegister    = "REGISTER"
	MsgUnregister  = "UNREGISTER"
	MsgLookup      = "LOOKUP"
	MsgList        = "LIST"
	MsgHealthCheck = "HEALTH_CHECK"
)

// RegisterPayload registers name -> addr. Ephemeral marks a per-
// activation PID rather than a long-lived well-known name.
type RegisterPayload struct {
	Name      string
	Address   Address
	Ephemeral bool
}

// UnregisterPayload removes a registration by name.
type UnregisterPayload struct {
	Name      string
	Ephemeral bool
}

// LookupPayload asks for the address bound to Name.
type LookupPayload struct {
	Name string
}

// ListPayload asks for every registered name matching Pattern ("*"
// wildcards, same algebra as the broker).
type ListPayload struct {
	Pattern         string
	IncludeEphemeral bool
}

// NameEntry is one directory record.
type NameEntry struct {
	Name     string
	Address  Address
	LastSeen time.Time
}

type nameTable struct {
	mu      sync.RWMutex
	entries map[string]NameEntry
}

func newNameTable() *nameTable { return &nameTable{entries: make(map[string]NameEntry)} }

// register implements I5 (idempotent re-registration, same address
// only updates LastSeen) and the Open Question resolution for
// ephemeral names: re-registering an ephemeral name under a different
// address is rejected, not refreshed (documented in DESIGN.md).
func (t *nameTable) register(name string, addr Address, rejectOnConflict bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	existing, ok := t.entries[name]
	if ok && !existing.Address.Equal(addr) {
		if rejectOnConflict {
			return ErrNameConflict
		}
	}
	t.entries[name] = NameEntry{Name: name, Address: addr, LastSeen: time.Now()}
	return nil
}

func (t *nameTable) unregister(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, name)
}

func (t *nameTable) lookup(name string) (NameEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[name]
	return e, ok
}

func (t *nameTable) list(pattern string) []NameEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []NameEntry
	for name, e := range t.entries {
		if pattern == "" || pattern == "*" || matchesNamePattern(pattern, name) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// matchesNamePattern reuses the broker's "." segment algebra for
// directory name patterns, since both are dotted hierarchical
// namespaces.
func matchesNamePattern(pattern, name string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == name
	}
	return matchesPattern(pattern, name)
}

// directoryBehavior implements the name directory actor of spec.md
// §4.6: well-known names searched before ephemeral pids on LOOKUP.
type directoryBehavior struct {
	wellKnown *nameTable
	ephemeral *nameTable
}

// NewDirectoryBehavior constructs the directory's Behavior, spawned by
// System.Start at WellKnownDirectory.
func NewDirectoryBehavior() Behavior {
	return &directoryBehavior{wellKnown: newNameTable(), ephemeral: newNameTable()}
}

func (d *directoryBehavior) OnStart(self *PID) (any, error) { return nil, nil }
func (d *directoryBehavior) OnStop(any) error                 { return nil }

func (d *directoryBehavior) OnMessage(mc MessageContext) (Plan, error) {
	switch mc.Message.Type {
	case MsgRegister:
		p := mc.Message.Payload.(RegisterPayload)
		table := d.wellKnown
		rejectOnConflict := false
		if p.Ephemeral {
			table = d.ephemeral
			rejectOnConflict = true
		}
		if err := table.register(p.Name, p.Address, rejectOnConflict); err != nil {
			return mc.Reply(err.Error(), "REGISTER_ERROR"), nil
		}
		return Nothing(), nil

	case MsgUnregister:
		p := mc.Message.Payload.(UnregisterPayload)
		if p.Ephemeral {
			d.ephemeral.unregister(p.Name)
		} else {
			d.wellKnown.unregister(p.Name)
		}
		return Nothing(), nil

	case MsgLookup:
		p := mc.Message.Payload.(LookupPayload)
		if e, ok := d.wellKnown.lookup(p.Name); ok {
			return mc.Reply(e, "LOOKUP_RESULT"), nil
		}
		if e, ok := d.ephemeral.lookup(p.Name); ok {
			return mc.Reply(e, "LOOKUP_RESULT"), nil
		}
		return mc.Reply(nil, "LOOKUP_RESULT"), nil

	case MsgList:
		p := mc.Message.Payload.(ListPayload)
		entries := d.wellKnown.list(p.Pattern)
		if p.IncludeEphemeral {
			entries = append(entries, d.ephemeral.list(p.Pattern)...)
			sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		}
		return mc.Reply(entries, "LIST_RESULT"), nil

	case MsgHealthCheck:
		return mc.Reply("ok", "HEALTH_OK"), nil

	default:
		return Nothing(), nil
	}
}
