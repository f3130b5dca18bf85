package bollywood

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// Address is a logical path to an actor, optionally qualified with a
// node identity for cross-node addressing. Two addresses are equal
// iff their fully qualified paths match (spec.md §3).
type Address struct {
	Path string
	Node string
}

// NewAddress builds a local address from a dotted path such as
// "system.discovery".
func NewAddress(path string) Address {
	return Address{Path: path}
}

// NewRemoteAddress builds an address qualified with a node identity.
func NewRemoteAddress(path, node string) Address {
	return Address{Path: path, Node: node}
}

// String returns the fully qualified path, "<node>/<path>" when a node
// is set, or just "<path>" for local addresses.
func (a Address) String() string {
	if a.Node == "" {
		return a.Path
	}
	return a.Node + "/" + a.Path
}

// Equal reports whether two addresses name the same fully qualified
// path.
func (a Address) Equal(other Address) bool {
	return a.String() == other.String()
}

// IsEmpty reports whether the address has no path.
func (a Address) IsEmpty() bool {
	return a.Path == ""
}

// Segments splits the address path on "." for pattern matching.
func (a Address) Segments() []string {
	if a.Path == "" {
		return nil
	}
	return strings.Split(a.Path, ".")
}

// PID (process id) is the opaque, stable reference to one spawned
// actor instance within a System. It is generated with a monotonic
// counter plus a random suffix so ids remain unique across process
// restarts, per spec.md §3.
type PID struct {
	ID        string
	Ephemeral bool
}

// String returns the PID's string form.
func (p *PID) String() string {
	if p == nil {
		return "<nil>"
	}
	return p.ID
}

// Equal reports whether two PIDs refer to the same actor instance.
func (p *PID) Equal(other *PID) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.ID == other.ID
}

var pidCounter uint64

// newPID generates a unique PID of the form "actor-<counter>-<suffix>".
// The random suffix comes from google/uuid, matching the identifier
// scheme used across the retrieval corpus (Roasbeef-substrate,
// nugget-thane-ai-agent) for opaque, collision-free ids.
func newPID(ephemeral bool) *PID {
	n := atomic.AddUint64(&pidCounter, 1)
	suffix := uuid.New().String()[:8]
	return &PID{
		ID:        fmt.Sprintf("actor-%d-%s", n, suffix),
		Ephemeral: ephemeral,
	}
}
