package bollywood

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

// InterceptorStats counts outcomes across every phase, for
// introspection and tests.
type InterceptorStats struct {
	Processed  atomic.Uint64
	Filtered   atomic.Uint64
	Errored    atomic.Uint64
	Recovered  atomic.Uint64
}

// BeforeReceiveFunc runs before a handler sees a message. Returning a
// nil *Message filters the message (counted, delivery prevented).
type BeforeReceiveFunc func(self *PID, msg Message) (*Message, error)

// AfterProcessFunc runs after a handler returns, observing the plan it
// produced.
type AfterProcessFunc func(self *PID, msg Message, plan Plan)

// OnErrorFunc runs when a handler (or an earlier phase) fails. It may
// return a replacement Plan to substitute for the failed handler's
// result (used by the retry interceptor to re-schedule delivery).
type OnErrorFunc func(self *PID, msg Message, cause error) (Plan, bool)

// Interceptor is one registered pipeline stage. Priority controls
// ordering: higher runs first on the before-phases, reverse order on
// the after-phases. Filter, if set, limits which messages the
// interceptor applies to.
type Interceptor struct {
	ID       string
	Priority int
	Scope    string
	Enabled  bool
	Filter   func(Message) bool

	BeforeReceive BeforeReceiveFunc
	AfterProcess  AfterProcessFunc
	OnError       OnErrorFunc
}

func (ic *Interceptor) applies(msg Message) bool {
	if !ic.Enabled {
		return false
	}
	if ic.Filter == nil {
		return true
	}
	return ic.Filter(msg)
}

// Chain is the pre-composed before/after/on-error pipeline (§4.8). It
// recomputes its composed closures only when registration changes
// (every change clears the cached composition, and the next message
// rebuilds it once), so steady-state dispatch
// pays no per-message interceptor-walking cost beyond the composed
// call itself.
type Chain struct {
	mu          sync.RWMutex
	interceptors []*Interceptor
	log         *slog.Logger
	Stats       InterceptorStats

	version  uint64
	composed *composedChain
}

type composedChain struct {
	before []*Interceptor // priority descending
	after  []*Interceptor // priority ascending (reverse)
	onErr  []*Interceptor // priority descending
}

// NewChain builds an empty interceptor chain.
func NewChain(log *slog.Logger) *Chain {
	if log == nil {
		log = slog.Default()
	}
	return &Chain{log: log}
}

// Register adds ic to the chain and returns its id (assigning one if
// empty). Registration invalidates the pre-composed pipeline so the
// next message recomputes it once.
func (c *Chain) Register(ic *Interceptor) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ic.ID == "" {
		ic.ID = nextInterceptorID(ic.Scope)
	}
	ic.Enabled = true
	c.interceptors = append(c.interceptors, ic)
	c.composed = nil
	return ic.ID
}

// nextInterceptorID assigns a counter-based name to an interceptor
// registered without an explicit id.
func nextInterceptorID(scope string) string {
	idGenMu.Lock()
	defer idGenMu.Unlock()
	idGenCounter++
	if scope == "" {
		scope = "interceptor"
	}
	return scope + "-" + itoa(idGenCounter)
}

var (
	idGenMu      sync.Mutex
	idGenCounter uint64
)

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// SetEnabled toggles an interceptor by id without removing it, so it
// can be re-enabled later with its statistics intact.
func (c *Chain) SetEnabled(id string, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ic := range c.interceptors {
		if ic.ID == id {
			ic.Enabled = enabled
		}
	}
	c.composed = nil
}

// Remove drops an interceptor from the chain entirely.
func (c *Chain) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.interceptors[:0]
	for _, ic := range c.interceptors {
		if ic.ID != id {
			out = append(out, ic)
		}
	}
	c.interceptors = out
	c.composed = nil
}

func (c *Chain) ensureComposed() *composedChain {
	c.mu.RLock()
	if c.composed != nil {
		cc := c.composed
		c.mu.RUnlock()
		return cc
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.composed != nil {
		return c.composed
	}

	cc := &composedChain{}
	for _, ic := range c.interceptors {
		if ic.BeforeReceive != nil {
			cc.before = append(cc.before, ic)
		}
		if ic.AfterProcess != nil {
			cc.after = append(cc.after, ic)
		}
		if ic.OnError != nil {
			cc.onErr = append(cc.onErr, ic)
		}
	}
	sort.SliceStable(cc.before, func(i, j int) bool { return cc.before[i].Priority > cc.before[j].Priority })
	sort.SliceStable(cc.onErr, func(i, j int) bool { return cc.onErr[i].Priority > cc.onErr[j].Priority })
	sort.SliceStable(cc.after, func(i, j int) bool { return cc.after[i].Priority < cc.after[j].Priority })

	c.composed = cc
	return cc
}

// RunBeforeReceive threads msg through every applicable beforeReceive
// interceptor in priority order. A (nil, nil) result means the
// message was filtered (dropped silently, e.g. FilterOnFail
// validation); a non-nil error means the interceptor demands hard
// failure, which the caller routes through the same error pipeline as
// a handler panic or error return.
func (c *Chain) RunBeforeReceive(self *PID, msg Message) (*Message, error) {
	cc := c.ensureComposed()
	current := msg
	for _, ic := range cc.before {
		if !ic.applies(current) {
			continue
		}
		next, err := safeBeforeReceive(ic, self, current)
		if err != nil {
			c.Stats.Errored.Add(1)
			return nil, err
		}
		if next == nil {
			c.Stats.Filtered.Add(1)
			return nil, nil
		}
		current = *next
	}
	c.Stats.Processed.Add(1)
	return &current, nil
}

func safeBeforeReceive(ic *Interceptor, self *PID, msg Message) (m *Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicToError(r)
		}
	}()
	return ic.BeforeReceive(self, msg)
}

// RunAfterProcess threads the processed message and its plan through
// every applicable afterProcess interceptor, reverse-priority order.
func (c *Chain) RunAfterProcess(self *PID, msg Message, plan Plan) {
	cc := c.ensureComposed()
	for _, ic := range cc.after {
		if !ic.applies(msg) {
			continue
		}
		runAfterSafely(ic, self, msg, plan, c.log)
	}
}

func runAfterSafely(ic *Interceptor, self *PID, msg Message, plan Plan, log *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn("afterProcess interceptor panicked", slog.String("interceptor", ic.ID), slog.Any("panic", r))
		}
	}()
	ic.AfterProcess(self, msg, plan)
}

// RunOnError threads a handler failure through every applicable
// onError interceptor until one returns a replacement plan.
func (c *Chain) RunOnError(self *PID, msg Message, cause error) (Plan, bool) {
	cc := c.ensureComposed()
	for _, ic := range cc.onErr {
		if !ic.applies(msg) {
			continue
		}
		plan, handled := ic.OnError(self, msg, cause)
		if handled {
			return plan, true
		}
	}
	return nil, false
}

func panicToError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errPanic{r}
}

type errPanic struct{ v any }

func (e errPanic) Error() string { return "bollywood: interceptor panic: " + toString(e.v) }

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return "unknown panic"
}
