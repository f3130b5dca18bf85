package bollywood

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// correlationState is the one-way state machine a correlation record
// moves through (I3): pending is the only state from which a
// transition is possible, and each record reaches exactly one of
// resolved/errored/timedOut, unless ClearAll or ClearForActor removes
// it first and rejects it with a *CancellationError.
type correlationState int

const (
	correlationPending correlationState = iota
	correlationResolved
	correlationErrored
	correlationTimedOut
	correlationCancelled
)

// correlationRecord is the bookkeeping entry for one outstanding ask
// (spec.md §3).
type correlationRecord struct {
	id          string
	issuer      *PID
	createdAt   time.Time
	deadline    time.Time
	resultCh    chan correlationResult
	timer       *time.Timer
	state       correlationState
	attempt     int
	maxAttempts int
	retryDelay  time.Duration
}

type correlationResult struct {
	msg Message
	err error
}

// CorrelationManager generates correlation ids and tracks pending asks
// until they resolve, error, or time out (§4.3). It is a
// single-writer owner guarded by a mutex; nothing outside this file
// mutates correlationRecord state.
type CorrelationManager struct {
	mu      sync.Mutex
	counter uint64
	pending map[string]*correlationRecord

	unmatched atomic.Uint64 // responses for unknown ids, counted not fatal
}

// NewCorrelationManager constructs an empty manager.
func NewCorrelationManager() *CorrelationManager {
	return &CorrelationManager{pending: make(map[string]*correlationRecord)}
}

// NewID returns a fresh, process-unique correlation id formatted
// "corr-<timestamp>-<counter>" (spec.md §4.3).
func (m *CorrelationManager) NewID() string {
	n := atomic.AddUint64(&m.counter, 1)
	return fmt.Sprintf("corr-%d-%d", time.Now().UnixNano(), n)
}

// Register creates a pending record for id with the given deadline and
// returns a channel the eventual result will be sent on exactly once.
// Re-registering an id already pending fails fast with
// ErrDuplicateCorrelationID. issuer identifies the actor that issued
// the ask, if any (nil for asks issued from outside an actor, e.g.
// directly against System), and scopes later cancellation via
// ClearForActor.
func (m *CorrelationManager) Register(id string, timeout time.Duration, issuer *PID) (<-chan correlationResult, error) {
	m.mu.Lock()
	if _, exists := m.pending[id]; exists {
		m.mu.Unlock()
		return nil, ErrDuplicateCorrelationID
	}

	rec := &correlationRecord{
		id:        id,
		issuer:    issuer,
		createdAt: time.Now(),
		deadline:  time.Now().Add(timeout),
		resultCh:  make(chan correlationResult, 1),
		state:     correlationPending,
	}
	m.pending[id] = rec
	m.mu.Unlock()

	rec.timer = time.AfterFunc(timeout, func() {
		m.Timeout(id, timeout)
	})

	return rec.resultCh, nil
}

// take removes and returns the record for id if it is still pending,
// transitioning it to newState. Returns nil if id is unknown or
// already resolved (enforcing I3's "at most once").
func (m *CorrelationManager) take(id string, newState correlationState) *correlationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.pending[id]
	if !ok || rec.state != correlationPending {
		return nil
	}
	rec.state = newState
	delete(m.pending, id)
	return rec
}

// Resolve delivers resp to the pending ask id, if still pending.
func (m *CorrelationManager) Resolve(id string, resp Message) {
	rec := m.take(id, correlationResolved)
	if rec == nil {
		m.unmatched.Add(1)
		return
	}
	if rec.timer != nil {
		rec.timer.Stop()
	}
	rec.resultCh <- correlationResult{msg: resp}
}

// Fail delivers err to the pending ask id, if still pending.
func (m *CorrelationManager) Fail(id string, err error) {
	rec := m.take(id, correlationErrored)
	if rec == nil {
		m.unmatched.Add(1)
		return
	}
	if rec.timer != nil {
		rec.timer.Stop()
	}
	rec.resultCh <- correlationResult{err: err}
}

// Timeout evicts the pending ask id with a *TimeoutError carrying the
// configured timeout (spec.md scenario S2).
func (m *CorrelationManager) Timeout(id string, timeout time.Duration) {
	rec := m.take(id, correlationTimedOut)
	if rec == nil {
		return
	}
	rec.resultCh <- correlationResult{err: &TimeoutError{CorrelationID: id, Timeout: timeout}}
}

// ClearAll rejects every currently pending ask with a cancellation
// reason, used on system shutdown (a single actor's stop or restart
// uses ClearForActor).
func (m *CorrelationManager) ClearAll(reason string) {
	m.mu.Lock()
	pending := m.pending
	m.pending = make(map[string]*correlationRecord)
	m.mu.Unlock()

	for id, rec := range pending {
		if rec.timer != nil {
			rec.timer.Stop()
		}
		rec.resultCh <- correlationResult{err: &CancellationError{CorrelationID: id, Reason: reason}}
	}
}

// ClearForActor rejects every pending ask issued by pid with a
// cancellation reason, leaving every other actor's in-flight asks
// untouched. Used when a single actor stops, whether from a normal
// shutdown or a supervisor-driven restart (spec.md §4.3: stopping an
// actor cancels its own pending asks, not the whole system's).
func (m *CorrelationManager) ClearForActor(pid *PID, reason string) {
	if pid == nil {
		return
	}

	m.mu.Lock()
	var matched []*correlationRecord
	for id, rec := range m.pending {
		if rec.issuer != nil && rec.issuer.ID == pid.ID {
			matched = append(matched, rec)
			delete(m.pending, id)
		}
	}
	m.mu.Unlock()

	for _, rec := range matched {
		if rec.timer != nil {
			rec.timer.Stop()
		}
		rec.resultCh <- correlationResult{err: &CancellationError{CorrelationID: rec.id, Reason: reason}}
	}
}

// isPending reports whether id currently names an outstanding ask.
func (m *CorrelationManager) isPending(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.pending[id]
	return ok && rec.state == correlationPending
}

// PendingCount returns the number of asks currently awaiting a
// response.
func (m *CorrelationManager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// UnmatchedCount returns the number of resolve/fail calls observed for
// ids the manager did not recognize (dropped, not fatal).
func (m *CorrelationManager) UnmatchedCount() uint64 {
	return m.unmatched.Load()
}
