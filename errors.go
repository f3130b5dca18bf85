package bollywood

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the error kinds enumerated in the runtime's
// design notes. Callers should prefer errors.Is/errors.As over string
// comparison.
var (
	// ErrStopped is returned by send/ask when the target actor has
	// already stopped or is stopping.
	ErrStopped = errors.New("bollywood: actor stopped")

	// ErrMailboxFull is returned by send/ask when the mailbox overflow
	// policy is RejectSend and the mailbox is at capacity.
	ErrMailboxFull = errors.New("bollywood: mailbox full")

	// ErrInvalidPlan is returned when a handler's returned plan
	// violates a message-plan invariant (non-serializable payload,
	// malformed instruction).
	ErrInvalidPlan = errors.New("bollywood: invalid message plan")

	// ErrDuplicateCorrelationID is returned by the correlation manager
	// when registering an id that is already pending.
	ErrDuplicateCorrelationID = errors.New("bollywood: correlation id already pending")

	// ErrUnmatchedCorrelationID names the case of a resolve/fail for an
	// id the correlation manager does not recognize. The manager does
	// not return it; such calls are only counted (UnmatchedCount).
	ErrUnmatchedCorrelationID = errors.New("bollywood: unknown correlation id")

	// ErrDuplicateActorID is returned by spawn when an explicit actor
	// id collides with a running instance.
	ErrDuplicateActorID = errors.New("bollywood: duplicate actor id")

	// ErrNotFound is returned by lookups that find nothing.
	ErrNotFound = errors.New("bollywood: not found")

	// ErrSystemNotRunning is returned by operations attempted before
	// System.Start or after System.Stop.
	ErrSystemNotRunning = errors.New("bollywood: system not running")

	// ErrNameConflict is returned when registering an ephemeral pid
	// under an ephemeral name already bound to a different address.
	// Well-known names are a separate table and are not checked. See
	// SPEC_FULL.md §4.6.
	ErrNameConflict = errors.New("bollywood: name already registered to a different address")

	// ErrNotSerializable is returned when a message payload fails the
	// JSON-serializability predicate (invariant I7).
	ErrNotSerializable = errors.New("bollywood: payload not JSON-serializable")
)

// TimeoutError is returned by Ask when a correlated request exceeds
// its deadline. Its Error() text always includes the configured
// timeout in milliseconds so callers and tests can match on it
// (spec.md scenario S2 asserts the text contains "50ms").
type TimeoutError struct {
	CorrelationID string
	Timeout       time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("bollywood: ask %s timed out after %dms", e.CorrelationID, e.Timeout.Milliseconds())
}

// CancellationError is returned to a pending ask cancelled by the
// correlation manager's ClearAll (system shutdown) or ClearForActor
// (the issuing actor stopped or restarted).
type CancellationError struct {
	CorrelationID string
	Reason        string
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("bollywood: ask %s cancelled: %s", e.CorrelationID, e.Reason)
}

// IsTimeout reports whether err is (or wraps) a *TimeoutError.
func IsTimeout(err error) bool {
	var t *TimeoutError
	return errors.As(err, &t)
}

// IsCancellation reports whether err is (or wraps) a *CancellationError.
func IsCancellation(err error) bool {
	var c *CancellationError
	return errors.As(err, &c)
}
