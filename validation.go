package bollywood

import (
	"fmt"
	"sync"
)

// ValidationMode controls what the validation interceptor does when a
// message fails its validator (§4.8).
type ValidationMode int

const (
	// FilterOnFail silently drops the message (counted as Filtered).
	FilterOnFail ValidationMode = iota
	// ErrorOnFail routes the message to the normal error pipeline
	// instead, so OnError interceptors (e.g. retry) can act on it.
	ErrorOnFail
)

// ValidatorFunc inspects a message's payload and returns an error
// describing why it is invalid, or nil if it passes.
type ValidatorFunc func(msg Message) error

// ValidationError wraps a validator's complaint with the message type
// it was raised against.
type ValidationError struct {
	MessageType string
	Cause       error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("bollywood: message %q failed validation: %v", e.MessageType, e.Cause)
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// ValidationPolicy configures the validation interceptor.
type ValidationPolicy struct {
	Mode ValidationMode
	// ByType validates messages of a specific type; Global runs against
	// every message in addition to any type-specific validator.
	ByType map[string]ValidatorFunc
	Global ValidatorFunc
}

// generation-keyed result cache: validating a message with the same
// correlation id twice (e.g. a retried ask) reuses the verdict
// instead of re-running possibly expensive validators. Keyed by
// correlation id alone; messages without one are not cached. Never
// keyed by message pointer identity (messages are plain values and
// are copied freely by the runtime).
type validationCache struct {
	mu     sync.Mutex
	verdict map[string]error
	gen     int
}

func newValidationCache() *validationCache {
	return &validationCache{verdict: make(map[string]error)}
}

func (c *validationCache) lookup(key string) (error, bool) {
	if key == "" {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	err, ok := c.verdict[key]
	return err, ok
}

func (c *validationCache) store(key string, err error) {
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	// Bound the cache: a simple generation counter empties it after
	// 100000 stores, so it cannot grow unbounded across a long-running
	// system's lifetime.
	c.gen++
	if c.gen > 100000 {
		c.verdict = make(map[string]error)
		c.gen = 0
	}
	c.verdict[key] = err
}

// NewValidationInterceptor builds a BeforeReceive-phase interceptor
// that runs policy's validators against each message, filtering or
// erroring per policy.Mode (§4.8).
func NewValidationInterceptor(policy ValidationPolicy) *Interceptor {
	cache := newValidationCache()

	validate := func(msg Message) error {
		if v, ok := policy.ByType[msg.Type]; ok {
			if err := v(msg); err != nil {
				return &ValidationError{MessageType: msg.Type, Cause: err}
			}
		}
		if policy.Global != nil {
			if err := policy.Global(msg); err != nil {
				return &ValidationError{MessageType: msg.Type, Cause: err}
			}
		}
		return nil
	}

	return &Interceptor{
		Priority: 200, // validation runs before retry/circuit-breaker
		Scope:    "validation",
		BeforeReceive: func(self *PID, msg Message) (*Message, error) {
			key := msg.CorrelationID
			if err, cached := cache.lookup(key); cached {
				if err != nil {
					return validationOutcome(policy.Mode, msg, err)
				}
				return &msg, nil
			}

			err := validate(msg)
			cache.store(key, err)
			if err != nil {
				return validationOutcome(policy.Mode, msg, err)
			}
			return &msg, nil
		},
	}
}

func validationOutcome(mode ValidationMode, msg Message, err error) (*Message, error) {
	switch mode {
	case ErrorOnFail:
		return nil, err
	default: // FilterOnFail
		return nil, nil
	}
}
