package bollywood

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy configures the retry interceptor (§4.8). When
// CircuitBreaker is set, retry and circuit-breaking are folded into
// one decision tree per spec.md §4.8a / scenario S5: the breaker trips
// after CircuitBreaker.MaxFailures *final* failures (a message whose
// retries are exhausted, or that IsRetryable rejects outright), not
// every raw handler error, and gates subsequent deliveries while open.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// IsRetryable decides whether cause warrants another attempt. Nil
	// means every error is retried up to MaxAttempts.
	IsRetryable func(cause error) bool
	// CircuitBreaker, when non-nil, couples a breaker to this policy
	// (scenario S5's circuitThreshold / circuitResetTimeout).
	CircuitBreaker *CircuitBreakerPolicy
}

// DefaultRetryPolicy retries up to 3 times with exponential backoff
// starting at 50ms, matching spec.md's retry interceptor example. No
// circuit breaker is coupled by default.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2.0,
	}
}

// RetryWithCircuitBreakerPolicy builds the coupled policy scenario S5
// describes: maxRetries=3, initialDelay=10ms, backoffMultiplier=2,
// circuitThreshold=2, a 10s circuitResetTimeout, and a single
// half-open probe.
func RetryWithCircuitBreakerPolicy(name string) RetryPolicy {
	policy := DefaultRetryPolicy()
	policy.InitialInterval = 10 * time.Millisecond
	cb := DefaultCircuitBreakerPolicy(name)
	cb.MaxFailures = 2
	policy.CircuitBreaker = &cb
	return policy
}

func (p RetryPolicy) newBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.MaxElapsedTime = 0 // bounded by MaxAttempts instead
	return b
}

// attemptTracker records how many times each correlation id (or, for
// uncorrelated sends, a generated key) has been retried, so the
// interceptor's OnError phase can enforce MaxAttempts without reaching
// for a weak map (spec.md §9's re-architecting note: an explicit,
// swept map stands in for per-message tracking that survives message
// identity not being stable across retries).
type attemptTracker struct {
	mu       sync.Mutex
	backoffs map[string]backoff.BackOff
	attempts map[string]int
}

func newAttemptTracker() *attemptTracker {
	return &attemptTracker{
		backoffs: make(map[string]backoff.BackOff),
		attempts: make(map[string]int),
	}
}

func (t *attemptTracker) next(key string, policy RetryPolicy) (time.Duration, int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.backoffs[key]
	if !ok {
		b = policy.newBackoff()
		t.backoffs[key] = b
	}
	t.attempts[key]++
	attempt := t.attempts[key]
	if attempt > policy.MaxAttempts {
		delete(t.backoffs, key)
		delete(t.attempts, key)
		return 0, attempt, false
	}
	return b.NextBackOff(), attempt, true
}

func (t *attemptTracker) forget(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.backoffs, key)
	delete(t.attempts, key)
}

// retryKey identifies one logical retry sequence: the correlation id
// when present (asks retry along the same conversation), otherwise the
// message type plus its original timestamp.
func retryKey(msg Message) string {
	if msg.CorrelationID != "" {
		return msg.CorrelationID
	}
	return msg.Type + "#" + time.Unix(0, msg.Timestamp).String()
}

// NewRetryInterceptor builds an interceptor that re-delivers a failed
// message to the same actor after an exponential backoff, preserving
// its CorrelationID so an in-flight ask is unaffected by the retry
// (§4.8, Open Question resolution in SPEC_FULL.md §4.8). When
// policy.CircuitBreaker is set, the same interceptor also gates
// delivery through a breaker that only counts a message as failed
// once its retries are exhausted, composing retry and circuit-breaking
// into the single policy scenario S5 exercises.
func NewRetryInterceptor(policy RetryPolicy) *Interceptor {
	tracker := newAttemptTracker()
	isRetryable := policy.IsRetryable
	if isRetryable == nil {
		isRetryable = func(error) bool { return true }
	}

	ic := &Interceptor{
		Priority: 100,
		Scope:    "retry",
	}

	if policy.CircuitBreaker == nil {
		ic.OnError = func(self *PID, msg Message, cause error) (Plan, bool) {
			if !isRetryable(cause) {
				return nil, false
			}
			delay, _, ok := tracker.next(retryKey(msg), policy)
			if !ok {
				return nil, false
			}
			time.Sleep(delay)
			return Send(NewAddress(self.String()), msg, FireAndForget), true
		}
		return ic
	}

	cb := newTwoStepBreaker(*policy.CircuitBreaker, slog.Default())
	var mu sync.Mutex
	done := make(map[string]func(bool))

	ic.BeforeReceive = func(self *PID, msg Message) (*Message, error) {
		allowDone, err := cb.Allow()
		if err != nil {
			return nil, ErrCircuitOpen
		}
		mu.Lock()
		done[messageTrackingKey(msg)] = allowDone
		mu.Unlock()
		return &msg, nil
	}
	ic.AfterProcess = func(self *PID, msg Message, plan Plan) {
		key := messageTrackingKey(msg)
		mu.Lock()
		fn, ok := done[key]
		delete(done, key)
		mu.Unlock()
		if ok {
			fn(true)
		}
	}
	ic.OnError = func(self *PID, msg Message, cause error) (Plan, bool) {
		reportFinalFailure := func() {
			key := messageTrackingKey(msg)
			mu.Lock()
			fn, ok := done[key]
			delete(done, key)
			mu.Unlock()
			if ok {
				fn(false)
			}
		}

		if !isRetryable(cause) {
			reportFinalFailure()
			return nil, false
		}
		delay, _, ok := tracker.next(retryKey(msg), policy)
		if !ok {
			reportFinalFailure()
			return nil, false
		}

		// An attempt that still has retries left is not yet a final
		// failure: leave the breaker's Allow() slot unreported for this
		// delivery and let the resend's own BeforeReceive open a fresh
		// one, so the breaker only counts final failures (S5).
		time.Sleep(delay)
		return Send(NewAddress(self.String()), msg, FireAndForget), true
	}

	return ic
}
