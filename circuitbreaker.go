package bollywood

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned (wrapped) when a circuit-breaker
// interceptor rejects a message because its breaker is open (P7).
var ErrCircuitOpen = errors.New("bollywood: circuit breaker open")

// CircuitBreakerPolicy configures one circuit-breaker interceptor.
type CircuitBreakerPolicy struct {
	Name        string
	MaxFailures uint32
	OpenTimeout time.Duration
	// HalfOpenMaxRequests bounds how many trial requests are allowed
	// through while the breaker is half-open.
	HalfOpenMaxRequests uint32
}

// DefaultCircuitBreakerPolicy opens after 5 consecutive failures and
// probes again after 10s.
func DefaultCircuitBreakerPolicy(name string) CircuitBreakerPolicy {
	return CircuitBreakerPolicy{
		Name: name, MaxFailures: 5, OpenTimeout: 10 * time.Second, HalfOpenMaxRequests: 1,
	}
}

func messageTrackingKey(msg Message) string {
	return fmt.Sprintf("%s|%s|%d", msg.Type, msg.CorrelationID, msg.Timestamp)
}

// newTwoStepBreaker builds the gobreaker.v2 TwoStepCircuitBreaker
// shared by the standalone circuit-breaker interceptor below and the
// retry interceptor's coupled circuit-breaking (retry.go), so both
// construct the closed/open/half-open state machine (P7) the same way.
func newTwoStepBreaker(policy CircuitBreakerPolicy, log *slog.Logger) *gobreaker.TwoStepCircuitBreaker[Message] {
	if log == nil {
		log = slog.Default()
	}
	return gobreaker.NewTwoStepCircuitBreaker[Message](gobreaker.Settings{
		Name:        policy.Name,
		MaxRequests: policy.HalfOpenMaxRequests,
		Timeout:     policy.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= policy.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit breaker state change", slog.String("breaker", name),
				slog.String("from", from.String()), slog.String("to", to.String()))
		},
	})
}

// NewCircuitBreakerInterceptor wraps a
// github.com/sony/gobreaker/v2.TwoStepCircuitBreaker around a single
// actor's message handling: BeforeReceive calls Allow(), rejecting
// with ErrCircuitOpen while the breaker is open, and AfterProcess /
// OnError report the outcome back to it via the done callback Allow
// returned, implementing the closed/open/half-open transitions of P7.
// Use this standalone when an actor needs circuit-breaking without
// retries; NewRetryInterceptor (retry.go) composes the same breaker
// with retry logic into one policy for scenarios (like S5) that need
// both together.
func NewCircuitBreakerInterceptor(policy CircuitBreakerPolicy, log *slog.Logger) *Interceptor {
	cb := newTwoStepBreaker(policy, log)

	var mu sync.Mutex
	done := make(map[string]func(bool))

	return &Interceptor{
		Priority: 50,
		Scope:    "circuit-breaker:" + policy.Name,
		BeforeReceive: func(self *PID, msg Message) (*Message, error) {
			allowDone, err := cb.Allow()
			if err != nil {
				return nil, ErrCircuitOpen
			}
			mu.Lock()
			done[messageTrackingKey(msg)] = allowDone
			mu.Unlock()
			return &msg, nil
		},
		AfterProcess: func(self *PID, msg Message, plan Plan) {
			key := messageTrackingKey(msg)
			mu.Lock()
			fn, ok := done[key]
			delete(done, key)
			mu.Unlock()
			if ok {
				fn(true)
			}
		},
		OnError: func(self *PID, msg Message, cause error) (Plan, bool) {
			key := messageTrackingKey(msg)
			mu.Lock()
			fn, ok := done[key]
			delete(done, key)
			mu.Unlock()
			if ok {
				fn(false)
			}
			return nil, false
		},
	}
}
