package bollywood

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryInterceptorRePlansSendToSelf(t *testing.T) {
	policy := DefaultRetryPolicy()
	policy.InitialInterval = time.Millisecond
	ic := NewRetryInterceptor(policy)

	self := &PID{ID: "actor-1"}
	msg := NewMessage("DO_WORK", nil).WithCorrelationID("corr-1")

	plan, handled := ic.OnError(self, msg, errors.New("transient failure"))
	require.True(t, handled)

	send, ok := plan.(PlanSend)
	require.True(t, ok)
	assert.Equal(t, self.String(), send.Instruction.To.Path)
	assert.Equal(t, "corr-1", send.Instruction.Tell.CorrelationID, "retry must preserve the correlation id")
}

func TestRetryInterceptorGivesUpAfterMaxAttempts(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, Multiplier: 1}
	ic := NewRetryInterceptor(policy)

	self := &PID{ID: "actor-1"}
	msg := NewMessage("DO_WORK", nil).WithCorrelationID("corr-2")

	_, handled := ic.OnError(self, msg, errors.New("fail"))
	assert.True(t, handled)
	_, handled = ic.OnError(self, msg, errors.New("fail"))
	assert.True(t, handled)
	_, handled = ic.OnError(self, msg, errors.New("fail"))
	assert.False(t, handled, "third failure exceeds MaxAttempts of 2")
}

func TestRetryInterceptorRespectsIsRetryable(t *testing.T) {
	policy := DefaultRetryPolicy()
	policy.IsRetryable = func(cause error) bool { return false }
	ic := NewRetryInterceptor(policy)

	_, handled := ic.OnError(&PID{ID: "actor-1"}, NewMessage("X", nil), errors.New("permanent"))
	assert.False(t, handled)
}

// TestRetryInterceptorCircuitBreakerTripsOnFinalFailures exercises
// scenario S5: a retry policy coupled with a circuit breaker opens
// after circuitThreshold *final* failures (retries exhausted), then
// suppresses delivery until the reset timeout elapses, closing again
// on a successful probe.
func TestRetryInterceptorCircuitBreakerTripsOnFinalFailures(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:     0, // no retries: every delivery is a final failure
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		Multiplier:      1,
		CircuitBreaker: &CircuitBreakerPolicy{
			Name: "s5", MaxFailures: 2, OpenTimeout: 30 * time.Millisecond, HalfOpenMaxRequests: 1,
		},
	}
	ic := NewRetryInterceptor(policy)
	self := &PID{ID: "actor-1"}

	ids := []string{"corr-1", "corr-2"}
	for _, id := range ids {
		msg := NewMessage("DO_WORK", nil).WithCorrelationID(id)
		_, err := ic.BeforeReceive(self, msg)
		require.NoError(t, err)
		_, handled := ic.OnError(self, msg, errors.New("handler always throws"))
		assert.False(t, handled, "no retries left, so the retry path does not substitute a plan")
	}

	blocked := NewMessage("DO_WORK", nil).WithCorrelationID("blocked")
	_, err := ic.BeforeReceive(self, blocked)
	assert.ErrorIs(t, err, ErrCircuitOpen, "two final failures should have tripped the breaker")

	time.Sleep(40 * time.Millisecond)

	probe := NewMessage("DO_WORK", nil).WithCorrelationID("probe")
	_, err = ic.BeforeReceive(self, probe)
	require.NoError(t, err, "after the reset timeout a half-open probe is allowed through")
	ic.AfterProcess(self, probe, Nothing())

	recovered := NewMessage("DO_WORK", nil).WithCorrelationID("recovered")
	_, err = ic.BeforeReceive(self, recovered)
	assert.NoError(t, err, "a successful probe closes the circuit")
}
