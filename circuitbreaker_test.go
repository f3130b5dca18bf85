package bollywood

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	policy := CircuitBreakerPolicy{Name: "test", MaxFailures: 2, OpenTimeout: 50 * time.Millisecond, HalfOpenMaxRequests: 1}
	ic := NewCircuitBreakerInterceptor(policy, nil)

	self := &PID{ID: "actor-1"}

	for i := 0; i < 2; i++ {
		msg := NewMessage("X", nil).WithCorrelationID(itoa(uint64(i + 1)))
		result, err := ic.BeforeReceive(self, msg)
		require.NoError(t, err)
		require.NotNil(t, result)
		_, handled := ic.OnError(self, msg, errors.New("handler failed"))
		assert.False(t, handled, "circuit breaker never substitutes a plan itself")
	}

	msg := NewMessage("X", nil).WithCorrelationID("after-trip")
	_, err := ic.BeforeReceive(self, msg)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreakerClosesAfterSuccessfulProbe(t *testing.T) {
	policy := CircuitBreakerPolicy{Name: "test-2", MaxFailures: 1, OpenTimeout: 20 * time.Millisecond, HalfOpenMaxRequests: 1}
	ic := NewCircuitBreakerInterceptor(policy, nil)
	self := &PID{ID: "actor-1"}

	failing := NewMessage("X", nil).WithCorrelationID("f1")
	_, err := ic.BeforeReceive(self, failing)
	require.NoError(t, err)
	ic.OnError(self, failing, errors.New("fail"))

	blocked := NewMessage("X", nil).WithCorrelationID("blocked")
	_, err = ic.BeforeReceive(self, blocked)
	assert.ErrorIs(t, err, ErrCircuitOpen)

	time.Sleep(30 * time.Millisecond)

	probe := NewMessage("X", nil).WithCorrelationID("probe")
	_, err = ic.BeforeReceive(self, probe)
	require.NoError(t, err, "after OpenTimeout the breaker allows a half-open probe")
	ic.AfterProcess(self, probe, Nothing())

	recovered := NewMessage("X", nil).WithCorrelationID("recovered")
	_, err = ic.BeforeReceive(self, recovered)
	assert.NoError(t, err, "a successful probe closes the breaker")
}
