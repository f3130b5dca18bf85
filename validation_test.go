package bollywood

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationInterceptorFilterOnFailDropsSilently(t *testing.T) {
	ic := NewValidationInterceptor(ValidationPolicy{
		Mode: FilterOnFail,
		ByType: map[string]ValidatorFunc{
			"DEPOSIT": func(msg Message) error {
				amount := msg.Payload.(int)
				if amount <= 0 {
					return errors.New("amount must be positive")
				}
				return nil
			},
		},
	})

	result, err := ic.BeforeReceive(nil, NewMessage("DEPOSIT", -5))
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestValidationInterceptorErrorOnFailPropagatesError(t *testing.T) {
	ic := NewValidationInterceptor(ValidationPolicy{
		Mode: ErrorOnFail,
		ByType: map[string]ValidatorFunc{
			"DEPOSIT": func(msg Message) error {
				return errors.New("always invalid")
			},
		},
	})

	result, err := ic.BeforeReceive(nil, NewMessage("DEPOSIT", 1))
	assert.Nil(t, result)
	require.Error(t, err)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestValidationInterceptorPassesValidMessages(t *testing.T) {
	ic := NewValidationInterceptor(ValidationPolicy{
		Mode: FilterOnFail,
		ByType: map[string]ValidatorFunc{
			"DEPOSIT": func(msg Message) error {
				if msg.Payload.(int) <= 0 {
					return errors.New("invalid")
				}
				return nil
			},
		},
	})

	result, err := ic.BeforeReceive(nil, NewMessage("DEPOSIT", 10))
	assert.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 10, result.Payload)
}

func TestValidationInterceptorCachesByCorrelationID(t *testing.T) {
	calls := 0
	ic := NewValidationInterceptor(ValidationPolicy{
		Mode: FilterOnFail,
		Global: func(msg Message) error {
			calls++
			return errors.New("always fails")
		},
	})

	msg := NewMessage("X", nil).WithCorrelationID("same-id")
	_, _ = ic.BeforeReceive(nil, msg)
	_, _ = ic.BeforeReceive(nil, msg)

	assert.Equal(t, 1, calls, "second validation with the same correlation id should hit the cache")
}
