package bollywood

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainRunBeforeReceiveFiltersMessage(t *testing.T) {
	chain := NewChain(nil)
	chain.Register(&Interceptor{
		Priority: 1,
		BeforeReceive: func(self *PID, msg Message) (*Message, error) {
			if msg.Type == "SECRET" {
				return nil, nil
			}
			return &msg, nil
		},
	})

	result, err := chain.RunBeforeReceive(nil, NewMessage("SECRET", nil))
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.EqualValues(t, 1, chain.Stats.Filtered.Load())
}

func TestChainRunBeforeReceiveHardErrorPropagates(t *testing.T) {
	chain := NewChain(nil)
	wantErr := errors.New("boom")
	chain.Register(&Interceptor{
		Priority: 1,
		BeforeReceive: func(self *PID, msg Message) (*Message, error) {
			return nil, wantErr
		},
	})

	result, err := chain.RunBeforeReceive(nil, NewMessage("X", nil))
	assert.Nil(t, result)
	assert.ErrorIs(t, err, wantErr)
}

func TestChainOrdersBeforeReceiveByDescendingPriority(t *testing.T) {
	chain := NewChain(nil)
	var order []string

	chain.Register(&Interceptor{
		Priority: 1, Scope: "low",
		BeforeReceive: func(self *PID, msg Message) (*Message, error) {
			order = append(order, "low")
			return &msg, nil
		},
	})
	chain.Register(&Interceptor{
		Priority: 10, Scope: "high",
		BeforeReceive: func(self *PID, msg Message) (*Message, error) {
			order = append(order, "high")
			return &msg, nil
		},
	})

	_, err := chain.RunBeforeReceive(nil, NewMessage("X", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"high", "low"}, order)
}

func TestChainRunOnErrorStopsAtFirstHandler(t *testing.T) {
	chain := NewChain(nil)
	chain.Register(&Interceptor{
		Priority: 1,
		OnError: func(self *PID, msg Message, cause error) (Plan, bool) {
			return Nothing(), true
		},
	})

	plan, handled := chain.RunOnError(nil, NewMessage("X", nil), errors.New("fail"))
	assert.True(t, handled)
	assert.Equal(t, Nothing(), plan)
}

func TestChainSetEnabledDisablesWithoutRemoving(t *testing.T) {
	chain := NewChain(nil)
	calls := 0
	id := chain.Register(&Interceptor{
		Priority: 1,
		BeforeReceive: func(self *PID, msg Message) (*Message, error) {
			calls++
			return &msg, nil
		},
	})

	chain.SetEnabled(id, false)
	_, _ = chain.RunBeforeReceive(nil, NewMessage("X", nil))
	assert.Equal(t, 0, calls)

	chain.SetEnabled(id, true)
	_, _ = chain.RunBeforeReceive(nil, NewMessage("X", nil))
	assert.Equal(t, 1, calls)
}
