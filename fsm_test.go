package bollywood

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doorState string

const (
	doorClosed doorState = "closed"
	doorOpen   doorState = "open"
)

type doorEvent struct {
	name string
}

func TestStateMachineAppliesValidTransition(t *testing.T) {
	sm := NewStateMachine(doorClosed, func(current doorState, event doorEvent) (doorState, error) {
		switch event.name {
		case "open":
			return doorOpen, nil
		case "close":
			return doorClosed, nil
		default:
			return current, errors.New("unknown event")
		}
	}, func(e doorEvent) string { return e.name })

	next, err := sm.Apply(doorEvent{name: "open"})
	require.NoError(t, err)
	assert.Equal(t, doorOpen, next)
	assert.Equal(t, doorOpen, sm.State())

	history := sm.History()
	require.Len(t, history, 1)
	assert.Equal(t, doorClosed, history[0].From)
	assert.Equal(t, doorOpen, history[0].To)
	assert.Equal(t, "open", history[0].EventName)
}

func TestStateMachineRejectsInvalidTransitionWithoutChangingState(t *testing.T) {
	sm := NewStateMachine(doorClosed, func(current doorState, event doorEvent) (doorState, error) {
		if event.name == "open" {
			return doorOpen, nil
		}
		return current, errors.New("cannot " + event.name + " from " + string(current))
	}, func(e doorEvent) string { return e.name })

	_, err := sm.Apply(doorEvent{name: "explode"})
	assert.Error(t, err)
	assert.Equal(t, doorClosed, sm.State())
	assert.Empty(t, sm.History())
}
