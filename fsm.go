package bollywood

import (
	"fmt"
	"sync"
	"time"
)

// Transition records one state change applied by a StateMachine,
// mirroring the transition-history idea used by the corpus's
// event-sourced review FSM (grounded on
// Roasbeef-substrate/internal/review/fsm.go, generalized here from a
// single fixed event set to any actor's own event type).
type Transition[S comparable] struct {
	From      S
	To        S
	EventName string
	Timestamp time.Time
}

// TransitionFunc computes the next state for the current state and an
// incoming event, or returns an error if the event is not valid from
// that state.
type TransitionFunc[S comparable, E any] func(current S, event E) (S, error)

// StateMachine is the optional, generic state machine a Behavior may
// embed in its context so that domain events returned from a handler
// (§4.2's fan-out shortcut) drive disciplined state evolution instead
// of free-form mutation.
type StateMachine[S comparable, E any] struct {
	mu       sync.RWMutex
	current  S
	apply    TransitionFunc[S, E]
	nameOf   func(E) string
	history  []Transition[S]
	maxHistory int
}

// NewStateMachine builds a state machine starting in initial, using fn
// to compute transitions and nameOf to label them for the history
// (nameOf may be nil, in which case "%T" of the event is used).
func NewStateMachine[S comparable, E any](initial S, fn TransitionFunc[S, E], nameOf func(E) string) *StateMachine[S, E] {
	return &StateMachine[S, E]{
		current:    initial,
		apply:      fn,
		nameOf:     nameOf,
		maxHistory: 256,
	}
}

// State returns the current state.
func (sm *StateMachine[S, E]) State() S {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// Apply runs the transition function for event and, on success,
// records the transition and updates the current state.
func (sm *StateMachine[S, E]) Apply(event E) (S, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	from := sm.current
	to, err := sm.apply(from, event)
	if err != nil {
		return from, err
	}

	name := fmt.Sprintf("%T", event)
	if sm.nameOf != nil {
		name = sm.nameOf(event)
	}

	sm.history = append(sm.history, Transition[S]{
		From: from, To: to, EventName: name, Timestamp: time.Now(),
	})
	if len(sm.history) > sm.maxHistory {
		sm.history = sm.history[len(sm.history)-sm.maxHistory:]
	}
	sm.current = to
	return to, nil
}

// ApplyEvent discards Apply's (state, error) result, letting a
// StateMachine[S, Message] satisfy the runtime's event fan-out hook
// (§4.2): an actor whose context embeds such a machine has its domain
// events applied to it automatically before they reach the broker.
// Transition errors are swallowed here deliberately — a handler that
// emits an event its own machine rejects is a programmer error the
// machine's transition function should log, not one the runtime can
// usefully surface mid-interpretation.
func (sm *StateMachine[S, E]) ApplyEvent(event E) {
	_, _ = sm.Apply(event)
}

// History returns a copy of the recorded transitions, oldest first.
func (sm *StateMachine[S, E]) History() []Transition[S] {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]Transition[S], len(sm.history))
	copy(out, sm.history)
	return out
}
