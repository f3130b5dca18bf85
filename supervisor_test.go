package bollywood

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRestartWindowTrimsEntriesOutsideWindow(t *testing.T) {
	w := &restartWindow{}

	count := w.record(50 * time.Millisecond)
	assert.Equal(t, 1, count)

	count = w.record(50 * time.Millisecond)
	assert.Equal(t, 2, count)

	time.Sleep(60 * time.Millisecond)

	count = w.record(50 * time.Millisecond)
	assert.Equal(t, 1, count, "entries older than the window must be trimmed before counting")
}

func TestSupervisorEscalatesToUnhandledWhenNoParent(t *testing.T) {
	sys := NewSystem(DefaultSystemConfig())
	sup := NewSupervisor(sys, nil)

	var gotErr error
	var gotActor string
	sup.OnUnhandledFailure(func(err error, actorID string, path []string) {
		gotErr = err
		gotActor = actorID
	})

	child := &PID{ID: "child-1"}
	sup.Supervise(child, nil, &SupervisionStrategy{Strategy: Escalate})

	cause := assert.AnError
	sup.Decide(child, nil, cause)

	assert.Equal(t, cause, gotErr)
	assert.Equal(t, "child-1", gotActor)
}
