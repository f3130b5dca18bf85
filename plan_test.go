package bollywood

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePlanRejectsUnserializablePayload(t *testing.T) {
	plan := Event(NewMessage("BAD", func() {}))
	err := validatePlan(plan)
	assert.ErrorIs(t, err, ErrNotSerializable)
}

func TestValidatePlanAcceptsSerializableSequence(t *testing.T) {
	plan := Sequence(
		Event(NewMessage("A", 1)),
		Send(NewAddress("somewhere"), NewMessage("B", "x"), FireAndForget),
		Nothing(),
	)
	assert.NoError(t, validatePlan(plan))
}

func TestValidatePlanWalksNestedSequence(t *testing.T) {
	plan := Sequence(
		Nothing(),
		Sequence(Event(NewMessage("BAD", make(chan struct{})))),
	)
	assert.Error(t, validatePlan(plan))
}
