package bollywood

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameTableRegisterIsIdempotentForSameAddress(t *testing.T) {
	table := newNameTable()
	addr := NewAddress("svc.a")

	require.NoError(t, table.register("svc", addr, false))
	require.NoError(t, table.register("svc", addr, false))

	entry, ok := table.lookup("svc")
	require.True(t, ok)
	assert.Equal(t, addr, entry.Address)
}

func TestNameTableEphemeralConflictIsRejected(t *testing.T) {
	table := newNameTable()
	first := NewAddress("actor-1")
	second := NewAddress("actor-2")

	require.NoError(t, table.register("session-42", first, true))
	err := table.register("session-42", second, true)
	assert.ErrorIs(t, err, ErrNameConflict)

	entry, _ := table.lookup("session-42")
	assert.Equal(t, first, entry.Address, "rejected re-registration must not overwrite the original address")
}

func TestNameTableWellKnownConflictRefreshesInstead(t *testing.T) {
	table := newNameTable()
	first := NewAddress("actor-1")
	second := NewAddress("actor-2")

	require.NoError(t, table.register("svc.discovery", first, false))
	require.NoError(t, table.register("svc.discovery", second, false))

	entry, _ := table.lookup("svc.discovery")
	assert.Equal(t, second, entry.Address)
}

func TestDirectoryBehaviorLookupPrefersWellKnown(t *testing.T) {
	d := NewDirectoryBehavior().(*directoryBehavior)

	wellKnown := NewAddress("well-known-addr")
	ephemeral := NewAddress("ephemeral-addr")

	_, err := d.OnMessage(MessageContext{Message: NewMessage(MsgRegister, RegisterPayload{Name: "svc", Address: wellKnown})})
	require.NoError(t, err)
	_, err = d.OnMessage(MessageContext{Message: NewMessage(MsgRegister, RegisterPayload{Name: "svc", Address: ephemeral, Ephemeral: true})})
	require.NoError(t, err)

	plan, err := d.OnMessage(MessageContext{Message: NewMessage(MsgLookup, LookupPayload{Name: "svc"}).WithCorrelationID("c1")})
	require.NoError(t, err)

	event := plan.(PlanEvent).Event
	entry := event.Payload.(NameEntry)
	assert.Equal(t, wellKnown, entry.Address)
}

func TestDirectoryBehaviorListFiltersByPattern(t *testing.T) {
	d := NewDirectoryBehavior().(*directoryBehavior)

	_, _ = d.OnMessage(MessageContext{Message: NewMessage(MsgRegister, RegisterPayload{Name: "user.service", Address: NewAddress("a")})})
	_, _ = d.OnMessage(MessageContext{Message: NewMessage(MsgRegister, RegisterPayload{Name: "order.service", Address: NewAddress("b")})})

	plan, err := d.OnMessage(MessageContext{Message: NewMessage(MsgList, ListPayload{Pattern: "user.*"})})
	require.NoError(t, err)

	entries := plan.(PlanEvent).Event.Payload.([]NameEntry)
	assert.Len(t, entries, 1)
	assert.Equal(t, "user.service", entries[0].Name)
}
