package bollywood

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSystem(t *testing.T) *System {
	t.Helper()
	sys := NewSystem(DefaultSystemConfig())
	require.NoError(t, sys.Start())
	t.Cleanup(func() { _ = sys.Stop(time.Second) })
	return sys
}

type pingPayload struct{ N int }
type pongPayload struct{ N int }

// S1 — ask/response round trip.
func TestScenarioAskResponseRoundTrip(t *testing.T) {
	sys := newTestSystem(t)

	echoPID, err := sys.Spawn(NewProps(func() Behavior {
		return BehaviorFunc(func(mc MessageContext) (Plan, error) {
			if mc.Message.Type != "PING" {
				return Nothing(), nil
			}
			p := mc.Message.Payload.(pingPayload)
			return mc.Reply(pongPayload{N: p.N}, "PONG"), nil
		})
	}), nil)
	require.NoError(t, err)

	resp, err := sys.Ask(context.Background(), NewAddress(echoPID.String()), NewMessage("PING", pingPayload{N: 42}), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "PONG", resp.Type)
	assert.Equal(t, 42, resp.Payload.(pongPayload).N)

	assert.Equal(t, 0, sys.DeadLetters().Size())
}

// S2 — ask timeout.
func TestScenarioAskTimeout(t *testing.T) {
	sys := newTestSystem(t)

	silentPID, err := sys.Spawn(NewProps(func() Behavior {
		return BehaviorFunc(func(mc MessageContext) (Plan, error) { return Nothing(), nil })
	}), nil)
	require.NoError(t, err)

	_, err = sys.Ask(context.Background(), NewAddress(silentPID.String()), NewMessage("Q", nil), 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.Contains(t, err.Error(), "50ms")
	assert.Equal(t, 0, sys.correlations.PendingCount())
}

// S3 — broker wildcard fan-out.
func TestScenarioBrokerWildcardFanOut(t *testing.T) {
	sys := newTestSystem(t)

	received := make(chan TopicEventPayload, 4)
	subscriber := func() Behavior {
		return BehaviorFunc(func(mc MessageContext) (Plan, error) {
			if mc.Message.Type == MsgTopicEvent {
				received <- mc.Message.Payload.(TopicEventPayload)
			}
			return Nothing(), nil
		})
	}

	aPID, err := sys.Spawn(NewProps(subscriber), nil)
	require.NoError(t, err)
	bPID, err := sys.Spawn(NewProps(subscriber), nil)
	require.NoError(t, err)

	require.NoError(t, sys.SubscribeToSystemEvents("user.*", aPID))
	require.NoError(t, sys.Send(NewAddress(sys.BrokerPID().String()), NewMessage(MsgSubscribe, SubscribePayload{
		Topic: "user.created", Subscriber: bPID,
	}), nil))

	time.Sleep(20 * time.Millisecond) // let subscriptions land

	require.NoError(t, sys.Send(NewAddress(sys.BrokerPID().String()), NewMessage(MsgPublish, PublishPayload{
		Topic: "user.created", Event: NewMessage("X", nil),
	}), nil))

	var got []TopicEventPayload
	for i := 0; i < 2; i++ {
		select {
		case p := <-received:
			got = append(got, p)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for topic events")
		}
	}
	assert.Len(t, got, 2)
	for _, p := range got {
		assert.Equal(t, "user.created", p.Topic)
	}
}

// S6 — graceful shutdown.
func TestScenarioGracefulShutdown(t *testing.T) {
	sys := NewSystem(DefaultSystemConfig())
	require.NoError(t, sys.Start())

	stopped := make(chan string, 3)
	makeActor := func(name string) Behavior {
		return NewFuncBehavior(
			nil,
			func(mc MessageContext) (Plan, error) { return Nothing(), nil },
			func(any) error { stopped <- name; return nil },
		)
	}

	_, err := sys.Spawn(NewProps(func() Behavior { return makeActor("A") }), nil)
	require.NoError(t, err)
	_, err = sys.Spawn(NewProps(func() Behavior { return makeActor("B") }), nil)
	require.NoError(t, err)
	_, err = sys.Spawn(NewProps(func() Behavior { return makeActor("C") }), nil)
	require.NoError(t, err)

	require.NoError(t, sys.Stop(2*time.Second))

	assert.False(t, sys.IsRunning())

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		select {
		case name := <-stopped:
			seen[name] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for actor shutdown")
		}
	}
	assert.True(t, seen["A"] && seen["B"] && seen["C"])

	// A second stop is a no-op.
	require.NoError(t, sys.Stop(time.Second))
}

func TestSpawnRejectsDuplicateExplicitID(t *testing.T) {
	sys := newTestSystem(t)

	_, err := sys.Spawn(NewProps(func() Behavior {
		return BehaviorFunc(func(mc MessageContext) (Plan, error) { return Nothing(), nil })
	}).WithID("singleton"), nil)
	require.NoError(t, err)

	_, err = sys.Spawn(NewProps(func() Behavior {
		return BehaviorFunc(func(mc MessageContext) (Plan, error) { return Nothing(), nil })
	}).WithID("singleton"), nil)
	assert.ErrorIs(t, err, ErrDuplicateActorID)
}

func TestSendToUnknownAddressDeadLetters(t *testing.T) {
	sys := newTestSystem(t)

	err := sys.Send(NewAddress("does-not-exist"), NewMessage("X", nil), nil)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, sys.DeadLetters().Size())
}
