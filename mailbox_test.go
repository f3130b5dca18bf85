package bollywood

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailboxFIFOOrder(t *testing.T) {
	mb := newMailbox(MailboxConfig{Capacity: 4, Overflow: RejectSend})

	for i := 0; i < 3; i++ {
		ok := mb.enqueue(&envelope{message: NewMessage("T", i)})
		require.True(t, ok)
	}

	done := make(chan struct{})
	for i := 0; i < 3; i++ {
		env, ok := mb.dequeue(done)
		require.True(t, ok)
		assert.Equal(t, i, env.message.Payload)
	}
}

func TestMailboxRejectSendAtCapacity(t *testing.T) {
	mb := newMailbox(MailboxConfig{Capacity: 1, Overflow: RejectSend})

	require.True(t, mb.enqueue(&envelope{message: NewMessage("A", 1)}))
	assert.False(t, mb.enqueue(&envelope{message: NewMessage("B", 2)}))
}

func TestMailboxDropOldest(t *testing.T) {
	mb := newMailbox(MailboxConfig{Capacity: 2, Overflow: DropOldest})

	require.True(t, mb.enqueue(&envelope{message: NewMessage("A", 1)}))
	require.True(t, mb.enqueue(&envelope{message: NewMessage("B", 2)}))
	require.True(t, mb.enqueue(&envelope{message: NewMessage("C", 3)}))

	done := make(chan struct{})
	env, ok := mb.dequeue(done)
	require.True(t, ok)
	assert.Equal(t, 2, env.message.Payload, "oldest message A should have been evicted")
}

func TestMailboxPrioritySort(t *testing.T) {
	mb := newMailbox(MailboxConfig{Capacity: 4, Overflow: PrioritySort})

	low := Message{Type: "L", Priority: 1}
	high := Message{Type: "H", Priority: 10}
	mid := Message{Type: "M", Priority: 5}

	require.True(t, mb.enqueue(&envelope{message: low}))
	require.True(t, mb.enqueue(&envelope{message: high}))
	require.True(t, mb.enqueue(&envelope{message: mid}))

	done := make(chan struct{})
	first, _ := mb.dequeue(done)
	second, _ := mb.dequeue(done)
	third, _ := mb.dequeue(done)

	assert.Equal(t, "H", first.message.Type)
	assert.Equal(t, "M", second.message.Type)
	assert.Equal(t, "L", third.message.Type)
}

func TestMailboxDrainReturnsRemainingEnvelopes(t *testing.T) {
	mb := newMailbox(DefaultMailboxConfig())
	require.True(t, mb.enqueue(&envelope{message: NewMessage("A", nil)}))
	require.True(t, mb.enqueue(&envelope{message: NewMessage("B", nil)}))

	leftover := mb.drain()
	assert.Len(t, leftover, 2)

	assert.False(t, mb.enqueue(&envelope{message: NewMessage("C", nil)}), "closed mailbox rejects further sends")
}
