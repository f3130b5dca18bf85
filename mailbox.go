package bollywood

import (
	"container/heap"
	"sync"
)

// OverflowPolicy controls what happens when a mailbox is sent to
// while at capacity (spec.md §3).
type OverflowPolicy int

const (
	// RejectSend refuses the new message; the caller observes an
	// overflow outcome. This is the default.
	RejectSend OverflowPolicy = iota
	// DropOldest evicts the oldest queued message to make room.
	DropOldest
	// DropNewest silently discards the incoming message.
	DropNewest
	// PrioritySort keeps the mailbox ordered by Message.Priority
	// (higher first). On overflow it evicts the lowest-priority entry
	// if the newcomer outranks it, and otherwise refuses the newcomer.
	PrioritySort
)

// DefaultMailboxCapacity is the teacher's original default mailbox
// size, carried forward unchanged.
const DefaultMailboxCapacity = 1024

// MailboxConfig configures one actor's mailbox.
type MailboxConfig struct {
	Capacity int
	Overflow OverflowPolicy
}

// DefaultMailboxConfig returns the spec's documented default: FIFO,
// capacity 1024, reject-send on overflow.
func DefaultMailboxConfig() MailboxConfig {
	return MailboxConfig{Capacity: DefaultMailboxCapacity, Overflow: RejectSend}
}

// envelope wraps a user message with its sender, for delivery through
// a mailbox.
type envelope struct {
	message Message
	sender  *PID
}

type envelopeHeap []*envelope

func (h envelopeHeap) Len() int { return len(h) }
func (h envelopeHeap) Less(i, j int) bool {
	return h[i].message.Priority > h[j].message.Priority
}
func (h envelopeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *envelopeHeap) Push(x any)        { *h = append(*h, x.(*envelope)) }
func (h *envelopeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// mailbox is a bounded, ordered queue of envelopes with a configurable
// overflow policy. It is safe for concurrent enqueue from many
// senders; dequeue is intended for the single owning instance
// goroutine.
type mailbox struct {
	mu       sync.Mutex
	notEmpty chan struct{}
	cfg      MailboxConfig

	fifo []*envelope  // used for RejectSend / DropOldest / DropNewest
	pq   envelopeHeap // used for PrioritySort

	closed bool
}

func newMailbox(cfg MailboxConfig) *mailbox {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultMailboxCapacity
	}
	mb := &mailbox{
		cfg:      cfg,
		notEmpty: make(chan struct{}, 1),
	}
	if cfg.Overflow == PrioritySort {
		heap.Init(&mb.pq)
	}
	return mb
}

func (mb *mailbox) signal() {
	select {
	case mb.notEmpty <- struct{}{}:
	default:
	}
}

func (mb *mailbox) len() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.cfg.Overflow == PrioritySort {
		return len(mb.pq)
	}
	return len(mb.fifo)
}

// enqueue attempts to add env to the mailbox, applying the configured
// overflow policy. It returns ok=false when the mailbox is closed, or
// when it is at capacity under RejectSend or DropNewest, or under
// PrioritySort with a newcomer that does not outrank the lowest entry.
func (mb *mailbox) enqueue(env *envelope) bool {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if mb.closed {
		return false
	}

	if mb.cfg.Overflow == PrioritySort {
		if len(mb.pq) >= mb.cfg.Capacity {
			// Evict the lowest-priority entry if the newcomer outranks it.
			worst := mb.pq[0]
			for _, e := range mb.pq {
				if e.message.Priority < worst.message.Priority {
					worst = e
				}
			}
			if env.message.Priority <= worst.message.Priority {
				return false
			}
			mb.removeEnvelope(worst)
		}
		heap.Push(&mb.pq, env)
		mb.signal()
		return true
	}

	if len(mb.fifo) >= mb.cfg.Capacity {
		switch mb.cfg.Overflow {
		case DropOldest:
			mb.fifo = append(mb.fifo[1:], env)
			mb.signal()
			return true
		case DropNewest:
			return false
		default: // RejectSend
			return false
		}
	}

	mb.fifo = append(mb.fifo, env)
	mb.signal()
	return true
}

func (mb *mailbox) removeEnvelope(target *envelope) {
	for i, e := range mb.pq {
		if e == target {
			heap.Remove(&mb.pq, i)
			return
		}
	}
}

// dequeue blocks until a message is available or done is closed, then
// returns it. ok is false if the mailbox was closed with nothing left
// to deliver.
func (mb *mailbox) dequeue(done <-chan struct{}) (*envelope, bool) {
	for {
		mb.mu.Lock()
		var env *envelope
		if mb.cfg.Overflow == PrioritySort {
			if len(mb.pq) > 0 {
				env = heap.Pop(&mb.pq).(*envelope)
			}
		} else if len(mb.fifo) > 0 {
			env = mb.fifo[0]
			mb.fifo = mb.fifo[1:]
		}
		closed := mb.closed
		mb.mu.Unlock()

		if env != nil {
			return env, true
		}
		if closed {
			return nil, false
		}

		select {
		case <-mb.notEmpty:
			continue
		case <-done:
			mb.mu.Lock()
			hasMore := len(mb.fifo) > 0 || len(mb.pq) > 0
			mb.mu.Unlock()
			if hasMore {
				continue
			}
			return nil, false
		}
	}
}

// drain closes the mailbox and returns every envelope still queued,
// for routing to the dead-letter queue with reason "stopped".
func (mb *mailbox) drain() []*envelope {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.closed = true

	var out []*envelope
	if mb.cfg.Overflow == PrioritySort {
		for len(mb.pq) > 0 {
			out = append(out, heap.Pop(&mb.pq).(*envelope))
		}
	} else {
		out = mb.fifo
		mb.fifo = nil
	}
	return out
}
