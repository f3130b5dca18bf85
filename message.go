package bollywood

import (
	"encoding/json"
	"time"
)

// Message is the unit of communication between actors. Type is the
// sole discriminator a handler should switch on; Payload must satisfy
// IsSerializable (invariant I7).
type Message struct {
	Type          string
	Payload       any
	Timestamp     int64
	Version       string
	CorrelationID string

	// Priority is consulted only when the destination mailbox uses the
	// PrioritySort overflow policy (§4.1); zero sorts after any
	// explicit positive priority. Messages of equal priority are not
	// kept in arrival order.
	Priority int
}

// NewMessage constructs a message stamped with the current time and a
// default version of "1".
func NewMessage(msgType string, payload any) Message {
	return Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UnixNano(),
		Version:   "1",
	}
}

// WithCorrelationID returns a copy of the message tagged with id.
func (m Message) WithCorrelationID(id string) Message {
	m.CorrelationID = id
	return m
}

// IsSerializable reports whether v satisfies the JSON-serializable
// predicate required of domain events and plan instructions (I7).
// Functions, channels, and unsafe pointers are rejected; everything
// encoding/json can round-trip is accepted.
func IsSerializable(v any) bool {
	if v == nil {
		return true
	}
	switch v.(type) {
	case func(), chan struct{}:
		return false
	}
	_, err := json.Marshal(v)
	return err == nil
}

// Validate checks the message's own invariants: a non-empty type and
// a serializable payload.
func (m Message) Validate() error {
	if m.Type == "" {
		return ErrInvalidPlan
	}
	if !IsSerializable(m.Payload) {
		return ErrNotSerializable
	}
	return nil
}
