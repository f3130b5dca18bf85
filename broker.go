package bollywood

import (
	"sort"
	"strings"
	"sync"
)

// WellKnownBroker is the address the event broker actor is spawned at
// by System.Start (spec.md §6).
const WellKnownBroker = "system.event-broker"

// Broker message types (§4.5).
const (
	MsgSubscribe        = "SUBSCRIBE"
	MsgUnsubscribe      = "UNSUBSCRIBE"
	MsgPublish          = "PUBLISH"
	MsgGetBrokerStats   = "GET_BROKER_STATS"
	MsgSubscriptionAdded = "SUBSCRIPTION_ADDED"
	MsgTopicEvent       = "TOPIC_EVENT"
	MsgEventPublished   = "EVENT_PUBLISHED"
)

// SubscribePayload is the payload for a SUBSCRIBE message.
type SubscribePayload struct {
	Topic      string
	Subscriber *PID
}

// UnsubscribePayload is the payload for an UNSUBSCRIBE message.
type UnsubscribePayload struct {
	Topic      string
	Subscriber *PID
}

// PublishPayload is the payload for a PUBLISH message.
type PublishPayload struct {
	Topic       string
	Event       Message
	PublisherID *PID
}

// TopicEventPayload is delivered to each matching subscriber.
type TopicEventPayload struct {
	Topic string
	Event Message
}

// EventPublishedPayload is the trailing domain event emitted after
// every PUBLISH, even when there were no subscribers.
type EventPublishedPayload struct {
	Topic           string
	SubscriberCount int
}

// BrokerStats summarizes broker activity for GET_BROKER_STATS.
type BrokerStats struct {
	DirectTopics    int
	WildcardTopics  int
	TotalSubscribers int
	PublishCount    int
}

func isWildcardPattern(topic string) bool {
	return strings.Contains(topic, "*")
}

// matchesPattern implements the pattern algebra of spec.md §4.5: "*"
// matches any single segment, "prefix.*" matches any topic beginning
// with "prefix." and also "prefix" itself, and "*" alone matches
// everything. Dots are literal separators.
func matchesPattern(pattern, topic string) bool {
	if pattern == "*" {
		return true
	}
	patSegs := strings.Split(pattern, ".")
	topicSegs := strings.Split(topic, ".")

	// "prefix.*" also matches the bare "prefix".
	if len(patSegs) >= 2 && patSegs[len(patSegs)-1] == "*" {
		prefix := strings.Join(patSegs[:len(patSegs)-1], ".")
		if topic == prefix {
			return true
		}
	}

	if len(patSegs) != len(topicSegs) {
		return false
	}
	for i, seg := range patSegs {
		if seg == "*" {
			continue
		}
		if seg != topicSegs[i] {
			return false
		}
	}
	return true
}

// brokerState is the event broker actor's private context (embedded
// behind the Behavior interface so the runtime's ordinary actor
// machinery owns it, per §5's single-writer discipline).
type brokerState struct {
	mu          sync.RWMutex
	direct      map[string]map[string]*PID
	wildcards   map[string]map[string]*PID
	publishCount int
}

func newBrokerState() *brokerState {
	return &brokerState{
		direct:    make(map[string]map[string]*PID),
		wildcards: make(map[string]map[string]*PID),
	}
}

func (b *brokerState) subscribe(topic string, sub *PID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.targetSet(topic)
	if set[sub.ID] == nil {
		set[sub.ID] = sub
	}
}

func (b *brokerState) targetSet(topic string) map[string]*PID {
	table := b.direct
	if isWildcardPattern(topic) {
		table = b.wildcards
	}
	set, ok := table[topic]
	if !ok {
		set = make(map[string]*PID)
		table[topic] = set
	}
	return set
}

func (b *brokerState) unsubscribe(topic string, sub *PID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	table := b.direct
	if isWildcardPattern(topic) {
		table = b.wildcards
	}
	set, ok := table[topic]
	if !ok {
		return
	}
	delete(set, sub.ID)
	if len(set) == 0 {
		delete(table, topic)
	}
}

func (b *brokerState) matchSubscribers(topic string) []*PID {
	b.mu.Lock()
	defer b.mu.Unlock()
	seen := make(map[string]*PID)
	for id, pid := range b.direct[topic] {
		seen[id] = pid
	}
	for pattern, subs := range b.wildcards {
		if matchesPattern(pattern, topic) {
			for id, pid := range subs {
				seen[id] = pid
			}
		}
	}
	out := make([]*PID, 0, len(seen))
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		out = append(out, seen[id])
	}
	return out
}

func (b *brokerState) stats() BrokerStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := 0
	for _, set := range b.direct {
		total += len(set)
	}
	for _, set := range b.wildcards {
		total += len(set)
	}
	return BrokerStats{
		DirectTopics:     len(b.direct),
		WildcardTopics:   len(b.wildcards),
		TotalSubscribers: total,
		PublishCount:     b.publishCount,
	}
}

// brokerBehavior implements the event broker actor described in
// spec.md §4.5.
type brokerBehavior struct {
	state *brokerState
}

// NewEventBrokerBehavior constructs the broker's Behavior, spawned by
// System.Start at WellKnownBroker.
func NewEventBrokerBehavior() Behavior {
	return &brokerBehavior{state: newBrokerState()}
}

func (b *brokerBehavior) OnStart(self *PID) (any, error) { return nil, nil }
func (b *brokerBehavior) OnStop(any) error                { return nil }

func (b *brokerBehavior) OnMessage(mc MessageContext) (Plan, error) {
	switch mc.Message.Type {
	case MsgSubscribe:
		p := mc.Message.Payload.(SubscribePayload)
		b.state.subscribe(p.Topic, p.Subscriber)
		return Event(NewMessage(MsgSubscriptionAdded, p)), nil

	case MsgUnsubscribe:
		p := mc.Message.Payload.(UnsubscribePayload)
		b.state.unsubscribe(p.Topic, p.Subscriber)
		return Nothing(), nil

	case MsgPublish:
		p := mc.Message.Payload.(PublishPayload)
		subs := b.state.matchSubscribers(p.Topic)

		b.state.mu.Lock()
		b.state.publishCount++
		b.state.mu.Unlock()

		items := make([]Plan, 0, len(subs)+1)
		for _, sub := range subs {
			items = append(items, Send(
				NewAddress(sub.String()),
				NewMessage(MsgTopicEvent, TopicEventPayload{Topic: p.Topic, Event: p.Event}),
				FireAndForget,
			))
		}
		items = append(items, Event(NewMessage(MsgEventPublished, EventPublishedPayload{
			Topic: p.Topic, SubscriberCount: len(subs),
		})))
		return Sequence(items...), nil

	case MsgGetBrokerStats:
		return mc.Reply(b.state.stats(), "BROKER_STATS"), nil

	default:
		return Nothing(), nil
	}
}
