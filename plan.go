package bollywood

import "time"

// SendMode controls delivery semantics for a PlanSend instruction
// (spec.md §3).
type SendMode int

const (
	// FireAndForget delivers at most once, no retry.
	FireAndForget SendMode = iota
	// Retry3 retries delivery up to three times on mailbox overflow.
	Retry3
	// Guaranteed routes to the dead-letter queue on exhaustion instead
	// of silently dropping.
	Guaranteed
)

// SendInstruction is one outbound tell produced by a plan.
type SendInstruction struct {
	To   Address
	Tell Message
	Mode SendMode
}

// AskInstruction is one outbound, correlated request produced by a
// plan. OnOk/OnError convert the eventual response/error into a
// domain event the runtime feeds back into the issuing actor.
type AskInstruction struct {
	To        Address
	Ask       Message
	OnOk      func(resp Message) Message
	OnError   func(err error) Message
	TimeoutMs int
}

func (a AskInstruction) timeout() time.Duration {
	if a.TimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(a.TimeoutMs) * time.Millisecond
}

// Plan is the declarative value a handler returns. The runtime
// interprets it (§4.2); plans never reorder their own items.
type Plan interface {
	isPlan()
}

// PlanNothing performs no side effect.
type PlanNothing struct{}

// PlanEvent is a domain event: fanned out to the actor's embedded
// state machine first, then published via the event broker on a topic
// implied by the event's Type (§4.2's fan-out shortcut).
type PlanEvent struct {
	Event Message
}

// PlanSend routes a tell through System.Send.
type PlanSend struct {
	Instruction SendInstruction
}

// PlanAsk routes a correlated request through System.Ask,
// asynchronously, wiring the eventual outcome back through OnOk/OnError.
type PlanAsk struct {
	Instruction AskInstruction
}

// PlanSequence executes items in order; the runtime never reorders or
// parallelizes them.
type PlanSequence struct {
	Items []Plan
}

func (PlanNothing) isPlan()  {}
func (PlanEvent) isPlan()    {}
func (PlanSend) isPlan()     {}
func (PlanAsk) isPlan()      {}
func (PlanSequence) isPlan() {}

// Event wraps msg as a single-item domain-event plan — the common
// case.
func Event(msg Message) Plan { return PlanEvent{Event: msg} }

// Send wraps a tell instruction as a plan.
func Send(to Address, msg Message, mode SendMode) Plan {
	return PlanSend{Instruction: SendInstruction{To: to, Tell: msg, Mode: mode}}
}

// Ask wraps an ask instruction as a plan.
func Ask(to Address, msg Message, timeoutMs int, onOk func(Message) Message, onErr func(error) Message) Plan {
	return PlanAsk{Instruction: AskInstruction{
		To: to, Ask: msg, TimeoutMs: timeoutMs, OnOk: onOk, OnError: onErr,
	}}
}

// Nothing returns the empty plan.
func Nothing() Plan { return PlanNothing{} }

// Sequence composes items into one ordered plan.
func Sequence(items ...Plan) Plan { return PlanSequence{Items: items} }

// validatePlan walks plan and rejects it (I7) if any leaf message is
// not JSON-serializable, without taking any side effect — the
// validation must happen before interpretation begins so that a
// rejected plan has no partial effects.
func validatePlan(plan Plan) error {
	switch p := plan.(type) {
	case PlanNothing:
		return nil
	case PlanEvent:
		return p.Event.Validate()
	case PlanSend:
		return p.Instruction.Tell.Validate()
	case PlanAsk:
		return p.Instruction.Ask.Validate()
	case PlanSequence:
		for _, item := range p.Items {
			if err := validatePlan(item); err != nil {
				return err
			}
		}
		return nil
	default:
		return ErrInvalidPlan
	}
}
