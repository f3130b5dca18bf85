package bollywood

// Behavior is the set of values an implementer supplies to describe
// one kind of actor (spec.md §3). Behaviors must be pure with respect
// to captured externals: all actor-owned state lives in the context
// value OnStart returns and that OnMessage replaces.
type Behavior interface {
	// OnStart builds the actor's initial context. Called once, while
	// the instance is starting; it transitions to running when OnStart
	// returns without error.
	OnStart(self *PID) (ctx any, err error)

	// OnMessage processes one message and returns a Plan for the
	// runtime to interpret. msg.Ctx is the value OnStart returned; the
	// runtime does not replace it from OnMessage's result.
	OnMessage(msg MessageContext) (Plan, error)

	// OnStop runs after stop has been signalled to each of the
	// instance's children and before the instance is removed from the
	// system. It does not wait for the children to finish stopping.
	OnStop(ctx any) error
}

// MessageContext is what a handler receives for one invocation: the
// message, its own PID, the sender (if any), the actor's current
// context value, and runtime dependencies.
type MessageContext struct {
	Self    *PID
	Sender  *PID
	Message Message
	Ctx     any
	Deps    Deps
}

// Reply builds a response plan tagged with the correlation id of the
// message being handled, recognized by the runtime as an ask response
// rather than fan-out to the state machine and broker (spec.md §4.4).
// Calling Reply on a message that did not arrive via Ask (empty
// CorrelationID) degrades to an ordinary domain event.
func (mc MessageContext) Reply(payload any, msgType string) Plan {
	reply := NewMessage(msgType, payload).WithCorrelationID(mc.Message.CorrelationID)
	return Event(reply)
}

// Deps are the runtime capabilities a handler may use without
// reaching for package-level globals (the runtime keeps none, per
// spec.md §9's "global singletons" design note).
type Deps struct {
	System *System
}

// Producer creates a fresh Behavior instance; System.Spawn calls it
// exactly once per spawn.
type Producer func() Behavior

// funcBehavior adapts three plain functions into a Behavior, for
// actors simple enough not to need a dedicated type — mirrors the
// teacher's Producer-returns-an-Actor shape while letting callers skip
// boilerplate for trivial behaviors.
type funcBehavior struct {
	onStart   func(self *PID) (any, error)
	onMessage func(MessageContext) (Plan, error)
	onStop    func(any) error
}

func (f *funcBehavior) OnStart(self *PID) (any, error) {
	if f.onStart == nil {
		return nil, nil
	}
	return f.onStart(self)
}

func (f *funcBehavior) OnMessage(mc MessageContext) (Plan, error) {
	return f.onMessage(mc)
}

func (f *funcBehavior) OnStop(ctx any) error {
	if f.onStop == nil {
		return nil
	}
	return f.onStop(ctx)
}

// BehaviorFunc builds a Behavior from handler functions, for actors
// that need no onStart/onStop work.
func BehaviorFunc(onMessage func(MessageContext) (Plan, error)) Behavior {
	return &funcBehavior{onMessage: onMessage}
}

// NewFuncBehavior builds a Behavior from all three lifecycle hooks.
func NewFuncBehavior(
	onStart func(self *PID) (any, error),
	onMessage func(MessageContext) (Plan, error),
	onStop func(any) error,
) Behavior {
	return &funcBehavior{onStart: onStart, onMessage: onMessage, onStop: onStop}
}

// Props configures how System.Spawn constructs and supervises an
// actor.
type Props struct {
	Producer    Producer
	ID          string // explicit id; empty means auto-generate
	Ephemeral   bool
	Mailbox     MailboxConfig
	Supervision *SupervisionStrategy
}

// NewProps builds Props with the default mailbox configuration.
func NewProps(producer Producer) *Props {
	if producer == nil {
		panic("bollywood: producer cannot be nil")
	}
	return &Props{Producer: producer, Mailbox: DefaultMailboxConfig()}
}

// WithID sets an explicit actor id.
func (p *Props) WithID(id string) *Props { p.ID = id; return p }

// WithEphemeral marks the spawned PID ephemeral (removed on
// termination, per spec.md §3).
func (p *Props) WithEphemeral() *Props { p.Ephemeral = true; return p }

// WithMailbox overrides the mailbox configuration.
func (p *Props) WithMailbox(cfg MailboxConfig) *Props { p.Mailbox = cfg; return p }

// WithSupervision attaches a restart/stop/escalate policy.
func (p *Props) WithSupervision(s *SupervisionStrategy) *Props { p.Supervision = s; return p }
