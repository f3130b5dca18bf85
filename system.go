package bollywood

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// System is the runtime root: it owns the actor registry, the
// cross-cutting services every instance shares (interceptors,
// correlations, dead letters, supervision), and the well-known actors
// (event broker, name directory) spawned at Start (spec.md §6).
type System struct {
	mu        sync.RWMutex
	instances map[string]*instance // PID.ID -> instance
	running   bool

	log *slog.Logger

	interceptors *Chain
	correlations *CorrelationManager
	deadLetters  *DeadLetterQueue
	supervisor   *Supervisor

	config SystemConfig

	brokerPID    *PID
	directoryPID *PID

	shutdownHooks []func()
}

// NewSystem builds a System from cfg, wiring the interceptor chain,
// correlation manager, dead-letter queue and supervisor but not
// starting anything — call Start to spawn the well-known actors.
func NewSystem(cfg SystemConfig) *System {
	cfg = cfg.withDefaults()

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	sys := &System{
		instances:    make(map[string]*instance),
		log:          log,
		interceptors: NewChain(log),
		correlations: NewCorrelationManager(),
		deadLetters:  NewDeadLetterQueue(cfg.DeadLetterCapacity, cfg.DeadLetterTTL),
		config:       cfg,
	}
	sys.supervisor = NewSupervisor(sys, log)
	return sys
}

// Start brings the system up: enables dead-letter cleanup and spawns
// the well-known event broker and name directory actors (§4.5, §4.6).
func (sys *System) Start() error {
	sys.mu.Lock()
	if sys.running {
		sys.mu.Unlock()
		return nil
	}
	sys.running = true
	sys.mu.Unlock()

	sys.deadLetters.StartCleanup(sys.config.DeadLetterCleanupInterval)

	brokerPID, err := sys.Spawn(NewProps(NewEventBrokerBehavior).WithID(WellKnownBroker), nil)
	if err != nil {
		return fmt.Errorf("bollywood: failed to start event broker: %w", err)
	}
	sys.brokerPID = brokerPID

	directoryPID, err := sys.Spawn(NewProps(NewDirectoryBehavior).WithID(WellKnownDirectory), nil)
	if err != nil {
		return fmt.Errorf("bollywood: failed to start name directory: %w", err)
	}
	sys.directoryPID = directoryPID

	sys.log.Info("system started", slog.String("broker", brokerPID.String()), slog.String("directory", directoryPID.String()))
	return nil
}

// IsRunning reports whether Start has completed and Stop has not.
func (sys *System) IsRunning() bool {
	sys.mu.RLock()
	defer sys.mu.RUnlock()
	return sys.running
}

// BrokerPID returns the well-known event broker's PID, valid after
// Start.
func (sys *System) BrokerPID() *PID { return sys.brokerPID }

// DirectoryPID returns the well-known name directory's PID, valid
// after Start.
func (sys *System) DirectoryPID() *PID { return sys.directoryPID }

// OnShutdown registers fn to run during Stop, after every actor has
// finished (or the stop timeout elapsed). Stop marks the system
// not-running before the hooks run.
func (sys *System) OnShutdown(fn func()) {
	sys.mu.Lock()
	defer sys.mu.Unlock()
	sys.shutdownHooks = append(sys.shutdownHooks, fn)
}

// Stop drains and stops every actor, cancels outstanding asks, and
// halts background goroutines (dead-letter cleanup). It blocks until
// every instance has finished its OnStop hook or the timeout elapses.
func (sys *System) Stop(timeout time.Duration) error {
	sys.mu.Lock()
	if !sys.running {
		sys.mu.Unlock()
		return nil
	}
	sys.running = false
	targets := make([]*instance, 0, len(sys.instances))
	for _, inst := range sys.instances {
		targets = append(targets, inst)
	}
	sys.mu.Unlock()

	sys.emitSystemEvent("stopping", nil, nil)

	for _, inst := range targets {
		inst.stop()
	}

	deadline := time.Now().Add(timeout)
	for {
		sys.mu.RLock()
		remaining := len(sys.instances)
		sys.mu.RUnlock()
		if remaining == 0 {
			break
		}
		if timeout > 0 && time.Now().After(deadline) {
			sys.log.Warn("system stop timed out waiting for actors", slog.Int("remaining", remaining))
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	sys.correlations.ClearAll("system stopped")
	sys.deadLetters.Stop()

	sys.mu.RLock()
	hooks := append([]func(){}, sys.shutdownHooks...)
	sys.mu.RUnlock()
	for _, h := range hooks {
		h()
	}

	sys.emitSystemEvent("stopped", nil, nil)
	return nil
}

// Spawn starts a new actor instance from props under parent (nil for
// a top-level actor) and returns its PID as soon as the instance's
// goroutine is launched; OnStart runs on that goroutine. An explicit
// Props.ID colliding with a running instance fails with
// ErrDuplicateActorID. Props with no mailbox capacity set get the
// system's configured DefaultMailbox.
func (sys *System) Spawn(props *Props, parent *PID) (*PID, error) {
	if props.Mailbox.Capacity <= 0 {
		withDefault := *props
		withDefault.Mailbox = sys.config.DefaultMailbox
		props = &withDefault
	}

	sys.mu.Lock()
	pid := &PID{ID: props.ID, Ephemeral: props.Ephemeral}
	if pid.ID == "" {
		pid = newPID(props.Ephemeral)
	} else if _, exists := sys.instances[pid.ID]; exists {
		sys.mu.Unlock()
		return nil, ErrDuplicateActorID
	}

	inst := newInstance(sys, pid, props, parent)
	sys.instances[pid.ID] = inst
	sys.mu.Unlock()

	if props.Supervision != nil || parent != nil {
		sys.supervisor.Supervise(pid, parent, props.Supervision)
	}

	if parent != nil {
		sys.mu.Lock()
		if parentInst, ok := sys.instances[parent.ID]; ok {
			parentInst.children[pid.ID] = pid
		}
		sys.mu.Unlock()
	}

	go inst.run()

	return pid, nil
}

// lookupInstance resolves a local address to its running instance.
func (sys *System) lookupInstance(addr Address) (*instance, bool) {
	sys.mu.RLock()
	defer sys.mu.RUnlock()
	inst, ok := sys.instances[addr.Path]
	return inst, ok
}

// Lookup resolves addr to a live PID, without going through the name
// directory (use Ask against DirectoryPID for name-based lookup).
func (sys *System) Lookup(addr Address) (*PID, bool) {
	inst, ok := sys.lookupInstance(addr)
	if !ok {
		return nil, false
	}
	return inst.pid, true
}

// Send delivers msg to addr as a fire-and-forget tell. It returns an
// error if the system is stopped, the target does not exist, or the
// mailbox rejects the message under its overflow policy.
func (sys *System) Send(addr Address, msg Message, sender *PID) error {
	if !sys.IsRunning() {
		return ErrSystemNotRunning
	}
	inst, ok := sys.lookupInstance(addr)
	if !ok {
		sys.deadLetters.Add(DeadLetter{Message: msg, TargetAddress: addr, Reason: "no such actor"})
		return ErrNotFound
	}
	if !inst.enqueue(&envelope{message: msg, sender: sender}) {
		sys.deadLetters.Add(DeadLetter{Message: msg, TargetAddress: addr, Reason: "mailbox full or stopped"})
		return ErrMailboxFull
	}
	return nil
}

// Ask sends msg to addr and blocks until a correlated reply arrives,
// the context is cancelled, or the timeout elapses (§4.3, scenario
// S2).
func (sys *System) Ask(ctx context.Context, addr Address, msg Message, timeout time.Duration) (Message, error) {
	return sys.askAs(ctx, addr, msg, timeout, nil)
}

// askAs is Ask's implementation, tagging the correlation record with
// issuer so a later ClearForActor(issuer, ...) can cancel it. issuer is
// nil for asks made directly against System rather than from within a
// running actor (interpretAsk passes the asking actor's PID).
func (sys *System) askAs(ctx context.Context, addr Address, msg Message, timeout time.Duration, issuer *PID) (Message, error) {
	if !sys.IsRunning() {
		return Message{}, ErrSystemNotRunning
	}
	if timeout <= 0 {
		timeout = sys.config.DefaultAskTimeout
	}

	id := sys.correlations.NewID()
	resultCh, err := sys.correlations.Register(id, timeout, issuer)
	if err != nil {
		return Message{}, err
	}
	tagged := msg.WithCorrelationID(id)

	if err := sys.Send(addr, tagged, nil); err != nil {
		sys.correlations.Fail(id, err)
		<-resultCh
		return Message{}, err
	}

	select {
	case res := <-resultCh:
		if res.err != nil {
			return Message{}, res.err
		}
		return res.msg, nil
	case <-ctx.Done():
		sys.correlations.Fail(id, ctx.Err())
		return Message{}, ctx.Err()
	}
}

// interpret walks plan in order, applying each instruction's effect
// (§4.2). A PlanEvent whose CorrelationID matches a pending ask is
// recognized here, at interpretation time, as that ask's response —
// it resolves the correlation instead of fanning out to a state
// machine or the broker.
func (sys *System) interpret(inst *instance, plan Plan) {
	switch p := plan.(type) {
	case PlanNothing:
		return

	case PlanEvent:
		sys.interpretEvent(inst, p.Event)

	case PlanSend:
		sys.interpretSend(inst, p.Instruction)

	case PlanAsk:
		sys.interpretAsk(inst, p.Instruction)

	case PlanSequence:
		for _, item := range p.Items {
			sys.interpret(inst, item)
		}
	}
}

func (sys *System) interpretEvent(inst *instance, event Message) {
	if event.CorrelationID != "" && sys.correlations.isPending(event.CorrelationID) {
		sys.correlations.Resolve(event.CorrelationID, event)
		return
	}

	if sm, ok := inst.ctx.(interface{ ApplyEvent(Message) }); ok {
		sm.ApplyEvent(event)
	}

	if sys.brokerPID != nil {
		topic := inst.pid.String() + "." + event.Type
		_ = sys.Send(NewAddress(sys.brokerPID.String()), NewMessage(MsgPublish, PublishPayload{
			Topic: topic, Event: event, PublisherID: inst.pid,
		}), inst.pid)
	}
}

func (sys *System) interpretSend(inst *instance, instr SendInstruction) {
	err := sys.Send(instr.To, instr.Tell, inst.pid)
	if err == nil {
		return
	}

	switch instr.Mode {
	case Retry3:
		for attempt := 0; attempt < 3 && err != nil; attempt++ {
			time.Sleep(10 * time.Millisecond)
			err = sys.Send(instr.To, instr.Tell, inst.pid)
		}
		if err != nil {
			sys.deadLetters.Add(DeadLetter{
				Message: instr.Tell, TargetAddress: instr.To,
				Reason: "retry exhausted", Attempts: 3, Cause: err,
			})
		}
	case Guaranteed:
		sys.deadLetters.Add(DeadLetter{
			Message: instr.Tell, TargetAddress: instr.To,
			Reason: "guaranteed delivery failed", Cause: err,
		})
	default: // FireAndForget
	}
}

func (sys *System) interpretAsk(inst *instance, instr AskInstruction) {
	go func() {
		resp, err := sys.askAs(context.Background(), instr.To, instr.Ask, instr.timeout(), inst.pid)
		var followUp Message
		if err != nil {
			if instr.OnError == nil {
				return
			}
			followUp = instr.OnError(err)
		} else {
			if instr.OnOk == nil {
				return
			}
			followUp = instr.OnOk(resp)
		}
		_ = sys.Send(NewAddress(inst.pid.String()), followUp, nil)
	}()
}

// reportFailure routes an actor failure to the supervisor for the
// standard restart/stop/escalate decision (§4.10).
func (sys *System) reportFailure(pid *PID, cause error) {
	sys.mu.RLock()
	inst, ok := sys.instances[pid.ID]
	sys.mu.RUnlock()

	var props *Props
	if ok {
		props = inst.props
	}
	sys.supervisor.Decide(pid, props, cause)
}

// restart replaces a failed instance with a fresh one built from the
// same props, preserving its PID and position in the supervision
// tree. A nil props (reached when an escalated failure's original
// props were not threaded through to the parent) cannot be restarted;
// the instance is stopped and removed instead.
func (sys *System) restart(pid *PID, props *Props) {
	sys.mu.Lock()
	old, ok := sys.instances[pid.ID]
	sys.mu.Unlock()

	if props == nil {
		sys.log.Warn("cannot restart actor without props, stopping instead", slog.String("actor", pid.ID))
		if ok {
			old.stop()
		}
		return
	}

	var parent *PID
	if ok {
		parent = old.parent
		old.stop()
	}

	inst := newInstance(sys, pid, props, parent)
	sys.mu.Lock()
	sys.instances[pid.ID] = inst
	sys.mu.Unlock()

	go inst.run()
}

// stopActor signals a single instance to stop, used when a parent
// with running children is being torn down. It returns without
// waiting for the instance to finish.
func (sys *System) stopActor(pid *PID) {
	sys.mu.RLock()
	inst, ok := sys.instances[pid.ID]
	sys.mu.RUnlock()
	if ok {
		inst.stop()
	}
}

// remove deletes pid's instance from the registry, called once its
// OnStop hook has completed (I6).
func (sys *System) remove(pid *PID) {
	sys.mu.Lock()
	defer sys.mu.Unlock()
	delete(sys.instances, pid.ID)
	sys.supervisor.Forget(pid)
}

// emitSystemEvent publishes one of the runtime's own lifecycle events
// (actorSpawned, actorStopping, actorStopped, messageDelivered,
// messageRejected, deadLettered, supervisorRestart,
// supervisorEscalate, stopping, stopped) onto the well-known broker's
// "system.<eventType>" topic, per spec.md §6. It is a best-effort
// publish: before the broker itself is up, or once the system is
// shutting it down, events are simply dropped.
func (sys *System) emitSystemEvent(eventType string, pid *PID, payload any) {
	if sys.brokerPID == nil {
		return
	}
	actorID := ""
	if pid != nil {
		actorID = pid.String()
	}
	event := NewMessage("system."+eventType, map[string]any{"actor": actorID, "payload": payload})
	_ = sys.Send(NewAddress(sys.brokerPID.String()), NewMessage(MsgPublish, PublishPayload{
		Topic: "system." + eventType, Event: event,
	}), nil)
}

// SubscribeToSystemEvents registers subscriber on the given system
// event topic pattern (e.g. "system.*" for everything), a thin
// convenience wrapper over Send(MsgSubscribe).
func (sys *System) SubscribeToSystemEvents(pattern string, subscriber *PID) error {
	if sys.brokerPID == nil {
		return ErrSystemNotRunning
	}
	return sys.Send(NewAddress(sys.brokerPID.String()), NewMessage(MsgSubscribe, SubscribePayload{
		Topic: pattern, Subscriber: subscriber,
	}), subscriber)
}

// Interceptors exposes the system-wide interceptor chain so callers
// can register retry, circuit-breaker, and validation stages (§4.8).
func (sys *System) Interceptors() *Chain { return sys.interceptors }

// DeadLetters exposes the dead-letter queue for inspection and manual
// retry (§4.9).
func (sys *System) DeadLetters() *DeadLetterQueue { return sys.deadLetters }

// SupervisorTree exposes the supervision tree for direct policy wiring
// outside of Props.WithSupervision.
func (sys *System) SupervisorTree() *Supervisor { return sys.supervisor }
