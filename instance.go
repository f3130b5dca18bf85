package bollywood

import (
	"log/slog"
	"runtime/debug"
	"sync/atomic"
)

// Status is an actor instance's lifecycle stage (spec.md §3).
type Status int32

const (
	StatusIdle Status = iota
	StatusStarting
	StatusRunning
	StatusStopping
	StatusStopped
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusStopping:
		return "stopping"
	case StatusStopped:
		return "stopped"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// instance is the running copy of one spawned actor: its mailbox, its
// Behavior, and the single goroutine that processes messages from it
// serially (I1, I2). It generalizes the teacher's process type with
// the interceptor chain, supervision hooks, and plan interpretation.
type instance struct {
	system *System
	pid    *PID
	props  *Props

	behavior Behavior
	ctx      any

	mbox   *mailbox
	stopCh chan struct{}
	status atomic.Int32

	parent   *PID
	children map[string]*PID

	log *slog.Logger
}

func newInstance(sys *System, pid *PID, props *Props, parent *PID) *instance {
	return &instance{
		system:   sys,
		pid:      pid,
		props:    props,
		behavior: props.Producer(),
		mbox:     newMailbox(props.Mailbox),
		stopCh:   make(chan struct{}),
		parent:   parent,
		children: make(map[string]*PID),
		log:      sys.log.With(slog.String("actor", pid.String())),
	}
}

func (inst *instance) setStatus(s Status) { inst.status.Store(int32(s)) }
func (inst *instance) getStatus() Status  { return Status(inst.status.Load()) }

// enqueue delivers env per the mailbox's overflow policy. Returns
// false if the mailbox refused the message (RejectSend at capacity)
// or the instance is already stopped.
func (inst *instance) enqueue(env *envelope) bool {
	if inst.getStatus() >= StatusStopping {
		return false
	}
	return inst.mbox.enqueue(env)
}

// run is the instance's single consumer goroutine. One actor never
// sees two handler invocations concurrently (the runtime's core
// concurrency guarantee, §5).
func (inst *instance) run() {
	inst.setStatus(StatusStarting)

	defer func() {
		if r := recover(); r != nil {
			inst.log.Error("panic during onStart", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			inst.setStatus(StatusError)
			inst.system.reportFailure(inst.pid, panicToError(r))
		}
	}()

	ctx, err := inst.behavior.OnStart(inst.pid)
	if err != nil {
		inst.log.Error("onStart failed", slog.Any("error", err))
		inst.setStatus(StatusError)
		inst.system.reportFailure(inst.pid, err)
		return
	}
	inst.ctx = ctx
	inst.setStatus(StatusRunning)
	inst.system.emitSystemEvent("actorSpawned", inst.pid, nil)

	inst.loop()
}

func (inst *instance) loop() {
	for {
		env, ok := inst.mbox.dequeue(inst.stopCh)
		if !ok {
			inst.drainAndFinish()
			return
		}
		inst.process(env)

		select {
		case <-inst.stopCh:
			inst.drainAndFinish()
			return
		default:
		}
	}
}

// process runs one envelope through beforeReceive, OnMessage,
// interpretation, and afterProcess, recovering from any panic so a
// single bad message cannot take down the instance's goroutine
// without going through supervision.
func (inst *instance) process(env *envelope) {
	defer func() {
		if r := recover(); r != nil {
			err := panicToError(r)
			inst.log.Error("panic in handler", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			inst.handleFailure(env, err)
		}
	}()

	chain := inst.system.interceptors
	filtered, err := chain.RunBeforeReceive(inst.pid, env.message)
	if err != nil {
		inst.handleFailure(env, err)
		return
	}
	if filtered == nil {
		return // filtered silently (e.g. FilterOnFail validation)
	}
	msg := *filtered

	plan, err := inst.behavior.OnMessage(MessageContext{
		Self: inst.pid, Sender: env.sender, Message: msg, Ctx: inst.ctx,
		Deps: Deps{System: inst.system},
	})
	if err != nil {
		inst.handleFailure(env, err)
		return
	}

	if err := validatePlan(plan); err != nil {
		inst.log.Warn("rejected invalid plan", slog.Any("error", err))
		inst.system.emitSystemEvent("messageRejected", inst.pid, msg)
		return
	}

	inst.system.interpret(inst, plan)
	chain.RunAfterProcess(inst.pid, msg, plan)
	inst.system.emitSystemEvent("messageDelivered", inst.pid, msg)
}

func (inst *instance) handleFailure(env *envelope, cause error) {
	if plan, handled := inst.system.interceptors.RunOnError(inst.pid, env.message, cause); handled {
		inst.system.interpret(inst, plan)
		return
	}
	inst.system.reportFailure(inst.pid, cause)
}

// stop signals the run loop to exit after finishing its current
// message.
func (inst *instance) stop() {
	if inst.getStatus() >= StatusStopping {
		return
	}
	inst.setStatus(StatusStopping)
	inst.system.emitSystemEvent("actorStopping", inst.pid, nil)
	close(inst.stopCh)
}

func (inst *instance) drainAndFinish() {
	leftover := inst.mbox.drain()
	for _, env := range leftover {
		inst.system.deadLetters.Add(DeadLetter{
			Message: env.message, TargetAddress: NewAddress(inst.pid.String()),
			Reason: "stopped",
		})
	}
	// Cancel any asks this actor itself issued and is still awaiting,
	// without touching any other actor's in-flight asks.
	inst.system.correlations.ClearForActor(inst.pid, "actor "+inst.pid.String()+" stopped")
	inst.finish()
}

func (inst *instance) finish() {
	for _, child := range inst.children {
		inst.system.stopActor(child)
	}
	if err := inst.behavior.OnStop(inst.ctx); err != nil {
		inst.log.Warn("onStop returned error", slog.Any("error", err))
	}
	inst.setStatus(StatusStopped)
	inst.system.emitSystemEvent("actorStopped", inst.pid, nil)

	// After a supervisor restart the registry already holds the
	// replacement instance under the same PID; leave it in place.
	inst.system.mu.RLock()
	current := inst.system.instances[inst.pid.ID] == inst
	inst.system.mu.RUnlock()
	if current {
		inst.system.remove(inst.pid)
	}
}
