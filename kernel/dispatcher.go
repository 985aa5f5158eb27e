package kernel

// Handler is the callback invoked when an event arrives at a component
// and no task is currently awaiting it. Handlers run synchronously on the
// dispatcher's single logical thread; they may schedule further events,
// start timers, or spawn tasks, all of which are picked up by the next
// DrainReady before the dispatcher advances time again.
type Handler func(Event)

// Kernel is the deterministic discrete-event core: it owns the clock, the
// event and timer queues, the awaiter table, and the task executor, and
// implements the single Step algorithm everything else is built on.
//
// On tie, a pending timer fires before a pending event scheduled for the
// same virtual time: sleep/timeout deadlines are expected to resolve at
// or before anything racing against them, which matches a "timeout of
// exactly X" reading as "fires no later than X" rather than "strictly
// after".
type Kernel struct {
	Registry *Registry

	clock    *Clock
	events   *EventQueue
	timers   *TimerQueue
	awaiters *AwaiterTable
	exec     *Executor

	handlers map[ComponentID]Handler

	taskOwner     map[int64]ComponentID
	pendingAwaits map[int64][]AwaitKey // all keys currently registered for a task; resolving one forgets the rest
	pendingTimer  map[int64]int64      // taskID -> timerID, only when an await also has a deadline
	timerOwner    map[int64]int64      // timerID -> taskID
}

// NewKernel builds a kernel seeded for reproducibility.
func NewKernel(seed uint64) *Kernel {
	return &Kernel{
		Registry:      NewRegistry(),
		clock:         NewClock(seed),
		events:        NewEventQueue(),
		timers:        NewTimerQueue(),
		awaiters:      NewAwaiterTable(),
		exec:          NewExecutor(),
		handlers:      make(map[ComponentID]Handler),
		taskOwner:     make(map[int64]ComponentID),
		pendingAwaits: make(map[int64][]AwaitKey),
		pendingTimer:  make(map[int64]int64),
		timerOwner:    make(map[int64]int64),
	}
}

// Clock exposes the virtual clock/RNG to callers building events (e.g.
// the network model needs Now() and Rand() to compute delays).
func (k *Kernel) Clock() *Clock { return k.clock }

// Now is shorthand for Clock().Now().
func (k *Kernel) Now() float64 { return k.clock.Now() }

// RegisterHandler installs (or replaces) the handler invoked for events
// addressed to id when no awaiter claims them first.
func (k *Kernel) RegisterHandler(id ComponentID, h Handler) {
	k.handlers[id] = h
}

// Schedule enqueues an event, returning its ID.
func (k *Kernel) Schedule(delay float64, src, dst ComponentID, kind string, payload any) int64 {
	if delay < 0 {
		panic("kernel: negative delay")
	}
	return k.events.Schedule(k.clock.Now()+delay, src, dst, kind, payload)
}

// ScheduleKeyed is Schedule plus a correlation key for awaiter matching.
func (k *Kernel) ScheduleKeyed(delay float64, src, dst ComponentID, kind string, key uint64, payload any) int64 {
	if delay < 0 {
		panic("kernel: negative delay")
	}
	return k.events.ScheduleKeyed(k.clock.Now()+delay, src, dst, kind, key, payload)
}

// ScheduleOrdered is Schedule, but additionally enforces FIFO emission
// order for every event scheduled from the same src: see
// EventQueue.ScheduleOrdered.
func (k *Kernel) ScheduleOrdered(delay float64, src, dst ComponentID, kind string, payload any) int64 {
	if delay < 0 {
		panic("kernel: negative delay")
	}
	return k.events.ScheduleOrdered(k.clock.Now()+delay, src, dst, kind, payload)
}

// ScheduleOrderedKeyed is ScheduleOrdered plus a correlation key.
func (k *Kernel) ScheduleOrderedKeyed(delay float64, src, dst ComponentID, kind string, key uint64, payload any) int64 {
	if delay < 0 {
		panic("kernel: negative delay")
	}
	return k.events.ScheduleOrderedKeyed(k.clock.Now()+delay, src, dst, kind, key, payload)
}

// CancelEvent cancels a previously-scheduled event by ID.
func (k *Kernel) CancelEvent(id int64) { k.events.Cancel(id) }

// SpawnTask starts a new task owned by the given component (used to
// attribute pending timers to a component for bulk cancellation on
// crash/shutdown).
func (k *Kernel) SpawnTask(owner ComponentID, fn func(h *TaskHandle)) *Task {
	t := k.exec.Spawn(fn)
	k.taskOwner[t.id] = owner
	return t
}

// CancelComponentTimers cancels every pending timer owned by id. Used
// when a node crashes or shuts down so no stale sleep/timeout wake-up
// fires for it afterwards; tasks left waiting on those timers (or on an
// awaiter registered alongside them) simply never resume, mirroring a
// crashed component's in-flight activities being abandoned.
func (k *Kernel) CancelComponentTimers(id ComponentID) {
	k.timers.CancelOwnedBy(id)
}

// CancelComponentEvents cancels every pending event whose destination is
// id, e.g. network deliveries queued for a node that just crashed.
func (k *Kernel) CancelComponentEvents(id ComponentID) {
	k.events.CancelWhere(func(e Event) bool { return e.Dst == id })
}

// DrainReady runs every currently-ready task to its next suspension
// point without advancing virtual time. Step always does this before
// and after popping a timer/event; it is exposed directly for callers
// that need to start a freshly-spawned task (so it can register its
// awaiters) without also committing to resolving the next scheduled
// timer or event.
func (k *Kernel) DrainReady() {
	k.processSuspensions(k.exec.DrainReady())
}

// Step runs the dispatcher's core algorithm once: drain ready tasks,
// advance the clock to the next timer or event (whichever is earlier),
// resolve it, then drain ready tasks again. It returns false when there
// is nothing left to advance to.
func (k *Kernel) Step() bool {
	k.processSuspensions(k.exec.DrainReady())

	timer, hasTimer := k.timers.PeekNext()
	event, hasEvent := k.events.PeekNext()
	if !hasTimer && !hasEvent {
		return false
	}

	if hasTimer && (!hasEvent || timer.Time <= event.Time) {
		timer, _ = k.timers.PopNext()
		k.clock.advance(timer.Time)
		k.fireTimer(timer)
	} else {
		event, _ = k.events.PopNext()
		k.clock.advance(event.Time)
		k.fireEvent(event)
	}

	k.processSuspensions(k.exec.DrainReady())
	return true
}

// StepUntilNoEvents runs Step repeatedly until it returns false, i.e.
// until the simulation reaches quiescence.
func (k *Kernel) StepUntilNoEvents() {
	for k.Step() {
	}
}

// StepForDuration is StepUntilTime with a deadline d after the time this
// call started, so the clock ends exactly d later.
func (k *Kernel) StepForDuration(d float64) {
	deadline := k.clock.Now() + d
	k.StepUntilTime(deadline)
}

// StepUntilTime runs Step repeatedly until the clock reaches deadline, the
// next timer or event lies beyond deadline, or the simulation goes quiet;
// it then advances the clock to deadline if it is still short of it.
func (k *Kernel) StepUntilTime(deadline float64) {
	for k.clock.Now() < deadline {
		timer, hasTimer := k.timers.PeekNext()
		event, hasEvent := k.events.PeekNext()
		if !hasTimer && !hasEvent {
			break
		}
		next := event.Time
		if hasTimer && (!hasEvent || timer.Time <= event.Time) {
			next = timer.Time
		}
		if next > deadline {
			break
		}
		if !k.Step() {
			break
		}
	}
	if k.clock.Now() < deadline {
		k.clock.advance(deadline)
	}
}

// Steps runs Step exactly n times (or until quiescence, if sooner).
func (k *Kernel) Steps(n int) {
	for i := 0; i < n; i++ {
		if !k.Step() {
			return
		}
	}
}

func (k *Kernel) fireTimer(timer Timer) {
	taskID, ok := k.timerOwner[timer.ID]
	if !ok {
		return
	}
	delete(k.timerOwner, timer.ID)
	k.forgetAwaits(taskID)
	delete(k.pendingTimer, taskID)
	k.exec.Resume(taskID, nil)
}

func (k *Kernel) fireEvent(event Event) {
	if taskID, ok := k.awaiters.LookupAndConsume(event); ok {
		k.forgetAwaits(taskID)
		if timerID, ok := k.pendingTimer[taskID]; ok {
			k.timers.Cancel(timerID)
			delete(k.timerOwner, timerID)
			delete(k.pendingTimer, taskID)
		}
		k.exec.Resume(taskID, event)
		return
	}
	if h, ok := k.handlers[event.Dst]; ok {
		h(event)
	}
}

// forgetAwaits removes every awaiter key still registered for taskID
// (other than the one that just matched, which LookupAndConsume already
// removed), so a task racing several event kinds doesn't leave stale
// awaiters behind once one of them wins.
func (k *Kernel) forgetAwaits(taskID int64) {
	keys, ok := k.pendingAwaits[taskID]
	if !ok {
		return
	}
	delete(k.pendingAwaits, taskID)
	for _, key := range keys {
		k.awaiters.Forget(key)
	}
}

func (k *Kernel) processSuspensions(suspensions []TaskSuspension) {
	for _, s := range suspensions {
		awaitKeys := s.Awaits()
		deadline, hasTimer := s.IsTimer()

		if len(awaitKeys) > 0 {
			for _, key := range awaitKeys {
				k.awaiters.Register(key, s.TaskID)
			}
			k.pendingAwaits[s.TaskID] = awaitKeys
		}
		if hasTimer {
			owner := k.taskOwner[s.TaskID]
			timerID := k.timers.Schedule(deadline, owner)
			k.timerOwner[timerID] = s.TaskID
			if len(awaitKeys) > 0 {
				k.pendingTimer[s.TaskID] = timerID
			}
		}
	}
}
