package kernel

// Task is a single cooperative activity (a spawned process routine). It
// runs in its own goroutine, but the Executor only ever lets one task's
// goroutine hold the "step" token at a time: resuming a task means
// handing it the token and blocking until it either suspends again
// (awaiting something) or finishes, which is what makes the whole
// simulation single-threaded in effect despite being built from
// goroutines.
type Task struct {
	id   int64
	step chan struct{} // executor -> task: "you may run now"
	idle chan struct{} // task -> executor: "I've suspended or finished"

	done   bool
	result any // the value handed to the task when it was last resumed

	// suspend is set by the task body (via TaskHandle) just before it
	// blocks, describing what the executor should register on its
	// behalf once the task goes idle. nil means the task finished.
	suspend *suspendRequest
}

type suspendRequest struct {
	awaits []AwaitKey // registers one awaiter per key; whichever resolves first wins, the rest are forgotten
	timer  *float64   // non-nil: also schedule a timer at this absolute time
}

// TaskHandle is the API a running task body uses to suspend itself. It is
// only valid for use from inside the goroutine the Executor spawned for
// that task.
type TaskHandle struct {
	task *Task
	exec *Executor
}

// AwaitEvent suspends the calling task until an event matching key
// arrives, returning that event. The task is not resumed until the
// dispatcher finds a match; there is no spurious wake-up.
func (h *TaskHandle) AwaitEvent(key AwaitKey) Event {
	req := &suspendRequest{awaits: []AwaitKey{key}}
	return h.suspend(req).(Event)
}

// AwaitTimer suspends the calling task until virtual time reaches at,
// returning once the timer fires. Used to implement sleep().
func (h *TaskHandle) AwaitTimer(at float64) {
	req := &suspendRequest{timer: &at}
	h.suspend(req)
}

// AwaitEventOrTimeout suspends until either an event matching key
// arrives or virtual time reaches deadline, whichever comes first. ok is
// false on timeout.
func (h *TaskHandle) AwaitEventOrTimeout(key AwaitKey, deadline float64) (ev Event, ok bool) {
	req := &suspendRequest{awaits: []AwaitKey{key}, timer: &deadline}
	res := h.suspend(req)
	if e, isEvent := res.(Event); isEvent {
		return e, true
	}
	return Event{}, false
}

// Select suspends until whichever of keys resolves first, returning the
// matched event and the index of the key it matched. Used where more
// than one distinct event kind can race to resolve the same logical
// operation (e.g. a storage request racing its own completion against a
// crash interrupt).
func (h *TaskHandle) Select(keys []AwaitKey) (ev Event, idx int) {
	req := &suspendRequest{awaits: keys}
	res := h.suspend(req).(Event)
	for i, k := range keys {
		if k.matches(res) {
			return res, i
		}
	}
	return res, -1
}

// SelectOrTimeout is Select plus a deadline; ok is false on timeout.
func (h *TaskHandle) SelectOrTimeout(keys []AwaitKey, deadline float64) (ev Event, idx int, ok bool) {
	req := &suspendRequest{awaits: keys, timer: &deadline}
	res := h.suspend(req)
	e, isEvent := res.(Event)
	if !isEvent {
		return Event{}, -1, false
	}
	for i, k := range keys {
		if k.matches(e) {
			return e, i, true
		}
	}
	return e, -1, true
}

// Spawn starts a new concurrent task running fn, returning immediately;
// it does not suspend the calling task.
func (h *TaskHandle) Spawn(fn func(h *TaskHandle)) *Task {
	return h.exec.Spawn(fn)
}

func (h *TaskHandle) suspend(req *suspendRequest) any {
	h.task.suspend = req
	h.task.idle <- struct{}{}
	<-h.task.step
	return h.task.result
}

// Executor runs task goroutines to quiescence: given a task ready to
// run (freshly spawned, or just resumed with a value), it hands over the
// step token and waits for the task to go idle again, then moves on to
// the next ready task, repeating until none remain.
type Executor struct {
	nextID int64
	tasks  map[int64]*Task
	ready  []*readyTask
}

type readyTask struct {
	task  *Task
	value any
}

// NewExecutor returns an empty executor.
func NewExecutor() *Executor {
	return &Executor{tasks: make(map[int64]*Task)}
}

// Spawn creates a new task running fn and marks it ready to start; it
// does not run until the next DrainReady call.
func (e *Executor) Spawn(fn func(h *TaskHandle)) *Task {
	e.nextID++
	t := &Task{
		id:   e.nextID,
		step: make(chan struct{}),
		idle: make(chan struct{}),
	}
	e.tasks[t.id] = t
	h := &TaskHandle{task: t, exec: e}
	go func() {
		<-t.step
		fn(h)
		t.done = true
		t.idle <- struct{}{}
	}()
	e.ready = append(e.ready, &readyTask{task: t})
	return t
}

// Resume marks a suspended task ready to continue with the given value
// (typically the Event it was awaiting); it does not run until the next
// DrainReady call.
func (e *Executor) Resume(id int64, value any) {
	t, ok := e.tasks[id]
	if !ok {
		return
	}
	e.ready = append(e.ready, &readyTask{task: t, value: value})
}

// DrainReady runs every ready task to its next suspension point,
// including any new tasks spawned synchronously during this drain,
// looping until the ready queue is empty. It returns the suspend request
// of every task that just suspended (tasks that finished are omitted and
// removed from the executor), so the caller (the Dispatcher) can register
// their awaiters/timers.
func (e *Executor) DrainReady() []TaskSuspension {
	var suspensions []TaskSuspension
	for len(e.ready) > 0 {
		rt := e.ready[0]
		e.ready = e.ready[1:]
		t := rt.task
		t.result = rt.value
		t.step <- struct{}{}
		<-t.idle
		if t.done {
			delete(e.tasks, t.id)
			continue
		}
		suspensions = append(suspensions, TaskSuspension{TaskID: t.id, Request: t.suspend})
		t.suspend = nil
	}
	return suspensions
}

// TaskSuspension describes what a task asked to wait for when it last
// went idle.
type TaskSuspension struct {
	TaskID  int64
	Request *suspendRequest
}

// Awaits returns every event key this suspension is waiting on. An empty
// result means the suspension is a pure timer wait.
func (s TaskSuspension) Awaits() []AwaitKey {
	if s.Request == nil {
		return nil
	}
	return s.Request.awaits
}

// IsTimer reports whether this suspension is (at least in part) waiting
// on a timer deadline, and returns it.
func (s TaskSuspension) IsTimer() (float64, bool) {
	if s.Request != nil && s.Request.timer != nil {
		return *s.Request.timer, true
	}
	return 0, false
}
