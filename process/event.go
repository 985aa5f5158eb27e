package process

// Kind constants for the self-addressed events a Context schedules on
// behalf of a process: a named timer firing, and a spawned activity
// finishing. Both are ordinary kernel events delivered to the owning
// node's own ComponentID, so they go through the node's normal handler
// dispatch (and can be raced against by an explicit awaiter, same as
// any other event).
const (
	KindTimerFired       = "TimerFired"
	KindActivityFinished = "ActivityFinished"
)

// TimerFired is the payload of a KindTimerFired event.
type TimerFired struct {
	Proc string
	Name string
}

// ActivityFinished is the payload of a KindActivityFinished event,
// emitted when a Context.Spawn'd activity's function returns.
type ActivityFinished struct {
	Proc string
}
