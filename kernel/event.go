package kernel

import (
	"container/heap"
	"fmt"
)

// orderedEpsilon tolerates floating-point noise between two times computed
// for ordered emission from the same source: a regression within this
// bound is clamped forward rather than treated as a monotonicity
// violation.
const orderedEpsilon = 1e-9

// Event is a scheduled occurrence: at Time, Payload is either consumed by
// a waiting Awaiter (matched on Kind/Key/Src) or, if nothing is waiting,
// delivered to Dst's registered handler.
type Event struct {
	ID      int64
	Time    float64
	Src     ComponentID
	Dst     ComponentID
	Kind    string
	Key     uint64 // correlation key, meaningful only for some Kinds
	HasKey  bool
	Payload any
}

// eventQueueItem is the heap element; it exists separately from Event so
// cancellation can be marked without mutating anything observers might
// hold a copy of.
type eventQueueItem struct {
	event     Event
	cancelled bool
	index     int
}

type eventHeap []*eventQueueItem

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].event.Time != h[j].event.Time {
		return h[i].event.Time < h[j].event.Time
	}
	return h[i].event.ID < h[j].event.ID
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *eventHeap) Push(x any) {
	item := x.(*eventQueueItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// EventQueue is a (time, id)-ordered priority queue of Events supporting
// lazy cancellation: cancelled items are skipped when popped rather than
// removed from the heap immediately, which keeps cancellation O(1).
type EventQueue struct {
	heap   eventHeap
	byID   map[int64]*eventQueueItem
	nextID int64

	lastOrdered map[ComponentID]float64
}

// NewEventQueue returns an empty event queue.
func NewEventQueue() *EventQueue {
	return &EventQueue{
		byID:        make(map[int64]*eventQueueItem),
		lastOrdered: make(map[ComponentID]float64),
	}
}

// Schedule enqueues an event at the given absolute time, returning the
// assigned event ID (used later for cancellation or as a correlation
// key). Negative delay-derived times are a programmer error and panic at
// the call site that computed them, not here; Schedule only requires
// Time to be non-negative-from-now, enforced by its caller.
func (q *EventQueue) Schedule(time float64, src, dst ComponentID, kind string, payload any) int64 {
	q.nextID++
	id := q.nextID
	item := &eventQueueItem{event: Event{
		ID:      id,
		Time:    time,
		Src:     src,
		Dst:     dst,
		Kind:    kind,
		Payload: payload,
	}}
	q.byID[id] = item
	heap.Push(&q.heap, item)
	return id
}

// ScheduleKeyed is Schedule plus an explicit correlation key, used for
// events an Awaiter might be registered against by (Dst, Kind, Key).
func (q *EventQueue) ScheduleKeyed(time float64, src, dst ComponentID, kind string, key uint64, payload any) int64 {
	id := q.Schedule(time, src, dst, kind, payload)
	item := q.byID[id]
	item.event.Key = key
	item.event.HasKey = true
	return id
}

// ScheduleOrdered is Schedule, but enforces FIFO per-source emission: it
// tracks the last time an event was ordered-scheduled for src and clamps a
// new time that falls behind it by no more than orderedEpsilon (floating-
// point noise in the caller's delay computation) forward to match. A
// regression past that tolerance is a genuine ordering violation and
// panics.
func (q *EventQueue) ScheduleOrdered(time float64, src, dst ComponentID, kind string, payload any) int64 {
	if last, ok := q.lastOrdered[src]; ok && time < last {
		if last-time > orderedEpsilon {
			panic(fmt.Sprintf("kernel: schedule_ordered monotonicity violation for src=%d: time %v precedes last ordered time %v", src, time, last))
		}
		time = last
	}
	q.lastOrdered[src] = time
	return q.Schedule(time, src, dst, kind, payload)
}

// ScheduleOrderedKeyed is ScheduleOrdered plus a correlation key.
func (q *EventQueue) ScheduleOrderedKeyed(time float64, src, dst ComponentID, kind string, key uint64, payload any) int64 {
	if last, ok := q.lastOrdered[src]; ok && time < last {
		if last-time > orderedEpsilon {
			panic(fmt.Sprintf("kernel: schedule_ordered monotonicity violation for src=%d: time %v precedes last ordered time %v", src, time, last))
		}
		time = last
	}
	q.lastOrdered[src] = time
	return q.ScheduleKeyed(time, src, dst, kind, key, payload)
}

// Cancel marks the event with the given ID as cancelled. It is a no-op
// if the event has already fired or was already cancelled.
func (q *EventQueue) Cancel(id int64) {
	if item, ok := q.byID[id]; ok {
		item.cancelled = true
		delete(q.byID, id)
	}
}

// CancelWhere cancels every pending event for which pred returns true.
// Used for bulk operations like cancelling all timers owned by a
// component being shut down.
func (q *EventQueue) CancelWhere(pred func(Event) bool) {
	for id, item := range q.byID {
		if pred(item.event) {
			item.cancelled = true
			delete(q.byID, id)
		}
	}
}

// PeekNext returns the earliest non-cancelled event without removing it.
func (q *EventQueue) PeekNext() (Event, bool) {
	for len(q.heap) > 0 {
		item := q.heap[0]
		if item.cancelled {
			heap.Pop(&q.heap)
			continue
		}
		return item.event, true
	}
	return Event{}, false
}

// PopNext removes and returns the earliest non-cancelled event.
func (q *EventQueue) PopNext() (Event, bool) {
	for len(q.heap) > 0 {
		item := heap.Pop(&q.heap).(*eventQueueItem)
		if item.cancelled {
			continue
		}
		delete(q.byID, item.event.ID)
		return item.event, true
	}
	return Event{}, false
}

// Empty reports whether any non-cancelled event remains.
func (q *EventQueue) Empty() bool {
	_, ok := q.PeekNext()
	return !ok
}
