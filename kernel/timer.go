package kernel

import "container/heap"

// Timer is a task-owned wake-up: unlike an Event (which is either
// consumed by an awaiter or dispatched to a handler), firing a Timer
// always just wakes the single task that is sleeping on it, carrying no
// payload beyond "time has passed." It backs sleep() and the timeout arm
// of an await-with-timeout.
type Timer struct {
	ID    int64
	Time  float64
	Owner ComponentID
}

type timerQueueItem struct {
	timer     Timer
	cancelled bool
	index     int
}

type timerHeap []*timerQueueItem

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].timer.Time != h[j].timer.Time {
		return h[i].timer.Time < h[j].timer.Time
	}
	return h[i].timer.ID < h[j].timer.ID
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	item := x.(*timerQueueItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// TimerQueue is the (time, id)-ordered priority queue of pending task
// wake-ups, with the same lazy-cancellation discipline as EventQueue.
type TimerQueue struct {
	heap   timerHeap
	byID   map[int64]*timerQueueItem
	nextID int64
}

// NewTimerQueue returns an empty timer queue.
func NewTimerQueue() *TimerQueue {
	return &TimerQueue{byID: make(map[int64]*timerQueueItem)}
}

// Schedule enqueues a wake-up for owner at the given absolute time.
func (q *TimerQueue) Schedule(time float64, owner ComponentID) int64 {
	q.nextID++
	id := q.nextID
	item := &timerQueueItem{timer: Timer{ID: id, Time: time, Owner: owner}}
	q.byID[id] = item
	heap.Push(&q.heap, item)
	return id
}

// Cancel marks the timer with the given ID as cancelled, a no-op if it
// already fired or was already cancelled.
func (q *TimerQueue) Cancel(id int64) {
	if item, ok := q.byID[id]; ok {
		item.cancelled = true
		delete(q.byID, id)
	}
}

// CancelOwnedBy cancels every pending timer owned by owner, used when a
// component is torn down (crash, shutdown) to make sure no stale wake-up
// fires for it afterwards.
func (q *TimerQueue) CancelOwnedBy(owner ComponentID) {
	for id, item := range q.byID {
		if item.timer.Owner == owner {
			item.cancelled = true
			delete(q.byID, id)
		}
	}
}

// PeekNext returns the earliest non-cancelled timer without removing it.
func (q *TimerQueue) PeekNext() (Timer, bool) {
	for len(q.heap) > 0 {
		item := q.heap[0]
		if item.cancelled {
			heap.Pop(&q.heap)
			continue
		}
		return item.timer, true
	}
	return Timer{}, false
}

// PopNext removes and returns the earliest non-cancelled timer.
func (q *TimerQueue) PopNext() (Timer, bool) {
	for len(q.heap) > 0 {
		item := heap.Pop(&q.heap).(*timerQueueItem)
		if item.cancelled {
			continue
		}
		delete(q.byID, item.timer.ID)
		return item.timer, true
	}
	return Timer{}, false
}

// Empty reports whether any non-cancelled timer remains.
func (q *TimerQueue) Empty() bool {
	_, ok := q.PeekNext()
	return !ok
}
