// Package diskmodel implements the fair-sharing throughput model that
// drives storage completion times: every in-flight request shares the
// disk's fixed byte/sec capacity equally, so a request queued behind
// others finishes later than its own volume/throughput would suggest.
//
// Disk internals are explicitly out of scope for the simulator as a
// whole; this package exists only to produce a believable completion
// time for each storage request; it isn't meant to be a tunable,
// general-purpose throughput library.
package diskmodel

import "golang.org/x/exp/slices"

// timeFunction is an affine map used to re-derive a previously-computed
// finish position after the set of concurrently-running requests
// changes size, without recomputing every item from scratch.
type timeFunction struct {
	a, b float64
}

func (f timeFunction) at(x float64) float64 { return f.a*x + f.b }

func (f timeFunction) inverse() timeFunction { return timeFunction{a: 1 / f.a, b: -f.b / f.a} }

func (f *timeFunction) update(c1, c2 float64) {
	f.a *= c1
	f.b = f.b*c1 + c2
}

// item is one request sharing the disk's throughput.
type item[T any] struct {
	position float64
	id       uint64
	value    T
}

// Model is a fair-sharing throughput model for a single disk with a fixed
// byte/sec capacity: Insert enqueues a request of some volume, and Pop
// (in finish order) returns its completion time, computed as if every
// request present since it was inserted had been splitting the disk's
// throughput evenly.
type Model[T any] struct {
	throughput float64
	timeFn     timeFunction
	items      []*item[T]
	nextID     uint64
}

// New returns a Model backed by a disk with the given throughput, in
// bytes per unit of virtual time.
func New[T any](throughput float64) *Model[T] {
	return &Model[T]{throughput: throughput, timeFn: timeFunction{a: 1}}
}

// IsEmpty reports whether any request is in flight.
func (m *Model[T]) IsEmpty() bool { return len(m.items) == 0 }

// Len returns the number of requests in flight.
func (m *Model[T]) Len() int { return len(m.items) }

// Insert enqueues a request of the given volume (bytes) at currentTime,
// attaching value so Pop can hand it back alongside its finish time.
func (m *Model[T]) Insert(currentTime, volume float64, value T) {
	if len(m.items) == 0 {
		finish := currentTime + volume/m.throughput
		m.timeFn = timeFunction{a: 1}
		m.items = append(m.items, &item[T]{position: finish, id: m.nextID, value: value})
	} else {
		parOld := float64(len(m.items))
		parNew := parOld + 1
		m.timeFn.update(parNew/parOld, -currentTime/parOld)
		finish := currentTime + (volume/m.throughput)*parNew
		m.items = append(m.items, &item[T]{position: m.timeFn.inverse().at(finish), id: m.nextID, value: value})
	}
	m.nextID++
	m.sort()
}

func (m *Model[T]) sort() {
	slices.SortFunc(m.items, func(a, b *item[T]) int {
		switch {
		case a.position < b.position:
			return -1
		case a.position > b.position:
			return 1
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		default:
			return 0
		}
	})
}

// Pop removes and returns the completion time and value of the
// earliest-finishing in-flight request.
func (m *Model[T]) Pop() (finishTime float64, value T, ok bool) {
	if len(m.items) == 0 {
		var zero T
		return 0, zero, false
	}
	it := m.items[0]
	m.items = m.items[1:]

	parNew := float64(len(m.items))
	parOld := parNew + 1
	currentTime := m.timeFn.at(it.position)
	m.timeFn.update(parNew/parOld, currentTime/parOld)
	return currentTime, it.value, true
}

// Peek returns the completion time and value of the earliest-finishing
// in-flight request without removing it.
func (m *Model[T]) Peek() (finishTime float64, value T, ok bool) {
	if len(m.items) == 0 {
		var zero T
		return 0, zero, false
	}
	it := m.items[0]
	return m.timeFn.at(it.position), it.value, true
}

// NextTime is shorthand for the finish time half of Peek.
func (m *Model[T]) NextTime() (float64, bool) {
	t, _, ok := m.Peek()
	return t, ok
}
