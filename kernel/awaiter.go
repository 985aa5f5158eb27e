package kernel

import "fmt"

// AwaitKey identifies what a suspended task is waiting for: an event
// addressed to Dst, tagged Kind, optionally narrowed by a correlation Key
// and/or a required Src. Two awaiters with an identical key registered at
// the same time is a collision and indicates a programming error in the
// component code (e.g. two concurrent sends reusing the same tag).
type AwaitKey struct {
	Dst    ComponentID
	Kind   string
	Key    uint64
	HasKey bool
	Src    ComponentID
	HasSrc bool
}

func (k AwaitKey) matches(e Event) bool {
	if e.Dst != k.Dst || e.Kind != k.Kind {
		return false
	}
	if k.HasKey && (!e.HasKey || e.Key != k.Key) {
		return false
	}
	if k.HasSrc && e.Src != k.Src {
		return false
	}
	return true
}

// awaiterCell records which task registered key; the dispatcher looks it
// up when a matching event arrives and resumes that task with the event.
type awaiterCell struct {
	key   AwaitKey
	taskID int64
}

// AwaiterTable tracks every currently-registered awaiter. Lookup is by
// scanning candidates registered for the same (Dst, Kind) bucket, since a
// dispatcher event carries no reference back to a specific awaiter.
type AwaiterTable struct {
	byBucket map[bucketKey][]*awaiterCell
}

type bucketKey struct {
	dst  ComponentID
	kind string
}

// NewAwaiterTable returns an empty table.
func NewAwaiterTable() *AwaiterTable {
	return &AwaiterTable{byBucket: make(map[bucketKey][]*awaiterCell)}
}

// sameKeyBase reports whether a and b address the same (Dst, Kind, Key,
// HasKey) slot, ignoring source-scoping.
func sameKeyBase(a, b AwaitKey) bool {
	return a.Dst == b.Dst && a.Kind == b.Kind && a.HasKey == b.HasKey && (!a.HasKey || a.Key == b.Key)
}

// conflicts reports whether a and b cannot coexist as awaiters for the
// same base slot: at most one unscoped (source-less) awaiter may exist per
// key, and it may not coexist with any source-bound awaiter for that same
// key, since an incoming event could ambiguously match either.
func conflicts(a, b AwaitKey) bool {
	if !sameKeyBase(a, b) {
		return false
	}
	if !a.HasSrc || !b.HasSrc {
		return true
	}
	return a.Src == b.Src
}

// Register adds an awaiter for key, owned by taskID. It panics if key
// conflicts with an already-registered awaiter: the simulator requires at
// most one shared awaiter per key+src, and forbids mixing a source-less
// awaiter with a source-bound one for the same key.
func (t *AwaiterTable) Register(key AwaitKey, taskID int64) {
	b := bucketKey{dst: key.Dst, kind: key.Kind}
	for _, c := range t.byBucket[b] {
		if conflicts(c.key, key) {
			panic(fmt.Sprintf("kernel: awaiter collision for dst=%d kind=%s key=%v", key.Dst, key.Kind, key))
		}
	}
	t.byBucket[b] = append(t.byBucket[b], &awaiterCell{key: key, taskID: taskID})
}

// LookupAndConsume finds an awaiter matching e, removes it from the
// table, and returns the owning task ID. If none matches, ok is false and
// the event should instead be delivered to Dst's handler.
func (t *AwaiterTable) LookupAndConsume(e Event) (taskID int64, ok bool) {
	b := bucketKey{dst: e.Dst, kind: e.Kind}
	cells := t.byBucket[b]
	for i, c := range cells {
		if c.key.matches(e) {
			t.byBucket[b] = append(cells[:i], cells[i+1:]...)
			return c.taskID, true
		}
	}
	return 0, false
}

// Forget removes any awaiter for key without resolving it, used when a
// timeout fires instead of the awaited event.
func (t *AwaiterTable) Forget(key AwaitKey) {
	b := bucketKey{dst: key.Dst, kind: key.Kind}
	cells := t.byBucket[b]
	for i, c := range cells {
		if c.key == key {
			t.byBucket[b] = append(cells[:i], cells[i+1:]...)
			return
		}
	}
}

// HasAny reports whether any awaiter is registered for the given (dst,
// kind) bucket, regardless of key.
func (t *AwaiterTable) HasAny(dst ComponentID, kind string) bool {
	return len(t.byBucket[bucketKey{dst: dst, kind: kind}]) > 0
}
