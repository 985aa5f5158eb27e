// Package storage implements the byte-file abstraction over a
// throughput-model disk: files live fully in memory, but every read or
// append only completes once a simulated disk request finishes, so
// concurrent I/O against the same Storage shares one fixed byte/sec
// budget (see diskmodel).
package storage

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/joeycumines/go-dslab/diskmodel"
	"github.com/joeycumines/go-dslab/kernel"
	"github.com/joeycumines/go-dslab/trace"
)

// MaxBufferSize is the largest buffer a single read or append may name.
// The original Rust simulator used 0x7ffff000 (just under 2 GiB); this
// port follows spec.md's literal round figure of 1 GiB instead.
const MaxBufferSize = 1 << 30

// TypicalReadSize bounds how much of a read request is serviced in one
// disk request; larger reads are still satisfied, just via the caller
// looping (see File.ReadAll).
const TypicalReadSize = 2 << 20

// epsilon tolerates floating-point noise when comparing a popped disk
// request's recomputed finish time against the current virtual clock.
const epsilon = 1e-9

const kindDiskWake = "storage.diskWake"

// State is a Storage's availability.
type State int

const (
	Available State = iota
	Unavailable
)

type requestKind int

const (
	requestRead requestKind = iota
	requestWrite
)

type pendingRequest struct {
	kind  requestKind
	bytes uint64
}

// Storage is one node's local disk: an in-memory file map gated by a
// fair-sharing throughput model. It owns a ComponentID distinct from its
// node (owner), used as the Src of every completion/interrupt event and
// the Dst of its own internal disk-wake self-events, so a node crash
// that cancels events destined to the node doesn't also reach inside the
// storage's own bookkeeping.
type Storage struct {
	k     *kernel.Kernel
	id    kernel.ComponentID
	owner kernel.ComponentID
	log   *trace.Logger

	state      State
	capacity   uint64
	used       uint64
	files      map[string][]byte
	throughput float64

	disk          *diskmodel.Model[uint64]
	pending       map[uint64]pendingRequest
	nextRequestID uint64

	wakeEventID int64
	hasWake     bool
}

// New builds a Storage owned by owner (the node's ComponentID), with the
// given capacity in bytes and disk throughput in bytes per unit of
// virtual time. name is used to register the storage's own component
// (conventionally "<node>/storage").
func New(k *kernel.Kernel, log *trace.Logger, owner kernel.ComponentID, name string, capacity uint64, throughput float64) *Storage {
	s := &Storage{
		k:          k,
		id:         k.Registry.Register(name),
		owner:      owner,
		log:        log,
		state:      Available,
		capacity:   capacity,
		files:      make(map[string][]byte),
		throughput: throughput,
		disk:       diskmodel.New[uint64](throughput),
		pending:    make(map[uint64]pendingRequest),
	}
	k.RegisterHandler(s.id, func(e kernel.Event) {
		if e.Kind == kindDiskWake {
			s.onDiskWake()
		}
	})
	return s
}

// ID is the storage's own ComponentID (distinct from its owning node).
func (s *Storage) ID() kernel.ComponentID { return s.id }

// IsAvailable reports whether the storage can currently service
// requests.
func (s *Storage) IsAvailable() bool { return s.state == Available }

// FreeSpace is the capacity not currently occupied by file contents or
// reserved by an in-flight append.
func (s *Storage) FreeSpace() uint64 { return s.capacity - s.used }

// CreateFile creates an empty file, failing if one by that name already
// exists.
func (s *Storage) CreateFile(name string) error {
	if s.state != Available {
		return wrapf("CreateFile", ErrUnavailable)
	}
	if _, ok := s.files[name]; ok {
		return wrapf("CreateFile", ErrAlreadyExists)
	}
	s.files[name] = nil
	s.log.Log(trace.LogEntry{Kind: trace.WriteToFile, Time: s.k.Now(), FileName: name})
	return nil
}

// DeleteFile removes a file and frees its bytes, failing if absent.
func (s *Storage) DeleteFile(name string) error {
	if s.state != Available {
		return wrapf("DeleteFile", ErrUnavailable)
	}
	content, ok := s.files[name]
	if !ok {
		return wrapf("DeleteFile", ErrNotFound)
	}
	s.used -= uint64(len(content))
	delete(s.files, name)
	return nil
}

// FileExists reports whether name currently names a file.
func (s *Storage) FileExists(name string) bool {
	_, ok := s.files[name]
	return ok
}

// OpenFile returns a handle to an existing file.
func (s *Storage) OpenFile(name string) (*File, error) {
	if s.state != Available {
		return nil, wrapf("OpenFile", ErrUnavailable)
	}
	if _, ok := s.files[name]; !ok {
		return nil, wrapf("OpenFile", ErrNotFound)
	}
	return &File{storage: s, name: name}, nil
}

// Crash makes the storage Unavailable, interrupting every outstanding
// request: each one's waiter is sent StorageCrashedRequestInterrupt
// instead of its normal completion. File contents survive a crash
// (only Recover destroys them, per the resolved design question in
// DESIGN.md). The disk model itself is discarded and rebuilt empty here,
// since abandoned in-flight requests have no well-defined completion
// once their owning task has already been unblocked by the interrupt.
func (s *Storage) Crash() {
	if s.state != Available {
		panic("storage: crash from a non-available state")
	}
	s.state = Unavailable
	s.k.CancelComponentEvents(s.id)

	ids := make([]uint64, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		s.k.ScheduleKeyed(0, s.id, s.owner, KindStorageCrashedRequestInterrupt, id, StorageCrashedRequestInterrupt{RequestID: id})
	}
	s.pending = make(map[uint64]pendingRequest)
	s.disk = diskmodel.New[uint64](s.throughput)
	s.hasWake = false

	s.log.Log(trace.LogEntry{Kind: trace.StorageCrashed, Time: s.k.Now()})
}

// Recover makes the storage Available again. Per the resolved design
// question (DESIGN.md), recovering destroys all file content: the
// original simulator's latest revision clears files_content on recover
// specifically so a harness can re-exercise the same storage instance
// after a crash, and spec.md's own S3 scenario narrative (which assumes
// restored content) is the variant not followed here.
func (s *Storage) Recover() {
	if s.state != Unavailable {
		panic("storage: recover from a non-unavailable state")
	}
	s.files = make(map[string][]byte)
	s.used = 0
	s.state = Available
	s.log.Log(trace.LogEntry{Kind: trace.StorageRecovered, Time: s.k.Now()})
}

func (s *Storage) submitRequest(kind requestKind, bytes uint64) uint64 {
	reqID := s.nextRequestID
	s.nextRequestID++
	s.pending[reqID] = pendingRequest{kind: kind, bytes: bytes}
	s.disk.Insert(s.k.Now(), float64(bytes), reqID)
	s.rescheduleWake()
	return reqID
}

func (s *Storage) rescheduleWake() {
	if s.hasWake {
		s.k.CancelEvent(s.wakeEventID)
		s.hasWake = false
	}
	t, ok := s.disk.NextTime()
	if !ok {
		return
	}
	delay := t - s.k.Now()
	if delay < 0 {
		delay = 0
	}
	s.wakeEventID = s.k.Schedule(delay, s.id, s.id, kindDiskWake, nil)
	s.hasWake = true
}

func (s *Storage) onDiskWake() {
	s.hasWake = false
	now := s.k.Now()
	for {
		t, ok := s.disk.NextTime()
		if !ok || t > now+epsilon {
			break
		}
		_, reqID, ok := s.disk.Pop()
		if !ok {
			break
		}
		req, ok := s.pending[reqID]
		if !ok {
			continue // interrupted by a crash in the interim
		}
		delete(s.pending, reqID)
		switch req.kind {
		case requestRead:
			s.k.ScheduleKeyed(0, s.id, s.owner, KindDataReadCompleted, reqID, DataReadCompleted{RequestID: reqID, BytesRead: req.bytes})
		case requestWrite:
			s.k.ScheduleKeyed(0, s.id, s.owner, KindDataWriteCompleted, reqID, DataWriteCompleted{RequestID: reqID, BytesWritten: req.bytes})
		}
	}
	s.rescheduleWake()
}

func (s *Storage) append(h *kernel.TaskHandle, name string, data []byte) (uint64, error) {
	if uint64(len(data)) > MaxBufferSize {
		panic(fmt.Sprintf("storage: append buffer of %d bytes exceeds MaxBufferSize", len(data)))
	}
	if s.state != Available {
		return 0, wrapf("Append", ErrUnavailable)
	}
	if _, ok := s.files[name]; !ok {
		return 0, wrapf("Append", ErrNotFound)
	}
	free := s.FreeSpace()
	n := uint64(len(data))
	if n > free {
		n = free
	}
	if n == 0 {
		return 0, nil
	}
	s.used += n
	reqID := s.submitRequest(requestWrite, n)

	writeKey := kernel.AwaitKey{Dst: s.owner, Kind: KindDataWriteCompleted, Key: reqID, HasKey: true}
	crashKey := kernel.AwaitKey{Dst: s.owner, Kind: KindStorageCrashedRequestInterrupt, Key: reqID, HasKey: true}
	ev, idx := h.Select([]kernel.AwaitKey{writeKey, crashKey})
	if idx == 1 {
		return 0, wrapf("Append", ErrUnavailable)
	}
	payload := ev.Payload.(DataWriteCompleted)
	if content, ok := s.files[name]; ok {
		s.files[name] = append(content, data[:payload.BytesWritten]...)
	}
	s.log.Log(trace.LogEntry{Kind: trace.WriteRequestSucceed, Time: s.k.Now(), FileName: name, Bytes: payload.BytesWritten, RequestID: reqID})
	return payload.BytesWritten, nil
}

func (s *Storage) read(h *kernel.TaskHandle, name string, offset uint64, buf []byte) (uint64, error) {
	if uint64(len(buf)) > MaxBufferSize {
		panic(fmt.Sprintf("storage: read buffer of %d bytes exceeds MaxBufferSize", len(buf)))
	}
	if s.state != Available {
		return 0, wrapf("Read", ErrUnavailable)
	}
	content, ok := s.files[name]
	if !ok {
		return 0, wrapf("Read", ErrNotFound)
	}
	if offset >= uint64(len(content)) {
		return 0, nil
	}
	n := uint64(len(content)) - offset
	if uint64(len(buf)) < n {
		n = uint64(len(buf))
	}
	if n > TypicalReadSize {
		n = TypicalReadSize
	}
	if n == 0 {
		return 0, nil
	}
	reqID := s.submitRequest(requestRead, n)

	readKey := kernel.AwaitKey{Dst: s.owner, Kind: KindDataReadCompleted, Key: reqID, HasKey: true}
	crashKey := kernel.AwaitKey{Dst: s.owner, Kind: KindStorageCrashedRequestInterrupt, Key: reqID, HasKey: true}
	ev, idx := h.Select([]kernel.AwaitKey{readKey, crashKey})
	if idx == 1 {
		return 0, wrapf("Read", ErrUnavailable)
	}
	payload := ev.Payload.(DataReadCompleted)
	if content, ok := s.files[name]; ok && offset+payload.BytesRead <= uint64(len(content)) {
		copy(buf, content[offset:offset+payload.BytesRead])
	}
	s.log.Log(trace.LogEntry{Kind: trace.ReadRequestSucceed, Time: s.k.Now(), FileName: name, Bytes: payload.BytesRead, RequestID: reqID})
	return payload.BytesRead, nil
}

