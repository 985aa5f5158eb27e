package storage

// Event kinds emitted by a Storage towards its owning node, keyed on the
// request id that submitted them (see AwaitKey.Key in the kernel
// package). A task blocked on File.Append/Read races one of these two
// completion kinds against StorageCrashedRequestInterrupt.
const (
	KindDataWriteCompleted = "DataWriteCompleted"
	KindDataReadCompleted  = "DataReadCompleted"

	// KindDataWriteFailed and KindDataReadFailed are defined for parity
	// with the taxonomy in spec.md §7, but this Storage never schedules
	// them: writes are pre-clamped to free space before being submitted
	// to the disk model, so a write can return fewer bytes than
	// requested but never needs to fail outright, and a successful read
	// from the disk model is an invariant this simulator never violates.
	KindDataWriteFailed = "DataWriteFailed"
	KindDataReadFailed  = "DataReadFailed"

	KindStorageCrashedRequestInterrupt = "StorageCrashedRequestInterrupt"
)

// DataWriteCompleted is delivered when a submitted write finishes. Bytes
// may be less than requested if the write was clamped to free space.
type DataWriteCompleted struct {
	RequestID    uint64
	BytesWritten uint64
}

// DataReadCompleted is delivered when a submitted read finishes.
type DataReadCompleted struct {
	RequestID uint64
	BytesRead uint64
}

// StorageCrashedRequestInterrupt is delivered to every outstanding
// request's waiter when the owning Storage crashes.
type StorageCrashedRequestInterrupt struct {
	RequestID uint64
}
