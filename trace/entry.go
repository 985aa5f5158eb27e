// Package trace records the ordered history of everything a simulation
// run does: node and process lifecycle, message traffic, timers, link
// faults, and storage I/O. It is the Go analogue of the original
// simulator's log entry model, kept in memory for assertions and
// optionally mirrored to a structured JSON sink and a colored console.
package trace

// Kind identifies the shape of a LogEntry. Only the fields relevant to a
// given Kind are populated; the rest are left at their zero value.
type Kind string

const (
	NodeStarted   Kind = "node_started"
	ProcessStarted Kind = "process_started"

	LocalMessageSent     Kind = "local_message_sent"
	LocalMessageReceived Kind = "local_message_received"

	MessageSent     Kind = "message_sent"
	MessageReceived Kind = "message_received"
	MessageDropped  Kind = "message_dropped"

	NodeDisconnected Kind = "node_disconnected"
	NodeConnected    Kind = "node_connected"
	NodeCrashed      Kind = "node_crashed"
	NodeRecovered    Kind = "node_recovered"
	NodeShutdown     Kind = "node_shutdown"
	NodeReran        Kind = "node_reran"

	TimerSet       Kind = "timer_set"
	TimerFired     Kind = "timer_fired"
	TimerCancelled Kind = "timer_cancelled"

	LinkDisabled Kind = "link_disabled"
	LinkEnabled  Kind = "link_enabled"

	DropIncoming Kind = "drop_incoming"
	PassIncoming Kind = "pass_incoming"
	DropOutgoing Kind = "drop_outgoing"
	PassOutgoing Kind = "pass_outgoing"

	NetworkPartition Kind = "network_partition"
	NetworkReset     Kind = "network_reset"

	ReadFromFile        Kind = "read_from_file"
	WriteToFile         Kind = "write_to_file"
	ReadRequestSucceed  Kind = "read_request_succeed"
	ReadRequestFailed   Kind = "read_request_failed"
	WriteRequestSucceed Kind = "write_request_succeed"
	WriteRequestFailed  Kind = "write_request_failed"

	StorageCrashed  Kind = "storage_crashed"
	StorageRecovered Kind = "storage_recovered"
)

// LogEntry is one record of simulation history. Message payloads are
// stored as a pre-rendered string (Msg) rather than the original message
// value, since a trace is meant to outlive the run that produced it.
type LogEntry struct {
	Kind Kind
	Time float64

	Node   string
	NodeID uint32
	Proc   string

	MsgID   string
	Msg     string
	SrcNode string
	SrcProc string
	DstNode string
	DstProc string

	TimerID   string
	TimerName string
	Delay     float64

	From string
	To   string

	Group1 []string
	Group2 []string

	RequestID uint64
	FileName  string
	Bytes     uint64
	Reason    string
}

// fileVisible reports whether an entry's full detail should be written
// to a persistent JSON sink. A handful of high-volume kinds (successful
// deliveries and drops) are not written to the sink at all (they stay in
// the in-memory trace), the same restraint the original logger applies,
// so long runs don't produce unbounded log files dominated by message
// bodies.
func (e LogEntry) fileVisible() bool {
	switch e.Kind {
	case MessageReceived, MessageDropped:
		return false
	default:
		return true
	}
}

// Severity buckets a Kind for console coloring and for the structured
// sink's level field.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityError
)

func (e LogEntry) severity() Severity {
	switch e.Kind {
	case NodeCrashed, ReadRequestFailed, WriteRequestFailed, StorageCrashed:
		return SeverityError
	case MessageDropped, TimerCancelled, NodeDisconnected, NodeShutdown,
		LinkDisabled, DropIncoming, DropOutgoing, NetworkPartition:
		return SeverityWarn
	default:
		return SeverityInfo
	}
}
