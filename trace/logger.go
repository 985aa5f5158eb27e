package trace

import (
	"io"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger accumulates a simulation run's history in memory, in order, and
// optionally mirrors each entry to a structured JSON-per-line sink built
// on logiface/stumpy.
type Logger struct {
	entries []LogEntry
	sink    *logiface.Logger[*stumpy.Event]
}

// NewLogger returns a Logger that only keeps the in-memory trace.
func NewLogger() *Logger {
	return &Logger{}
}

// NewLoggerWithSink returns a Logger that also writes one JSON object per
// entry to w, in the shape stumpy produces.
func NewLoggerWithSink(w io.Writer) *Logger {
	return &Logger{
		sink: stumpy.L.New(
			stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		),
	}
}

// Log appends e to the in-memory trace and, if a sink is configured and e
// is file-visible, emits it as a structured record.
func (l *Logger) Log(e LogEntry) {
	l.entries = append(l.entries, e)
	if l.sink == nil || !e.fileVisible() {
		return
	}
	l.emit(e)
}

// Entries returns the full in-memory trace, in the order entries were
// logged. The slice is owned by the caller; mutating it has no effect on
// the logger.
func (l *Logger) Entries() []LogEntry {
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Filter returns the subset of Entries() whose Kind matches any of kinds.
func (l *Logger) Filter(kinds ...Kind) []LogEntry {
	set := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	var out []LogEntry
	for _, e := range l.entries {
		if set[e.Kind] {
			out = append(out, e)
		}
	}
	return out
}

func (l *Logger) emit(e LogEntry) {
	var method *logiface.Builder[*stumpy.Event]
	switch e.severity() {
	case SeverityError:
		method = l.sink.Err()
	case SeverityWarn:
		method = l.sink.Warning()
	default:
		method = l.sink.Info()
	}
	if method == nil {
		return
	}

	chain := method.Str(`kind`, string(e.Kind)).Float64(`time`, e.Time)
	if e.Node != `` {
		chain = chain.Str(`node`, e.Node)
	}
	if e.Proc != `` {
		chain = chain.Str(`proc`, e.Proc)
	}
	if e.MsgID != `` {
		chain = chain.Str(`msg_id`, e.MsgID)
	}
	if e.SrcProc != `` {
		chain = chain.Str(`src_proc`, e.SrcProc)
	}
	if e.DstProc != `` {
		chain = chain.Str(`dst_proc`, e.DstProc)
	}
	if e.TimerName != `` {
		chain = chain.Str(`timer_name`, e.TimerName)
	}
	if e.FileName != `` {
		chain = chain.Str(`file_name`, e.FileName).Uint64(`bytes`, e.Bytes).Uint64(`request_id`, e.RequestID)
	}
	if e.FileName == `` && e.RequestID != 0 {
		chain = chain.Uint64(`request_id`, e.RequestID)
	}
	if e.Reason != `` {
		chain = chain.Str(`reason`, e.Reason)
	}
	chain.Log(string(e.Kind))
}
