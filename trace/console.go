package trace

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// ConsolePrinter renders LogEntry values as human-readable, colored
// lines, built on zerolog's ConsoleWriter. It is meant for interactively
// watching a scenario run, not for machine parsing (use Logger's JSON
// sink for that).
type ConsolePrinter struct {
	out zerolog.ConsoleWriter
}

// NewConsolePrinter returns a printer writing to w. NoColor disables ANSI
// coloring, useful when w isn't a terminal.
func NewConsolePrinter(w io.Writer, noColor bool) *ConsolePrinter {
	cw := zerolog.NewConsoleWriter(func(c *zerolog.ConsoleWriter) {
		c.Out = w
		c.NoColor = noColor
		c.TimeFormat = ""
		c.PartsOrder = []string{zerolog.LevelFieldName, zerolog.MessageFieldName}
	})
	return &ConsolePrinter{out: cw}
}

// Print renders a single entry.
func (p *ConsolePrinter) Print(e LogEntry) {
	level := "info"
	switch e.severity() {
	case SeverityError:
		level = "error"
	case SeverityWarn:
		level = "warn"
	}
	msg := renderLine(e)
	if msg == "" {
		return
	}
	event := map[string]any{
		zerolog.LevelFieldName:   level,
		zerolog.MessageFieldName: msg,
	}
	b, err := json.Marshal(event)
	if err != nil {
		return
	}
	b = append(b, '\n')
	_, _ = p.out.Write(b)
}

// PrintAll renders every entry in a Logger's trace, in order.
func (p *ConsolePrinter) PrintAll(l *Logger) {
	for _, e := range l.Entries() {
		p.Print(e)
	}
}

// renderLine mirrors the original per-kind console formatting, trimmed to
// a single line per entry; NodeStarted/ProcessStarted/TimerSet/
// TimerCancelled render as empty (nothing worth watching live).
func renderLine(e LogEntry) string {
	switch e.Kind {
	case NodeStarted, ProcessStarted, TimerSet, TimerCancelled:
		return ""
	case LocalMessageSent:
		return fmt.Sprintf("%9.3f %10s >>> local      %s", e.Time, e.Proc, e.Msg)
	case LocalMessageReceived:
		return fmt.Sprintf("%9.3f %10s <<< local      %s", e.Time, e.Proc, e.Msg)
	case MessageSent:
		return fmt.Sprintf("%9.3f %10s --> %-10s %s", e.Time, e.SrcProc, e.DstProc, e.Msg)
	case MessageReceived:
		return fmt.Sprintf("%9.3f %10s <-- %-10s %s", e.Time, e.DstProc, e.SrcProc, e.Msg)
	case MessageDropped:
		return fmt.Sprintf("    !!!   %10s --x %-10s %s <-- message dropped", e.SrcProc, e.DstProc, e.Msg)
	case NodeConnected:
		return fmt.Sprintf("%9.3f - connected node: %s", e.Time, e.Node)
	case NodeDisconnected:
		return fmt.Sprintf("%9.3f - disconnected node: %s", e.Time, e.Node)
	case NodeCrashed:
		return fmt.Sprintf("%9.3f - node crashed: %s", e.Time, e.Node)
	case NodeRecovered:
		return fmt.Sprintf("%9.3f - node recovered: %s", e.Time, e.Node)
	case NodeShutdown:
		return fmt.Sprintf("%9.3f - node shutdown: %s", e.Time, e.Node)
	case NodeReran:
		return fmt.Sprintf("%9.3f - node reran: %s", e.Time, e.Node)
	case TimerFired:
		return fmt.Sprintf("%9.3f %10s !-- %-10s", e.Time, e.Proc, e.TimerName)
	case LinkDisabled:
		return fmt.Sprintf("%9.3f - disabled link: %10s --> %-10s", e.Time, e.From, e.To)
	case LinkEnabled:
		return fmt.Sprintf("%9.3f - enabled link: %10s --> %-10s", e.Time, e.From, e.To)
	case DropIncoming:
		return fmt.Sprintf("%9.3f - drop messages to %s", e.Time, e.Node)
	case PassIncoming:
		return fmt.Sprintf("%9.3f - pass messages to %s", e.Time, e.Node)
	case DropOutgoing:
		return fmt.Sprintf("%9.3f - drop messages from %s", e.Time, e.Node)
	case PassOutgoing:
		return fmt.Sprintf("%9.3f - pass messages from %s", e.Time, e.Node)
	case NetworkPartition:
		return fmt.Sprintf("%9.3f - network partition: %v -x- %v", e.Time, e.Group1, e.Group2)
	case NetworkReset:
		return fmt.Sprintf("%9.3f - network reset, all problems healed", e.Time)
	case ReadFromFile:
		return fmt.Sprintf("%9.3f (%d) %s <-[%d]- %s", e.Time, e.RequestID, e.Node, e.Bytes, e.FileName)
	case WriteToFile:
		return fmt.Sprintf("%9.3f (%d) %s -[%d]-> %s", e.Time, e.RequestID, e.Node, e.Bytes, e.FileName)
	case ReadRequestSucceed:
		return fmt.Sprintf("%9.3f (%d) %s <-[%d]- %s SUCCEED", e.Time, e.RequestID, e.Node, e.Bytes, e.FileName)
	case ReadRequestFailed:
		return fmt.Sprintf("%9.3f (%d) %s <-[%d]- %s !!! FAILED [%s]", e.Time, e.RequestID, e.Node, e.Bytes, e.FileName, e.Reason)
	case WriteRequestSucceed:
		return fmt.Sprintf("%9.3f (%d) %s -[%d]-> %s SUCCEED", e.Time, e.RequestID, e.Node, e.Bytes, e.FileName)
	case WriteRequestFailed:
		return fmt.Sprintf("%9.3f (%d) %s -[%d]-> %s !!! FAILED [%s]", e.Time, e.RequestID, e.Node, e.Bytes, e.FileName, e.Reason)
	case StorageCrashed:
		return fmt.Sprintf("%9.3f - storage crashed: %s", e.Time, e.Node)
	case StorageRecovered:
		return fmt.Sprintf("%9.3f - storage recovered: %s", e.Time, e.Node)
	default:
		return ""
	}
}
