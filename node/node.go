// Package node implements the runtime that owns a set of processes on
// one simulated host: message/timer delivery as ordered, non-reentrant
// callbacks, a Context façade per callback invocation, and the
// shutdown/crash/rerun/recover lifecycle.
package node

import (
	"fmt"
	"os"

	"github.com/joeycumines/go-dslab/kernel"
	"github.com/joeycumines/go-dslab/network"
	"github.com/joeycumines/go-dslab/process"
	"github.com/joeycumines/go-dslab/storage"
	"github.com/joeycumines/go-dslab/trace"
)

// State is a node's lifecycle state.
type State int

const (
	Running State = iota
	Shut
	Crashed
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Shut:
		return "shut"
	case Crashed:
		return "crashed"
	default:
		return "unknown"
	}
}

type data struct {
	pendingTimers map[string]int64
	localOutbox   []network.Message
	sentCount     uint64
	receivedCount uint64
	receivedLocal uint64
	sentLocal     uint64
}

func newData() *data {
	return &data{pendingTimers: make(map[string]int64)}
}

type processEntry struct {
	impl process.Process
	data *data
}

// Node is a host: a set of named processes, an optional storage
// instance, and a connection to the shared network. It implements
// process.NodeHandle directly, so a Context never needs to import this
// package.
type Node struct {
	k         *kernel.Kernel
	id        kernel.ComponentID
	name      string
	net       *network.Network
	storage   *storage.Storage
	log       *trace.Logger
	clockSkew float64

	state     State
	processes map[string]*processEntry
}

// New registers a node with the network and kernel, in state Running.
func New(k *kernel.Kernel, net *network.Network, log *trace.Logger, name string) *Node {
	id := k.Registry.Register(name)
	n := &Node{
		k:         k,
		id:        id,
		name:      name,
		net:       net,
		log:       log,
		state:     Running,
		processes: make(map[string]*processEntry),
	}
	k.RegisterHandler(id, n.on)
	net.AddNode(name, id)
	log.Log(trace.LogEntry{Kind: trace.NodeStarted, Time: k.Now(), Node: name, NodeID: uint32(id)})
	return n
}

// AttachStorage gives the node a fresh throughput-model disk of the
// given capacity and bytes/sec throughput.
func (n *Node) AttachStorage(capacity uint64, throughput float64) {
	n.storage = storage.New(n.k, n.log, n.id, n.name+"/storage", capacity, throughput)
}

// ID returns the node's ComponentID.
func (n *Node) ID() kernel.ComponentID { return n.id }

// Name returns the node's name.
func (n *Node) Name() string { return n.name }

// Now is shorthand for the kernel's current virtual time.
func (n *Node) Now() float64 { return n.k.Now() }

// ClockSkew returns the node's configured clock skew.
func (n *Node) ClockSkew() float64 { return n.clockSkew }

// SetClockSkew sets the node's clock skew, added to virtual time
// whenever a process asks for Context.Time().
func (n *Node) SetClockSkew(skew float64) { n.clockSkew = skew }

// Kernel exposes the shared kernel.
func (n *Node) Kernel() *kernel.Kernel { return n.k }

// Network exposes the shared network.
func (n *Node) Network() *network.Network { return n.net }

// Storage exposes the node's storage instance, or nil if none was
// attached.
func (n *Node) Storage() *storage.Storage { return n.storage }

// State returns the node's current lifecycle state.
func (n *Node) State() State { return n.state }

// Spawn starts a task owned by this node.
func (n *Node) Spawn(fn func(h *kernel.TaskHandle)) *kernel.Task {
	return n.k.SpawnTask(n.id, fn)
}

// PendingTimer looks up the event id of proc's pending timer named
// name, if any.
func (n *Node) PendingTimer(proc, name string) (int64, bool) {
	d, ok := n.processes[proc]
	if !ok {
		return 0, false
	}
	id, ok := d.data.pendingTimers[name]
	return id, ok
}

// SetPendingTimer records the event id backing proc's timer named name.
func (n *Node) SetPendingTimer(proc, name string, eventID int64) {
	if d, ok := n.processes[proc]; ok {
		d.data.pendingTimers[name] = eventID
	}
}

// ClearPendingTimer forgets proc's timer named name.
func (n *Node) ClearPendingTimer(proc, name string) {
	if d, ok := n.processes[proc]; ok {
		delete(d.data.pendingTimers, name)
	}
}

// PushLocalMessage appends msg to proc's local outbox.
func (n *Node) PushLocalMessage(proc string, msg network.Message) {
	if d, ok := n.processes[proc]; ok {
		d.data.localOutbox = append(d.data.localOutbox, msg)
		d.data.sentLocal++
		n.log.Log(trace.LogEntry{Kind: trace.LocalMessageSent, Time: n.k.Now(), Node: n.name, Proc: proc, Msg: msg.Tip})
	}
}

// IncrementSentCount records one more message sent by proc.
func (n *Node) IncrementSentCount(proc string) {
	if d, ok := n.processes[proc]; ok {
		d.data.sentCount++
	}
}

// AddProcess installs impl under name. Recover and Rerun both clear the
// process map, so the harness must re-add processes after either.
func (n *Node) AddProcess(name string, impl process.Process) {
	n.processes[name] = &processEntry{impl: impl, data: newData()}
	n.net.SetProcLocation(name, n.name)
	n.log.Log(trace.LogEntry{Kind: trace.ProcessStarted, Time: n.k.Now(), Node: n.name, Proc: name})
}

// ProcessNames returns the names of all currently installed processes.
func (n *Node) ProcessNames() []string {
	names := make([]string, 0, len(n.processes))
	for name := range n.processes {
		names = append(names, name)
	}
	return names
}

// SendLocalMessage delivers msg to proc as a local (harness-injected)
// message.
func (n *Node) SendLocalMessage(proc string, msg network.Message) {
	entry, ok := n.processes[proc]
	if !ok {
		return
	}
	entry.data.receivedLocal++
	msgID := fmt.Sprintf("%s-%s-%d", n.name, proc, entry.data.receivedLocal)
	n.log.Log(trace.LogEntry{Kind: trace.LocalMessageReceived, Time: n.k.Now(), Node: n.name, Proc: proc, MsgID: msgID, Msg: msg.Tip})

	ctx := process.NewContext(n, proc)
	if err := entry.impl.OnLocalMessage(msg, ctx); err != nil {
		n.logProcessError(proc, err)
	}
}

// ReadLocalMessages drains and returns proc's local outbox.
func (n *Node) ReadLocalMessages(proc string) []network.Message {
	entry, ok := n.processes[proc]
	if !ok || len(entry.data.localOutbox) == 0 {
		return nil
	}
	out := entry.data.localOutbox
	entry.data.localOutbox = nil
	return out
}

// LocalOutbox returns a copy of proc's local outbox without draining it.
func (n *Node) LocalOutbox(proc string) []network.Message {
	entry, ok := n.processes[proc]
	if !ok {
		return nil
	}
	out := make([]network.Message, len(entry.data.localOutbox))
	copy(out, entry.data.localOutbox)
	return out
}

// SentMessageCount returns how many messages proc has sent to others.
func (n *Node) SentMessageCount(proc string) uint64 {
	if entry, ok := n.processes[proc]; ok {
		return entry.data.sentCount
	}
	return 0
}

// ReceivedMessageCount returns how many network messages proc has
// received.
func (n *Node) ReceivedMessageCount(proc string) uint64 {
	if entry, ok := n.processes[proc]; ok {
		return entry.data.receivedCount
	}
	return 0
}

// Shutdown transitions Running -> Shut, cancels the node's pending task
// timers, and disconnects the node from the network. Panics if the node
// isn't Running.
func (n *Node) Shutdown() {
	if n.state != Running {
		panic(fmt.Sprintf("node: shutdown requires Running state, got %s", n.state))
	}
	n.k.CancelComponentTimers(n.id)
	n.net.DisconnectNode(n.name)
	n.state = Shut
	n.log.Log(trace.LogEntry{Kind: trace.NodeShutdown, Time: n.k.Now(), Node: n.name})
}

// Rerun transitions Shut -> Running, clearing installed processes and
// reconnecting to the network. Panics if the node isn't Shut.
func (n *Node) Rerun() {
	if n.state != Shut {
		panic(fmt.Sprintf("node: rerun requires Shut state, got %s", n.state))
	}
	n.processes = make(map[string]*processEntry)
	n.net.ConnectNode(n.name)
	n.state = Running
	n.log.Log(trace.LogEntry{Kind: trace.NodeReran, Time: n.k.Now(), Node: n.name})
}

// Crash transitions Running or Shut -> Crashed (a no-op if already
// Crashed): it crashes storage (if attached), cancels the node's pending
// task timers, and disconnects the node from the network. Installed
// processes are kept until Recover.
func (n *Node) Crash() {
	if n.state == Crashed {
		return
	}
	if n.storage != nil {
		n.storage.Crash()
	}
	n.k.CancelComponentTimers(n.id)
	n.net.DisconnectNode(n.name)
	n.state = Crashed
	n.log.Log(trace.LogEntry{Kind: trace.NodeCrashed, Time: n.k.Now(), Node: n.name})
}

// Recover transitions Crashed -> Running, clearing installed processes,
// recovering storage (which destroys file content, see
// storage.Storage.Recover), and reconnecting to the network. Panics if
// the node isn't Crashed.
func (n *Node) Recover() {
	if n.state != Crashed {
		panic(fmt.Sprintf("node: recover requires Crashed state, got %s", n.state))
	}
	n.processes = make(map[string]*processEntry)
	if n.storage != nil {
		n.storage.Recover()
	}
	n.net.ConnectNode(n.name)
	n.state = Running
	n.log.Log(trace.LogEntry{Kind: trace.NodeRecovered, Time: n.k.Now(), Node: n.name})
}

func (n *Node) on(e kernel.Event) {
	switch e.Kind {
	case network.KindMessageDelivered:
		if e.Src == n.net.ID() {
			// Ack-echo of this node's own reliable send: only an awaiting
			// sender consumes it, so when none does it is ignored here.
			return
		}
		p := e.Payload.(network.MessageDelivered)
		n.onMessageReceived(p.MsgID, p.DstProc, p.Msg, p.SrcProc, p.SrcNode)
	case network.KindTaggedMessageDelivered:
		p := e.Payload.(network.TaggedMessageDelivered)
		n.onMessageReceived(p.MsgID, p.DstProc, p.Msg, p.SrcProc, p.SrcNode)
	case process.KindTimerFired:
		p := e.Payload.(process.TimerFired)
		n.onTimerFired(p.Proc, p.Name)
	case process.KindActivityFinished:
		// No-op by default: a task that cares about a spawned
		// activity's completion awaits this event directly, which
		// consumes it before it ever reaches this handler.
	}
}

func (n *Node) onMessageReceived(msgID uint64, proc string, msg network.Message, fromProc, fromNode string) {
	entry, ok := n.processes[proc]
	if !ok {
		panic(fmt.Sprintf("node %q: message for unknown process %q", n.name, proc))
	}
	entry.data.receivedCount++
	n.log.Log(trace.LogEntry{
		Kind: trace.MessageReceived, Time: n.k.Now(),
		MsgID: fmt.Sprint(msgID), SrcProc: fromProc, SrcNode: fromNode,
		DstProc: proc, DstNode: n.name, Msg: msg.Tip,
	})
	ctx := process.NewContext(n, proc)
	if err := entry.impl.OnMessage(msg, fromProc, ctx); err != nil {
		n.logProcessError(proc, err)
	}
}

func (n *Node) onTimerFired(proc, name string) {
	entry, ok := n.processes[proc]
	if !ok {
		return // process was removed (e.g. by a recover) before its timer fired
	}
	timerID, ok := entry.data.pendingTimers[name]
	if !ok {
		return // already cancelled
	}
	delete(entry.data.pendingTimers, name)
	n.log.Log(trace.LogEntry{Kind: trace.TimerFired, Time: n.k.Now(), Node: n.name, Proc: proc, TimerName: name, TimerID: fmt.Sprint(timerID)})
	ctx := process.NewContext(n, proc)
	if err := entry.impl.OnTimer(name, ctx); err != nil {
		n.logProcessError(proc, err)
	}
}

func (n *Node) logProcessError(proc string, err error) {
	fmt.Fprintf(os.Stderr, "\n!!! error when calling process %q on node %q:\n\n%v\n", proc, n.name, err)
}
