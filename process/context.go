package process

import (
	"fmt"

	"github.com/joeycumines/go-dslab/kernel"
	"github.com/joeycumines/go-dslab/network"
	"github.com/joeycumines/go-dslab/storage"
)

// Context is the façade a process's callbacks use to interact with the
// rest of the simulation: send messages, manage timers, sleep, spawn
// child activities, and do storage I/O. A fresh Context is constructed
// for every callback invocation; it is cheap (two fields) and carries no
// long-lived state of its own.
type Context struct {
	node NodeHandle
	proc string
}

// NewContext builds a Context for proc, backed by node.
func NewContext(node NodeHandle, proc string) *Context {
	return &Context{node: node, proc: proc}
}

// Time returns the node's local time (kernel virtual time plus the
// node's configured clock skew).
func (c *Context) Time() float64 { return c.node.Now() + c.node.ClockSkew() }

// Rand returns a uniform [0,1) draw from the kernel's single seeded
// stream.
func (c *Context) Rand() float64 { return c.node.Kernel().Clock().Rand() }

// Send is an unreliable, fire-and-forget send: it may be delayed,
// dropped, corrupted, or duplicated per the network's fault
// configuration. The sent-message counter only increments for sends to
// another process.
func (c *Context) Send(msg network.Message, dstProc string) {
	assertTip(msg.Tip)
	if dstProc != c.proc {
		c.node.IncrementSentCount(c.proc)
	}
	c.node.Network().Send(c.proc, dstProc, msg)
}

// SendWithAck sends msg reliably, suspending the calling task until
// delivery is confirmed, the send is reported dropped, or timeout
// elapses.
func (c *Context) SendWithAck(h *kernel.TaskHandle, msg network.Message, dstProc string, timeout float64) error {
	return c.sendWithAckTagged(h, msg, nil, dstProc, timeout)
}

// SendWithTag is SendWithAck plus a correlation tag: the destination can
// await "next message with this tag" via a matching Context.SendRecvTag
// call, independent of ordinary delivery.
func (c *Context) SendWithTag(h *kernel.TaskHandle, msg network.Message, tag uint64, dstProc string, timeout float64) error {
	return c.sendWithAckTagged(h, msg, &tag, dstProc, timeout)
}

func (c *Context) sendWithAckTagged(h *kernel.TaskHandle, msg network.Message, tag *uint64, dstProc string, timeout float64) error {
	assertTip(msg.Tip)
	if dstProc != c.proc {
		c.node.IncrementSentCount(c.proc)
	}
	net := c.node.Network()
	var msgID uint64
	if tag != nil {
		msgID = net.SendWithTag(c.proc, dstProc, msg, *tag)
	} else {
		msgID = net.SendWithAck(c.proc, dstProc, msg)
	}

	netID := net.ID()
	deliveredKey := kernel.AwaitKey{Dst: c.node.ID(), Kind: network.KindMessageDelivered, Key: msgID, HasKey: true, Src: netID, HasSrc: true}
	droppedKey := kernel.AwaitKey{Dst: c.node.ID(), Kind: network.KindMessageDropped, Key: msgID, HasKey: true, Src: netID, HasSrc: true}
	_, idx, ok := h.SelectOrTimeout([]kernel.AwaitKey{deliveredKey, droppedKey}, c.node.Now()+timeout)
	if !ok {
		return wrapf("Send", ErrSendTimeout)
	}
	if idx == 1 {
		return wrapf("Send", ErrSendNotSent)
	}
	return nil
}

// SendRecvTag sends msg reliably (without a tag of its own) and
// suspends the calling task until a TaggedMessageDelivered carrying tag
// arrives at this node — the pattern used for a request/response
// exchange where the peer replies via its own SendWithTag.
func (c *Context) SendRecvTag(h *kernel.TaskHandle, msg network.Message, tag uint64, dstProc string, timeout float64) error {
	assertTip(msg.Tip)
	if dstProc != c.proc {
		c.node.IncrementSentCount(c.proc)
	}
	net := c.node.Network()
	msgID := net.SendWithAck(c.proc, dstProc, msg)
	netID := net.ID()

	repliedKey := kernel.AwaitKey{Dst: c.node.ID(), Kind: network.KindTaggedMessageDelivered, Key: tag, HasKey: true}
	droppedKey := kernel.AwaitKey{Dst: c.node.ID(), Kind: network.KindMessageDropped, Key: msgID, HasKey: true, Src: netID, HasSrc: true}
	_, idx, ok := h.SelectOrTimeout([]kernel.AwaitKey{repliedKey, droppedKey}, c.node.Now()+timeout)
	if !ok {
		return wrapf("SendRecvTag", ErrSendTimeout)
	}
	if idx == 1 {
		return wrapf("SendRecvTag", ErrSendNotSent)
	}
	return nil
}

// SendLocal pushes msg onto this process's local outbox, drained by the
// harness via System.ReadLocalMessages.
func (c *Context) SendLocal(msg network.Message) {
	c.node.PushLocalMessage(c.proc, msg)
}

// SetTimer schedules a TimerFired callback after delay, cancelling any
// existing timer of the same name first (an overriding set).
func (c *Context) SetTimer(name string, delay float64) {
	assertTimerName(name)
	if _, ok := c.node.PendingTimer(c.proc, name); ok {
		c.CancelTimer(name)
	}
	nodeID := c.node.ID()
	eventID := c.node.Kernel().Schedule(delay, nodeID, nodeID, KindTimerFired, TimerFired{Proc: c.proc, Name: name})
	c.node.SetPendingTimer(c.proc, name, eventID)
}

// SetTimerOnce is SetTimer, but a no-op if a timer of that name is
// already pending.
func (c *Context) SetTimerOnce(name string, delay float64) {
	assertTimerName(name)
	if _, ok := c.node.PendingTimer(c.proc, name); ok {
		return
	}
	c.SetTimer(name, delay)
}

// CancelTimer cancels a pending named timer; a no-op if none is pending.
func (c *Context) CancelTimer(name string) {
	eventID, ok := c.node.PendingTimer(c.proc, name)
	if !ok {
		return
	}
	c.node.Kernel().CancelEvent(eventID)
	c.node.ClearPendingTimer(c.proc, name)
}

// Sleep suspends the calling task until virtual time has advanced by
// dur.
func (c *Context) Sleep(h *kernel.TaskHandle, dur float64) {
	h.AwaitTimer(c.node.Now() + dur)
}

// Spawn starts a child activity concurrently with the caller; it does
// not suspend. Once fn returns, an ActivityFinished marker is emitted so
// another task can observe completion by awaiting it.
func (c *Context) Spawn(fn func(h *kernel.TaskHandle, ctx *Context)) {
	node := c.node
	proc := c.proc
	nodeID := node.ID()
	k := node.Kernel()
	node.Spawn(func(h *kernel.TaskHandle) {
		fn(h, NewContext(node, proc))
		k.Schedule(0, nodeID, nodeID, KindActivityFinished, ActivityFinished{Proc: proc})
	})
}

// CreateFile creates and opens a new file, failing if one by that name
// exists or the node has no storage attached.
func (c *Context) CreateFile(name string) (*storage.File, error) {
	s := c.node.Storage()
	if s == nil {
		return nil, wrapf("CreateFile", ErrNoStorage)
	}
	if err := s.CreateFile(name); err != nil {
		return nil, err
	}
	return s.OpenFile(name)
}

// FileExists reports whether name exists on the node's storage; always
// false if the node has none attached.
func (c *Context) FileExists(name string) bool {
	s := c.node.Storage()
	return s != nil && s.FileExists(name)
}

// OpenFile opens an existing file.
func (c *Context) OpenFile(name string) (*storage.File, error) {
	s := c.node.Storage()
	if s == nil {
		return nil, wrapf("OpenFile", ErrNoStorage)
	}
	return s.OpenFile(name)
}

// DeleteFile removes an existing file, freeing its bytes.
func (c *Context) DeleteFile(name string) error {
	s := c.node.Storage()
	if s == nil {
		return wrapf("DeleteFile", ErrNoStorage)
	}
	return s.DeleteFile(name)
}

func assertTip(tip string) {
	if len(tip) > 50 {
		panic(fmt.Sprintf("process: message tip %q exceeds 50 characters", tip))
	}
}

func assertTimerName(name string) {
	if len(name) > 50 {
		panic(fmt.Sprintf("process: timer name %q exceeds 50 characters", name))
	}
}
