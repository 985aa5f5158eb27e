package node

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-dslab/kernel"
	"github.com/joeycumines/go-dslab/network"
	"github.com/joeycumines/go-dslab/process"
	"github.com/joeycumines/go-dslab/trace"
)

// echoProcess replies to every network message that is not itself a
// reply by sending its tip, prefixed with "reply:", back to the sender,
// and records everything it sees for assertions.
type echoProcess struct {
	received []string
	timers   []string
	locals   []string
}

func (p *echoProcess) OnMessage(msg network.Message, from string, ctx *process.Context) error {
	p.received = append(p.received, msg.Tip)
	if strings.HasPrefix(msg.Tip, "reply:") {
		return nil
	}
	ctx.Send(network.Message{Tip: "reply:" + msg.Tip}, from)
	return nil
}

func (p *echoProcess) OnLocalMessage(msg network.Message, ctx *process.Context) error {
	p.locals = append(p.locals, msg.Tip)
	return nil
}

func (p *echoProcess) OnTimer(name string, ctx *process.Context) error {
	p.timers = append(p.timers, name)
	return nil
}

func newTestSystem(t *testing.T) (*kernel.Kernel, *network.Network, *trace.Logger) {
	t.Helper()
	k := kernel.NewKernel(1)
	log := trace.NewLogger()
	net := network.New(k, log)
	return k, net, log
}

func TestMessageRoundTrip(t *testing.T) {
	k, net, log := newTestSystem(t)
	n1 := New(k, net, log, "n1")
	n2 := New(k, net, log, "n2")

	p1 := &echoProcess{}
	p2 := &echoProcess{}
	n1.AddProcess("p1", p1)
	n2.AddProcess("p2", p2)

	net.SetDelays(1, 1)

	// p1 sends to p2 via a one-shot task, then the whole system drains.
	k.SpawnTask(n1.ID(), func(h *kernel.TaskHandle) {
		process.NewContext(n1, "p1").Send(network.Message{Tip: "ping"}, "p2")
	})
	k.StepUntilNoEvents()

	assert.Equal(t, []string{"ping"}, p2.received)
	assert.Equal(t, []string{"reply:ping"}, p1.received)
	assert.EqualValues(t, 1, n1.SentMessageCount("p1"))
	assert.EqualValues(t, 1, n2.ReceivedMessageCount("p2"))
}

func TestLocalMessages(t *testing.T) {
	k, net, log := newTestSystem(t)
	n1 := New(k, net, log, "n1")
	p1 := &echoProcess{}
	n1.AddProcess("p1", p1)

	n1.SendLocalMessage("p1", network.Message{Tip: "hello"})
	assert.Equal(t, []string{"hello"}, p1.locals)

	process.NewContext(n1, "p1")
	n1.PushLocalMessage("p1", network.Message{Tip: "out"})
	out := n1.ReadLocalMessages("p1")
	require.Len(t, out, 1)
	assert.Equal(t, "out", out[0].Tip)
	assert.Empty(t, n1.ReadLocalMessages("p1"))
}

func TestTimerFires(t *testing.T) {
	k, net, log := newTestSystem(t)
	n1 := New(k, net, log, "n1")
	p1 := &echoProcess{}
	n1.AddProcess("p1", p1)

	ctx := process.NewContext(n1, "p1")
	ctx.SetTimer("tick", 5)
	k.StepUntilNoEvents()

	assert.Equal(t, []string{"tick"}, p1.timers)
	assert.Equal(t, 5.0, k.Now())
}

func TestCrashKeepsProcessesUntilRecover(t *testing.T) {
	k, net, log := newTestSystem(t)
	n1 := New(k, net, log, "n1")
	n1.AddProcess("p1", &echoProcess{})

	n1.Crash()
	assert.Equal(t, Crashed, n1.State())
	assert.Equal(t, []string{"p1"}, n1.ProcessNames())

	assert.PanicsWithValue(t, "node: recover requires Crashed state, got running", func() {
		n2 := New(k, net, log, "n2")
		n2.Recover()
	})
}

func TestCrashIsIdempotent(t *testing.T) {
	k, net, log := newTestSystem(t)
	n1 := New(k, net, log, "n1")
	n1.Crash()
	require.NotPanics(t, func() { n1.Crash() })
	assert.Equal(t, Crashed, n1.State())
}

func TestRecoverRestoresRunning(t *testing.T) {
	k, net, log := newTestSystem(t)
	n1 := New(k, net, log, "n1")
	n1.AddProcess("p1", &echoProcess{})
	n1.Crash()
	n1.Recover()
	assert.Equal(t, Running, n1.State())
	assert.Empty(t, n1.ProcessNames())
}

func TestShutdownRerunCycle(t *testing.T) {
	k, net, log := newTestSystem(t)
	n1 := New(k, net, log, "n1")
	n1.AddProcess("p1", &echoProcess{})

	n1.Shutdown()
	assert.Equal(t, Shut, n1.State())
	assert.PanicsWithValue(t, "node: shutdown requires Running state, got shut", func() { n1.Shutdown() })

	n1.Rerun()
	assert.Equal(t, Running, n1.State())
	assert.Empty(t, n1.ProcessNames())
}

func TestSpawnEmitsActivityFinished(t *testing.T) {
	k, net, log := newTestSystem(t)
	n1 := New(k, net, log, "n1")
	n1.AddProcess("p1", &echoProcess{})
	ctx := process.NewContext(n1, "p1")

	done := false
	k.SpawnTask(n1.ID(), func(h *kernel.TaskHandle) {
		key := kernel.AwaitKey{Dst: n1.ID(), Kind: process.KindActivityFinished, Key: 0}
		ctx.Spawn(func(h2 *kernel.TaskHandle, c2 *process.Context) {
			c2.Sleep(h2, 1)
		})
		h.AwaitEvent(key)
		done = true
	})
	k.StepUntilNoEvents()

	assert.True(t, done)
}
