package system

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-dslab/config"
	"github.com/joeycumines/go-dslab/kernel"
	"github.com/joeycumines/go-dslab/network"
	"github.com/joeycumines/go-dslab/process"
)

func parseTestScenario() (*config.Scenario, error) {
	return config.Parse([]byte(`
seed: 99
nodes:
  - name: n1
    storage:
      capacity_bytes: 1048576
network:
  min_delay: 0.01
  max_delay: 0.05
`))
}

// echoProc copies every network message it receives to its local outbox
// and sends it back to the sender unchanged; a local message is sent on
// to the process named in its Data.
type echoProc struct{}

func (echoProc) OnMessage(msg network.Message, from string, ctx *process.Context) error {
	ctx.SendLocal(msg)
	ctx.Send(msg, from)
	return nil
}

func (echoProc) OnLocalMessage(msg network.Message, ctx *process.Context) error {
	ctx.Send(msg, msg.Data) // Data carries the destination proc name in these tests
	return nil
}

func (echoProc) OnTimer(name string, ctx *process.Context) error { return nil }

// TestReliableEchoAcrossNetwork is adapted from scenario S1 (reliable
// echo across a lossy network): unlike the literal scenario, drop_rate
// is 0 here so the outcome doesn't depend on the RNG draw for any given
// seed, while corruption is still exercised.
func TestReliableEchoAcrossNetwork(t *testing.T) {
	s := New(12345)
	s.AddNode("n1")
	s.AddNode("n2")
	s.AddProcess("s1", echoProc{}, "n1")
	s.AddProcess("s2", echoProc{}, "n2")
	s.Network().SetDelays(0.5, 10.0)
	s.Network().SetCorruptRate(0.5)

	s.SendLocalMessage("s1", network.Message{Tip: "Hello", Data: "s2"})
	s.SendLocalMessage("s1", network.Message{Tip: "Echo", Data: "s2"})
	s.SendLocalMessage("s2", network.Message{Tip: "s2 hello", Data: "s1"})
	s.SendLocalMessage("s2", network.Message{Tip: "s2 helloooo", Data: "s1"})
	s.StepForDuration(50.0)

	assert.NotEmpty(t, s.ReadLocalMessages("s1"))
	assert.NotEmpty(t, s.ReadLocalMessages("s2"))
}

// TestPartitionIsolates is scenario S2: once n1 and n2 are partitioned,
// no further local injections cross over.
func TestPartitionIsolates(t *testing.T) {
	s := New(12345)
	s.AddNode("n1")
	s.AddNode("n2")
	s.AddProcess("s1", echoProc{}, "n1")
	s.AddProcess("s2", echoProc{}, "n2")
	s.Network().SetDelays(0.1, 0.2)

	s.Network().MakePartition([]string{"n1"}, []string{"n2"})
	s.SendLocalMessage("s1", network.Message{Tip: "after-partition", Data: "s2"})
	s.SendLocalMessage("s2", network.Message{Tip: "after-partition", Data: "s1"})
	s.StepForDuration(10.0)

	assert.Empty(t, s.ReadLocalMessages("s1"))
	assert.Empty(t, s.ReadLocalMessages("s2"))
}

// storageProc drives a node's storage directly from a spawned task.
type storageProc struct {
	result string
	err    error
}

func (p *storageProc) OnMessage(network.Message, string, *process.Context) error { return nil }

func (p *storageProc) OnLocalMessage(msg network.Message, ctx *process.Context) error {
	switch msg.Tip {
	case "write_and_read":
		ctx.Spawn(func(h *kernel.TaskHandle, c *process.Context) {
			f, err := c.CreateFile("f1")
			if err != nil {
				p.err = err
				return
			}
			if _, err := f.Append(h, []byte("string1\n")); err != nil {
				p.err = err
				return
			}
			if _, err := f.Append(h, []byte("string2\n")); err != nil {
				p.err = err
				return
			}
			got, err := f.ReadAll(h)
			p.result, p.err = string(got), err
		})
	case "read_again":
		ctx.Spawn(func(h *kernel.TaskHandle, c *process.Context) {
			f, err := c.OpenFile("f1")
			if err != nil {
				p.err = err
				return
			}
			got, err := f.ReadAll(h)
			p.result, p.err = string(got), err
		})
	}
	return nil
}

func (p *storageProc) OnTimer(string, *process.Context) error { return nil }

// TestStorageDestroyedOnRecover exercises storage across a crash and
// recover. Unlike the literal scenario this is modeled on, file content
// here is destroyed by recover (not restored); see DESIGN.md for why
// that resolution was chosen over the alternative reading.
func TestStorageDestroyedOnRecover(t *testing.T) {
	s := New(12345)
	s.AddNodeWithStorage("n1", 1<<20)
	p := &storageProc{}
	s.AddProcess("p", p, "n1")

	s.SendLocalMessage("p", network.Message{Tip: "write_and_read"})
	s.StepUntilNoEvents()
	require.NoError(t, p.err)
	assert.Equal(t, "string1\nstring2\n", p.result)

	s.CrashNode("n1")
	s.RecoverNode("n1")

	// Crash/recover cleared the process map; the harness must repopulate
	// it. The file itself is gone too (destroyed on recover), so writing
	// the same content again must succeed as if f1 never existed.
	p2 := &storageProc{}
	s.AddProcess("q", p2, "n1")
	s.SendLocalMessage("q", network.Message{Tip: "write_and_read"})
	s.StepUntilNoEvents()
	require.NoError(t, p2.err)
	assert.Equal(t, "string1\nstring2\n", p2.result, "fresh file content after recover is independent of pre-crash data")
}

// timerProc records every timer firing it observes.
type timerProc struct {
	fired []float64
}

func (p *timerProc) OnMessage(network.Message, string, *process.Context) error { return nil }
func (p *timerProc) OnLocalMessage(msg network.Message, ctx *process.Context) error {
	switch msg.Tip {
	case "arm":
		ctx.SetTimer("T", 1.0)
	case "override":
		ctx.SetTimer("T", 2.0)
	}
	return nil
}
func (p *timerProc) OnTimer(name string, ctx *process.Context) error {
	p.fired = append(p.fired, ctx.Time())
	return nil
}

// TestTimerOverrideFiresOnce is scenario S4.
func TestTimerOverrideFiresOnce(t *testing.T) {
	s := New(1)
	s.AddNode("n1")
	p := &timerProc{}
	s.AddProcess("p", p, "n1")

	s.SendLocalMessage("p", network.Message{Tip: "arm"})
	s.StepForDuration(0.5)
	s.SendLocalMessage("p", network.Message{Tip: "override"})
	s.StepForDuration(2.5)

	require.Len(t, p.fired, 1)
	assert.Equal(t, 2.5, p.fired[0])
}

// sleepProc sleeps twice, sending a local message after each wake.
type sleepProc struct{}

func (sleepProc) OnMessage(network.Message, string, *process.Context) error { return nil }
func (sleepProc) OnLocalMessage(msg network.Message, ctx *process.Context) error {
	ctx.Spawn(func(h *kernel.TaskHandle, c *process.Context) {
		c.Sleep(h, 1)
		c.SendLocal(network.Message{Tip: "A"})
		c.Sleep(h, 2)
		c.SendLocal(network.Message{Tip: "B"})
	})
	return nil
}
func (sleepProc) OnTimer(string, *process.Context) error { return nil }

// TestSleepOrdering is scenario S5.
func TestSleepOrdering(t *testing.T) {
	s := New(1)
	s.AddNode("n1")
	s.AddProcess("p", sleepProc{}, "n1")

	s.SendLocalMessage("p", network.Message{Tip: "go"})
	s.StepUntilNoEvents()

	out := s.ReadLocalMessages("p")
	require.Len(t, out, 2)
	assert.Equal(t, "A", out[0].Tip)
	assert.Equal(t, "B", out[1].Tip)
}

// tagProc1 sends a tagged request and awaits the tagged reply.
type tagProc1 struct{ err error }

func (p *tagProc1) OnMessage(network.Message, string, *process.Context) error { return nil }
func (p *tagProc1) OnLocalMessage(msg network.Message, ctx *process.Context) error {
	ctx.Spawn(func(h *kernel.TaskHandle, c *process.Context) {
		p.err = c.SendRecvTag(h, network.Message{Tip: "tagged_msg", Data: "1235"}, 1235, "proc2", 10.0)
	})
	return nil
}
func (p *tagProc1) OnTimer(string, *process.Context) error { return nil }

// tagProc2 replies to every message with a tagged reply using the same
// tip and data, parsed from the request.
type tagProc2 struct{}

func (tagProc2) OnMessage(msg network.Message, from string, ctx *process.Context) error {
	ctx.Spawn(func(h *kernel.TaskHandle, c *process.Context) {
		_ = c.SendWithTag(h, msg, 1235, from, 10.0)
	})
	return nil
}
func (tagProc2) OnLocalMessage(network.Message, *process.Context) error { return nil }
func (tagProc2) OnTimer(string, *process.Context) error                { return nil }

// TestTaggedSendRecv is scenario S6.
func TestTaggedSendRecv(t *testing.T) {
	s := New(1)
	s.AddNode("n1")
	s.AddNode("n2")
	p1 := &tagProc1{}
	s.AddProcess("proc1", p1, "n1")
	s.AddProcess("proc2", tagProc2{}, "n2")
	s.Network().SetDelays(0.5, 1.5)
	s.Network().SetDropRate(0)

	s.SendLocalMessage("proc1", network.Message{Tip: "go"})
	s.StepUntilNoEvents()

	require.NoError(t, p1.err)
}

func TestBuildFromScenario(t *testing.T) {
	scn, err := parseTestScenario()
	require.NoError(t, err)
	s := Build(scn)
	assert.NotNil(t, s.Node("n1"))
	assert.NotNil(t, s.Node("n1").Storage())
}
