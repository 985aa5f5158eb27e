package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-dslab/kernel"
	"github.com/joeycumines/go-dslab/trace"
)

func newTestNetwork(t *testing.T) (*kernel.Kernel, *Network, kernel.ComponentID, kernel.ComponentID) {
	t.Helper()
	k := kernel.NewKernel(1)
	log := trace.NewLogger()
	n := New(k, log)

	a := k.Registry.Register("a")
	b := k.Registry.Register("b")
	n.AddNode("a", a)
	n.AddNode("b", b)
	n.SetProcLocation("p1", "a")
	n.SetProcLocation("p2", "b")
	return k, n, a, b
}

func TestLocalSendIsInstantAndReliable(t *testing.T) {
	k, n, a, _ := newTestNetwork(t)
	n.SetProcLocation("p3", "a") // second process on node a

	var delivered []kernel.Event
	k.RegisterHandler(a, func(e kernel.Event) { delivered = append(delivered, e) })

	n.Send("p1", "p3", Message{Tip: "ping"})
	k.StepUntilNoEvents()

	require.Len(t, delivered, 1)
	assert.Equal(t, 0.0, delivered[0].Time)
}

func TestCrossNodeSendDelivers(t *testing.T) {
	k, n, _, b := newTestNetwork(t)
	n.SetDelay(2)

	var delivered MessageDelivered
	got := false
	k.RegisterHandler(b, func(e kernel.Event) {
		delivered = e.Payload.(MessageDelivered)
		got = true
	})

	n.Send("p1", "p2", Message{Tip: "ping", Data: `{"x":1}`})
	k.StepUntilNoEvents()

	require.True(t, got)
	assert.Equal(t, "ping", delivered.Msg.Tip)
	assert.Equal(t, 2.0, k.Now())
	assert.EqualValues(t, 1, n.MessageCount())
}

func TestDropRateDropsUnreliableSend(t *testing.T) {
	k, n, _, b := newTestNetwork(t)
	n.SetDropRate(1)

	got := false
	k.RegisterHandler(b, func(e kernel.Event) { got = true })

	n.Send("p1", "p2", Message{Tip: "ping"})
	k.StepUntilNoEvents()

	assert.False(t, got)
}

func TestDisabledLinkDropsSend(t *testing.T) {
	k, n, _, b := newTestNetwork(t)
	n.DisableLink("a", "b")

	got := false
	k.RegisterHandler(b, func(e kernel.Event) { got = true })

	n.Send("p1", "p2", Message{Tip: "ping"})
	k.StepUntilNoEvents()

	assert.False(t, got)
}

func TestSendWithAckDropNotifiesSender(t *testing.T) {
	k, n, a, _ := newTestNetwork(t)
	n.DisableLink("a", "b")

	var gotDrop bool
	k.RegisterHandler(a, func(e kernel.Event) {
		if e.Kind == KindMessageDropped {
			gotDrop = true
		}
	})

	n.SendWithAck("p1", "p2", Message{Tip: "ping"})
	k.StepUntilNoEvents()

	assert.True(t, gotDrop)
}

func TestSendWithAckSuccessNotifiesSenderAndDestination(t *testing.T) {
	k, n, a, b := newTestNetwork(t)

	var ackSeen, deliverSeen bool
	k.RegisterHandler(a, func(e kernel.Event) {
		if e.Kind == KindMessageDelivered {
			ackSeen = true
		}
	})
	k.RegisterHandler(b, func(e kernel.Event) {
		if e.Kind == KindMessageDelivered {
			deliverSeen = true
		}
	})

	n.SendWithAck("p1", "p2", Message{Tip: "ping"})
	k.StepUntilNoEvents()

	assert.True(t, ackSeen)
	assert.True(t, deliverSeen)
}

func TestMakePartitionIsolatesGroups(t *testing.T) {
	k, n, _, b := newTestNetwork(t)
	n.MakePartition([]string{"a"}, []string{"b"})

	got := false
	k.RegisterHandler(b, func(e kernel.Event) { got = true })

	n.Send("p1", "p2", Message{Tip: "ping"})
	k.StepUntilNoEvents()
	assert.False(t, got)

	n.Reset()
	n.Send("p1", "p2", Message{Tip: "ping2"})
	k.StepUntilNoEvents()
	assert.True(t, got)
}
