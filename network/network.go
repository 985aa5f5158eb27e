// Package network implements the faulty, lossy virtual network every
// cross-node message passes through: an unreliable Send (may drop,
// corrupt, or duplicate), and a reliable SendWithAck (never corrupts or
// duplicates, and tells the sender whether delivery succeeded).
package network

import (
	"math"
	"regexp"
	"strconv"

	"github.com/joeycumines/go-dslab/kernel"
	"github.com/joeycumines/go-dslab/trace"
)

// quotedString matches a double-quoted run, used to simulate corruption
// by blanking out string literals inside a message's Data, the same
// textual scheme the original fault model uses.
var quotedString = regexp.MustCompile(`"[^"]*"`)

// Network holds the fault-model configuration and node/process topology
// shared by every send on a single kernel.Kernel.
type Network struct {
	k   *kernel.Kernel
	id  kernel.ComponentID
	log *trace.Logger

	minDelay, maxDelay           float64
	dropRate, duplRate, corruptRate float64

	nodeIDs       map[string]kernel.ComponentID
	procLocations map[string]string

	dropIncoming  map[string]bool
	dropOutgoing  map[string]bool
	disabledLinks map[[2]string]bool

	messageCount uint64
	traffic      uint64
	nextMsgID    uint64
}

// New registers the network as a component on k (so awaiters can scope
// to it as a Src) and returns it with the original's default fault-free
// configuration: zero drop/dupl/corrupt rates, a fixed 1-unit delay.
func New(k *kernel.Kernel, log *trace.Logger) *Network {
	return &Network{
		k:             k,
		id:            k.Registry.Register("network"),
		log:           log,
		minDelay:      1,
		maxDelay:      1,
		nodeIDs:       make(map[string]kernel.ComponentID),
		procLocations: make(map[string]string),
		dropIncoming:  make(map[string]bool),
		dropOutgoing:  make(map[string]bool),
		disabledLinks: make(map[[2]string]bool),
	}
}

// ID returns the network's own component ID.
func (n *Network) ID() kernel.ComponentID { return n.id }

// AddNode registers a node's component ID so the network can address
// events to it.
func (n *Network) AddNode(name string, id kernel.ComponentID) {
	n.nodeIDs[name] = id
}

// SetProcLocation records which node hosts a process, needed to resolve
// a destination process name to a node ID on every send.
func (n *Network) SetProcLocation(proc, node string) {
	n.procLocations[proc] = node
}

// ProcLocation looks up which node hosts proc, if it has been
// registered via SetProcLocation.
func (n *Network) ProcLocation(proc string) (node string, ok bool) {
	node, ok = n.procLocations[proc]
	return
}

// SetDelay fixes the network delay to a single value.
func (n *Network) SetDelay(delay float64) { n.minDelay, n.maxDelay = delay, delay }

// SetDelays sets the [min, max) range messages are delayed by.
func (n *Network) SetDelays(min, max float64) { n.minDelay, n.maxDelay = min, max }

func (n *Network) MaxDelay() float64 { return n.maxDelay }

// SetDropRate sets the probability an unreliable cross-node send is
// dropped outright.
func (n *Network) SetDropRate(r float64) { n.dropRate = r }
func (n *Network) DropRate() float64     { return n.dropRate }

// SetDuplRate sets the probability an unreliable cross-node send is
// duplicated one or more extra times.
func (n *Network) SetDuplRate(r float64) { n.duplRate = r }
func (n *Network) DuplRate() float64     { return n.duplRate }

// SetCorruptRate sets the probability an unreliable cross-node send has
// its quoted-string content blanked out in transit.
func (n *Network) SetCorruptRate(r float64) { n.corruptRate = r }
func (n *Network) CorruptRate() float64     { return n.corruptRate }

// DropIncoming enables dropping of all messages addressed to node.
func (n *Network) DropIncoming(node string) {
	n.dropIncoming[node] = true
	n.log.Log(trace.LogEntry{Kind: trace.DropIncoming, Time: n.k.Now(), Node: node})
}

// PassIncoming disables dropping of incoming messages for node.
func (n *Network) PassIncoming(node string) {
	delete(n.dropIncoming, node)
	n.log.Log(trace.LogEntry{Kind: trace.PassIncoming, Time: n.k.Now(), Node: node})
}

// DropOutgoing enables dropping of all messages sent from node.
func (n *Network) DropOutgoing(node string) {
	n.dropOutgoing[node] = true
	n.log.Log(trace.LogEntry{Kind: trace.DropOutgoing, Time: n.k.Now(), Node: node})
}

// PassOutgoing disables dropping of outgoing messages for node.
func (n *Network) PassOutgoing(node string) {
	delete(n.dropOutgoing, node)
	n.log.Log(trace.LogEntry{Kind: trace.PassOutgoing, Time: n.k.Now(), Node: node})
}

// DisconnectNode is shorthand for enabling both DropIncoming and
// DropOutgoing for node.
func (n *Network) DisconnectNode(node string) {
	n.dropIncoming[node] = true
	n.dropOutgoing[node] = true
	n.log.Log(trace.LogEntry{Kind: trace.NodeDisconnected, Time: n.k.Now(), Node: node})
}

// ConnectNode is shorthand for disabling both DropIncoming and
// DropOutgoing for node.
func (n *Network) ConnectNode(node string) {
	delete(n.dropIncoming, node)
	delete(n.dropOutgoing, node)
	n.log.Log(trace.LogEntry{Kind: trace.NodeConnected, Time: n.k.Now(), Node: node})
}

// DisableLink drops every message sent from -> to, without affecting the
// reverse direction.
func (n *Network) DisableLink(from, to string) {
	n.disabledLinks[[2]string{from, to}] = true
	n.log.Log(trace.LogEntry{Kind: trace.LinkDisabled, Time: n.k.Now(), From: from, To: to})
}

// EnableLink reverses DisableLink.
func (n *Network) EnableLink(from, to string) {
	delete(n.disabledLinks, [2]string{from, to})
	n.log.Log(trace.LogEntry{Kind: trace.LinkEnabled, Time: n.k.Now(), From: from, To: to})
}

// MakePartition disables every link between the two groups, in both
// directions, isolating them from each other while leaving intra-group
// communication untouched.
func (n *Network) MakePartition(group1, group2 []string) {
	for _, a := range group1 {
		for _, b := range group2 {
			n.disabledLinks[[2]string{a, b}] = true
			n.disabledLinks[[2]string{b, a}] = true
		}
	}
	n.log.Log(trace.LogEntry{Kind: trace.NetworkPartition, Time: n.k.Now(), Group1: group1, Group2: group2})
}

// Reset re-enables every link and clears drop-incoming/drop-outgoing
// state, without touching drop/dupl/corrupt rates.
func (n *Network) Reset() {
	n.disabledLinks = make(map[[2]string]bool)
	n.dropIncoming = make(map[string]bool)
	n.dropOutgoing = make(map[string]bool)
	n.log.Log(trace.LogEntry{Kind: trace.NetworkReset, Time: n.k.Now()})
}

// MessageCount returns the number of sends issued so far: every
// cross-node Send (successful, dropped, or duplicated each count once as
// one send) and every reliable send, same-node ones included. Same-node
// Sends are not counted.
func (n *Network) MessageCount() uint64 { return n.messageCount }

// Traffic returns the total bytes of message content sent so far by the
// sends MessageCount counts (each duplicate counts once, by the size of
// the original send).
func (n *Network) Traffic() uint64 { return n.traffic }

func (n *Network) messageIsDropped(src, dst string) bool {
	return n.k.Clock().Rand() < n.dropRate ||
		n.dropOutgoing[src] ||
		n.dropIncoming[dst] ||
		n.disabledLinks[[2]string{src, dst}]
}

func (n *Network) corruptIfNeeded(msg Message) Message {
	if n.k.Clock().Rand() < n.corruptRate {
		return Message{Tip: msg.Tip, Data: quotedString.ReplaceAllString(msg.Data, `""`)}
	}
	return msg
}

func (n *Network) messageCountForSend() int {
	if n.k.Clock().Rand() >= n.duplRate {
		return 1
	}
	return int(math.Ceil(n.k.Clock().Rand()*2)) + 1
}

func (n *Network) randomDelay() float64 {
	return n.k.Clock().GenRange(n.minDelay, n.maxDelay)
}

// Send transmits msg from srcProc to dstProc without delivery guarantees:
// local (same-node) sends always arrive instantly and intact; cross-node
// sends may be dropped, corrupted, or duplicated according to the
// configured fault rates.
func (n *Network) Send(srcProc, dstProc string, msg Message) {
	msgSize := msg.Size()
	srcNode := n.procLocations[srcProc]
	dstNode := n.procLocations[dstProc]
	srcNodeID := n.nodeIDs[srcNode]
	dstNodeID := n.nodeIDs[dstNode]

	msgID := n.nextMsgID
	n.nextMsgID++

	n.log.Log(trace.LogEntry{
		Kind: trace.MessageSent, Time: n.k.Now(), MsgID: strconv.FormatUint(msgID, 10),
		SrcNode: srcNode, SrcProc: srcProc, DstNode: dstNode, DstProc: dstProc, Msg: msg.Tip,
	})

	payload := MessageDelivered{MsgID: msgID, Msg: msg, SrcProc: srcProc, SrcNode: srcNode, DstProc: dstProc, DstNode: dstNode}

	if srcNode == dstNode {
		n.k.ScheduleKeyed(0, srcNodeID, dstNodeID, KindMessageDelivered, msgID, payload)
		return
	}

	if !n.messageIsDropped(srcNode, dstNode) {
		payload.Msg = n.corruptIfNeeded(payload.Msg)
		count := n.messageCountForSend()
		for i := 0; i < count; i++ {
			n.k.ScheduleKeyed(n.randomDelay(), srcNodeID, dstNodeID, KindMessageDelivered, msgID, payload)
		}
	} else {
		n.log.Log(trace.LogEntry{
			Kind: trace.MessageDropped, Time: n.k.Now(), MsgID: strconv.FormatUint(msgID, 10),
			SrcNode: srcNode, SrcProc: srcProc, DstNode: dstNode, DstProc: dstProc, Msg: msg.Tip,
		})
	}

	n.messageCount++
	n.traffic += uint64(msgSize)
}

// SendWithAck transmits msg from srcProc to dstProc reliably: it is
// delivered at most once, never corrupted or duplicated, and the sender
// is told the outcome by an event addressed back to its own node, keyed
// by the returned message ID.
//
// The drop check deliberately does not consult the random drop_rate the
// way Send's does: reliable delivery is only defeated by topology (a
// disconnected node or disabled/partitioned link), matching the fault
// model's reference implementation, not the (looser) prose description
// of "the same fault model".
func (n *Network) SendWithAck(srcProc, dstProc string, msg Message) (msgID uint64) {
	return n.sendWithAckTagged(srcProc, dstProc, msg, 0, false)
}

// SendWithTag is SendWithAck plus a correlation tag delivered alongside
// the message, letting the receiver await it by tag via AwaitKey rather
// than needing to know the sender's event ID.
func (n *Network) SendWithTag(srcProc, dstProc string, msg Message, tag uint64) (msgID uint64) {
	return n.sendWithAckTagged(srcProc, dstProc, msg, tag, true)
}

func (n *Network) sendWithAckTagged(srcProc, dstProc string, msg Message, tag uint64, tagged bool) uint64 {
	msgSize := msg.Size()
	srcNode := n.procLocations[srcProc]
	dstNode := n.procLocations[dstProc]
	srcNodeID := n.nodeIDs[srcNode]
	dstNodeID := n.nodeIDs[dstNode]

	msgID := n.nextMsgID
	n.nextMsgID++

	n.log.Log(trace.LogEntry{
		Kind: trace.MessageSent, Time: n.k.Now(), MsgID: strconv.FormatUint(msgID, 10),
		SrcNode: srcNode, SrcProc: srcProc, DstNode: dstNode, DstProc: dstProc, Msg: msg.Tip,
	})

	payload := MessageDelivered{MsgID: msgID, Msg: msg, SrcProc: srcProc, SrcNode: srcNode, DstProc: dstProc, DstNode: dstNode}

	dropped := srcNodeID != dstNodeID &&
		(n.dropOutgoing[srcNode] || n.dropIncoming[dstNode] || n.disabledLinks[[2]string{srcNode, dstNode}])

	if dropped {
		n.log.Log(trace.LogEntry{
			Kind: trace.MessageDropped, Time: n.k.Now(), MsgID: strconv.FormatUint(msgID, 10),
			SrcNode: srcNode, SrcProc: srcProc, DstNode: dstNode, DstProc: dstProc, Msg: msg.Tip,
		})
		n.k.ScheduleKeyed(n.randomDelay(), n.id, srcNodeID, KindMessageDropped, msgID, MessageDropped(payload))
		n.messageCount++
		n.traffic += uint64(msgSize)
		return msgID
	}

	var delay float64
	if srcNodeID != dstNodeID {
		delay = n.minDelay + 2*n.k.Clock().Rand()*(n.maxDelay-n.minDelay)
	}

	// Ack-echo to the sender's own node, so Context.SendWithAck's await
	// (scoped to the network as Src) resolves regardless of where the
	// destination handler runs.
	n.k.ScheduleKeyed(delay, n.id, srcNodeID, KindMessageDelivered, msgID, payload)

	// Forward delivery is scheduled ordered per sending node: successive
	// reliable sends issued by the same node must be observed by the
	// destination in the order they were sent, even when randomized delays
	// tie or invert by floating-point noise.
	if tagged {
		n.k.ScheduleOrderedKeyed(delay, srcNodeID, dstNodeID, KindTaggedMessageDelivered, tag, TaggedMessageDelivered{MessageDelivered: payload, Tag: tag})
	} else {
		n.k.ScheduleOrderedKeyed(delay, srcNodeID, dstNodeID, KindMessageDelivered, msgID, payload)
	}

	n.messageCount++
	n.traffic += uint64(msgSize)
	return msgID
}
