// Package system is the harness façade: a seeded kernel, one shared
// network, an optional logger sink, and a name-indexed set of nodes. It
// wraps the lower-level packages behind the small surface a test or
// example program actually needs, so callers never touch the kernel
// directly.
package system

import (
	"github.com/joeycumines/go-dslab/config"
	"github.com/joeycumines/go-dslab/kernel"
	"github.com/joeycumines/go-dslab/network"
	"github.com/joeycumines/go-dslab/node"
	"github.com/joeycumines/go-dslab/process"
	"github.com/joeycumines/go-dslab/trace"
)

// System is the top-level simulation handle.
type System struct {
	k     *kernel.Kernel
	net   *network.Network
	log   *trace.Logger
	nodes map[string]*node.Node
}

// New builds a fresh simulation seeded for reproducibility, with an
// in-memory trace logger.
func New(seed uint64) *System {
	k := kernel.NewKernel(seed)
	log := trace.NewLogger()
	return &System{
		k:     k,
		net:   network.New(k, log),
		log:   log,
		nodes: make(map[string]*node.Node),
	}
}

// AddNode registers a new node with no storage attached.
func (s *System) AddNode(name string) *node.Node {
	n := node.New(s.k, s.net, s.log, name)
	s.nodes[name] = n
	return n
}

// AddNodeWithStorage registers a new node with a throughput-model disk
// of the given capacity, defaulting its throughput to 1 MiB/s.
func (s *System) AddNodeWithStorage(name string, capacityBytes uint64) *node.Node {
	n := s.AddNode(name)
	n.AttachStorage(capacityBytes, 1<<20)
	return n
}

// AddProcess installs impl under proc on the named node.
func (s *System) AddProcess(proc string, impl process.Process, nodeName string) {
	n, ok := s.nodes[nodeName]
	if !ok {
		panic("system: unknown node " + nodeName)
	}
	n.AddProcess(proc, impl)
}

// Node looks up a previously added node by name.
func (s *System) Node(name string) *node.Node { return s.nodes[name] }

// Network exposes the shared network, for fault injection
// (SetDelays, SetDropRate, MakePartition, DisconnectNode, ...).
func (s *System) Network() *network.Network { return s.net }

// Logger exposes the shared trace logger.
func (s *System) Logger() *trace.Logger { return s.log }

// SendLocalMessage delivers msg to proc on the node that owns it.
func (s *System) SendLocalMessage(proc string, msg network.Message) {
	s.nodeOf(proc).SendLocalMessage(proc, msg)
}

// ReadLocalMessages drains proc's local outbox.
func (s *System) ReadLocalMessages(proc string) []network.Message {
	return s.nodeOf(proc).ReadLocalMessages(proc)
}

func (s *System) nodeOf(proc string) *node.Node {
	nodeName, ok := s.net.ProcLocation(proc)
	if !ok {
		panic("system: unknown process " + proc)
	}
	n, ok := s.nodes[nodeName]
	if !ok {
		panic("system: process " + proc + " belongs to unregistered node " + nodeName)
	}
	return n
}

// CrashNode crashes the named node.
func (s *System) CrashNode(name string) { s.mustNode(name).Crash() }

// RecoverNode recovers the named node from a crash.
func (s *System) RecoverNode(name string) { s.mustNode(name).Recover() }

// ShutdownNode shuts down the named node.
func (s *System) ShutdownNode(name string) { s.mustNode(name).Shutdown() }

// RerunNode reruns a previously shut down node.
func (s *System) RerunNode(name string) { s.mustNode(name).Rerun() }

func (s *System) mustNode(name string) *node.Node {
	n, ok := s.nodes[name]
	if !ok {
		panic("system: unknown node " + name)
	}
	return n
}

// Step advances the simulation to the next event or timer, or does
// nothing if none are scheduled.
func (s *System) Step() bool { return s.k.Step() }

// Steps advances the simulation n times.
func (s *System) Steps(n int) { s.k.Steps(n) }

// StepUntilNoEvents runs until the event and timer queues are empty.
func (s *System) StepUntilNoEvents() { s.k.StepUntilNoEvents() }

// StepForDuration advances virtual time by d.
func (s *System) StepForDuration(d float64) { s.k.StepForDuration(d) }

// StepUntilLocalMessage steps until proc's local outbox is non-empty, or
// the event queue drains with nothing delivered.
func (s *System) StepUntilLocalMessage(proc string) {
	n := s.nodeOf(proc)
	for len(n.LocalOutbox(proc)) == 0 {
		if !s.k.Step() {
			return
		}
	}
}

// Time returns the simulation's current virtual time.
func (s *System) Time() float64 { return s.k.Now() }

// SentMessageCount returns how many messages proc has sent to others.
func (s *System) SentMessageCount(proc string) uint64 {
	return s.nodeOf(proc).SentMessageCount(proc)
}

// ReceivedMessageCount returns how many messages proc has received.
func (s *System) ReceivedMessageCount(proc string) uint64 {
	return s.nodeOf(proc).ReceivedMessageCount(proc)
}

// Build constructs a System from a Scenario: adds every node (with
// storage if configured) and applies the network's fault parameters.
// Processes are not constructed here since config.ProcessConfig only
// names a Kind; callers add processes with AddProcess after looking
// their constructor up in an application-specific registry.
func Build(scn *config.Scenario) *System {
	s := New(scn.Seed)
	for _, nc := range scn.Nodes {
		var n *node.Node
		if nc.Storage != nil {
			n = s.AddNode(nc.Name)
			n.AttachStorage(nc.Storage.CapacityBytes, nc.Storage.ThroughputBps)
		} else {
			n = s.AddNode(nc.Name)
		}
		n.SetClockSkew(nc.ClockSkew)
	}
	s.net.SetDelays(scn.Network.MinDelay, scn.Network.MaxDelay)
	s.net.SetDropRate(scn.Network.DropRate)
	s.net.SetDuplRate(scn.Network.DuplRate)
	s.net.SetCorruptRate(scn.Network.CorruptRate)
	for _, pair := range scn.Network.DisabledLinks {
		s.net.DisableLink(pair[0], pair[1])
	}
	if len(scn.Network.Partitions) == 2 {
		s.net.MakePartition(scn.Network.Partitions[0], scn.Network.Partitions[1])
	}
	return s
}
