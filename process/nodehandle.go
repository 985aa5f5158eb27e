package process

import (
	"github.com/joeycumines/go-dslab/kernel"
	"github.com/joeycumines/go-dslab/network"
	"github.com/joeycumines/go-dslab/storage"
)

// NodeHandle is the slice of a node's behaviour a Context needs: process
// message/timer bookkeeping addressed by process name, plus access to
// the shared kernel, network, and storage. *node.Node implements this.
type NodeHandle interface {
	ID() kernel.ComponentID
	Now() float64
	ClockSkew() float64
	Kernel() *kernel.Kernel
	Network() *network.Network
	Storage() *storage.Storage // nil if the node has none attached

	Spawn(fn func(h *kernel.TaskHandle)) *kernel.Task

	PendingTimer(proc, name string) (eventID int64, ok bool)
	SetPendingTimer(proc, name string, eventID int64)
	ClearPendingTimer(proc, name string)

	PushLocalMessage(proc string, msg network.Message)
	IncrementSentCount(proc string)
}
