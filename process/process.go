// Package process defines the user-facing process API: the three
// callbacks a process implements, and the Context façade a node hands to
// each callback invocation. Context deliberately carries only a process
// name plus a NodeHandle (an interface satisfied by *node.Node) rather
// than a direct node pointer, so this package never imports node: node
// imports process for the Process interface, and Context looks up
// everything else (network, storage, kernel) through NodeHandle instead
// of holding its own copies, breaking the cyclic reference graph the
// original Rc<RefCell> design relied on.
package process

import "github.com/joeycumines/go-dslab/network"

// Process is implemented by user code. Errors returned from any callback
// are logged and discarded; they never abort the simulation.
type Process interface {
	OnMessage(msg network.Message, from string, ctx *Context) error
	OnLocalMessage(msg network.Message, ctx *Context) error
	OnTimer(name string, ctx *Context) error
}
