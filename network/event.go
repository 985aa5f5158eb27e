package network

// Event kinds scheduled through a kernel.Kernel by this package. Node
// handlers and process awaiters key off these strings via AwaitKey.Kind.
const (
	KindMessageDelivered       = "network.MessageDelivered"
	KindTaggedMessageDelivered = "network.TaggedMessageDelivered"
	KindMessageDropped         = "network.MessageDropped"
)

// MessageDelivered is the payload of a delivered message, whether it
// arrived via the unreliable Send or the reliable SendWithAck.
type MessageDelivered struct {
	MsgID   uint64
	Msg     Message
	SrcProc string
	SrcNode string
	DstProc string
	DstNode string
}

// TaggedMessageDelivered is emitted to the destination, in place of
// MessageDelivered, for a reliable send that carried a correlation tag,
// letting a receiver await a reply by tag rather than by the sender's
// event ID. A tagged send delivers no untagged MessageDelivered to the
// destination.
type TaggedMessageDelivered struct {
	MessageDelivered
	Tag uint64
}

// MessageDropped is emitted back to the sending node when a reliable
// send is dropped by the fault model.
type MessageDropped struct {
	MsgID   uint64
	Msg     Message
	SrcProc string
	SrcNode string
	DstProc string
	DstNode string
}
