package types

// FragmentSize is the logical byte size used to divide a message blob into
// fragments. Fragment 0 of every message always carries the
// message's total fragment count.
const FragmentSize = 1024

// NumFragmentsFor returns how many FragmentSize-byte fragments blob divides
// into, always at least one (an empty blob is still a single fragment).
func NumFragmentsFor(blobLen int) uint32 {
	if blobLen == 0 {
		return 1
	}
	n := blobLen / FragmentSize
	if blobLen%FragmentSize != 0 {
		n++
	}
	return uint32(n)
}

// FragmentBytes slices the fragmentNum'th FragmentSize chunk out of blob.
// Slicing happens here, at encode time, rather than when the fragment is
// enqueued — the pump only ever holds a reference to the whole blob plus an
// index, avoiding quadratic allocation on large messages.
func FragmentBytes(blob []byte, fragmentNum uint32) []byte {
	start := int(fragmentNum) * FragmentSize
	if start >= len(blob) {
		return nil
	}
	end := start + FragmentSize
	if end > len(blob) {
		end = len(blob)
	}
	return blob[start:end]
}

// AckKind discriminates the three possible outcomes of a completed message
// delivery, as observed by the sender.
type AckKind int

const (
	// AckOK means the message was accepted and processed by the peer.
	AckOK AckKind = iota
	// AckNack means the peer's message-ack reported ok=false, with no
	// accompanying explanation yet.
	AckNack
	// AckNaxplanation means an explanatory message landed on the paired
	// nack-trace bone; it supersedes a bare AckNack for the same message.
	AckNaxplanation
)

// QueuedAck is what the message pump stashes per message-num while waiting
// for in-order delivery to the local caller.
type QueuedAck struct {
	Kind  AckKind
	Error error
}

// Supersedes reports whether other should replace q when both are known for
// the same message-num: a naxplanation always wins over a bare nack, and
// nothing ever displaces an already-queued naxplanation.
func (q QueuedAck) Supersedes(other QueuedAck) bool {
	if q.Kind == AckNaxplanation {
		return false
	}
	return other.Kind == AckNaxplanation
}

// Done is what the local caller of a flow observes exactly once per
// message, in strict message-num order.
type Done struct {
	MessageNum MessageNum
	Err        error
}
