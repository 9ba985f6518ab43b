package types

// Bone is an opaque per-peer flow identifier. The low two bits classify the
// flow; everything above them is just a counter.
type Bone uint32

const (
	boneForwardBit  Bone = 1 << 0
	boneNackTraceBit Bone = 1 << 1
)

// IsForward reports whether b names a request-direction (forward) flow.
// Bit 0 clear means forward, set means backward.
func (b Bone) IsForward() bool {
	return b&boneForwardBit == 0
}

// IsBackward reports whether b names a response-direction flow.
func (b Bone) IsBackward() bool {
	return !b.IsForward()
}

// IsNackTrace reports whether b has both the backward bit and the
// nack-trace bit set. NackTracePair of an even bone keeps bit 0 clear, so
// the nack-trace bones core.Transport pairs with forward bones are not
// reported as nack-trace by this method.
func (b Bone) IsNackTrace() bool {
	return b.IsBackward() && b&boneNackTraceBit != 0
}

// NackTracePair returns the nack-trace bone paired with an even (forward)
// bone, flipping only the nack-trace classification bit.
func (b Bone) NackTracePair() Bone {
	return b ^ boneNackTraceBit
}

// IncomingFlip flips the direction bit of a bone. core.Transport does not
// apply it to inbound packets: the bone carried on the wire is looked up
// unchanged, in the peer's Rcv map for fragments and its Snd map for acks.
func (b Bone) IncomingFlip() Bone {
	return b ^ boneForwardBit
}

// BoneStep is the fixed increment used when minting a fresh bone: advancing
// by 4 keeps the low two classification bits free for every newly assigned
// flow pair.
const BoneStep Bone = 4

// MessageNum is a 32-bit per-flow message sequence number.
type MessageNum uint32
