package wire

import "github.com/arvo-os/ames/pkg/ames/types"

// MeatKind discriminates a shut packet's payload, a closed sum matched
// exhaustively wherever it's consumed.
type MeatKind uint8

const (
	MeatFragment MeatKind = iota
	MeatFragmentAck
	MeatMessageAck
)

// Meat is the payload of a shut packet: either a fragment of a message
// still being sent, or one of the two ack shapes.
type Meat struct {
	Kind MeatKind `cbor:"kind"`

	// Fragment fields (Kind == MeatFragment).
	NumFragments uint32 `cbor:"nf,omitempty"`
	FragmentNum  uint32 `cbor:"fn,omitempty"`
	FragmentData []byte `cbor:"fd,omitempty"`

	// FragmentAck fields (Kind == MeatFragmentAck).
	AckedFragmentNum uint32 `cbor:"afn,omitempty"`

	// MessageAck fields (Kind == MeatMessageAck).
	OK  bool  `cbor:"ok,omitempty"`
	Lag int64 `cbor:"lag,omitempty"` // nanoseconds
}

// ShutPacketBody is the plaintext of every shut packet.
type ShutPacketBody struct {
	Bone       types.Bone       `cbor:"bone"`
	MessageNum types.MessageNum `cbor:"num"`
	Meat       Meat             `cbor:"meat"`
}
