package types

// PartialMessage is an in-progress reassembly.
type PartialMessage struct {
	NumFragments uint32
	NumReceived  uint32
	Fragments    map[uint32][]byte
}

// NewPartialMessage starts a reassembly for a just-seen fragment.
func NewPartialMessage() *PartialMessage {
	return &PartialMessage{Fragments: make(map[uint32][]byte)}
}

// PendingVaneAck is a message fully reassembled and offered to the local
// consumer, awaiting its done(ok)/drop response.
type PendingVaneAck struct {
	MessageNum MessageNum
	Blob       []byte
}

// SinkWindow bounds how far ahead of last-acked an inbound message may sit
// before it is rejected outright.
const SinkWindow = 10

// SinkState is one flow's inbound (message sink) state.
type SinkState struct {
	// LastAcked is the highest message-num the local consumer has
	// confirmed.
	LastAcked MessageNum
	// LastHeard is the highest message-num fully reassembled.
	LastHeard MessageNum

	LiveMessages map[MessageNum]*PartialMessage

	PendingVaneAck []PendingVaneAck

	// Nax holds message-nums whose local processing failed, retained
	// until the sender acknowledges the nack so duplicates can still be
	// deduped against it.
	Nax map[MessageNum]struct{}

	// Started marks that at least one message on this flow has finished
	// reassembly; used only to distinguish a genuinely fresh flow (nothing
	// ever reassembled, LastHeard at its zero value) from one merely
	// caught up.
	Started bool

	// AckStarted marks that the local consumer has actually completed at
	// least one message on this flow. Kept separate from Started: messages
	// can finish reassembly out of message-num order once the congestion
	// window is wide enough, so LastHeard may already be past message 0
	// while LastAcked still sits at its zero value because message 0 was
	// never itself acked. Without this flag, message 0's zero LastAcked
	// would be indistinguishable from "message 0 genuinely acked" and its
	// final fragment would be misrouted into the duplicate branch.
	AckStarted bool
}

// NewSinkState returns a fresh, empty inbound flow state.
func NewSinkState() *SinkState {
	return &SinkState{
		LiveMessages: make(map[MessageNum]*PartialMessage),
		Nax:          make(map[MessageNum]struct{}),
	}
}
