package types

// PendingFragment is a not-yet-fed fragment reference. Like LivePacket, it
// holds only an index into the owning whole-message blob — the byte slice
// is taken lazily, at encode time.
type PendingFragment struct {
	MessageNum   MessageNum
	NumFragments uint32
	FragmentNum  uint32
	Blob         []byte
}

// PumpState is one flow's outbound (message pump) state.
type PumpState struct {
	// Current is the lowest unacked message-num.
	Current MessageNum
	// Next is the next message-num to assign.
	Next MessageNum

	// UnsentMessages is the FIFO of whole blobs not yet fragmented.
	UnsentMessages [][]byte

	// UnsentFragments is the ordered remainder of the message currently
	// being fed into the packet pump, fragment by fragment.
	UnsentFragments []PendingFragment

	// QueuedAcks holds acks/nacks/naxplanations awaiting in-order
	// delivery to the local caller, keyed by message-num.
	QueuedAcks map[MessageNum]QueuedAck

	Congestion *CongestionState
}

// NewPumpState returns a fresh, empty outbound flow state.
func NewPumpState() *PumpState {
	return &PumpState{
		QueuedAcks: make(map[MessageNum]QueuedAck),
		Congestion: NewCongestionState(),
	}
}
