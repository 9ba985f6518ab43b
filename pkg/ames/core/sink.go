package core

import (
	"fmt"

	"github.com/arvo-os/ames/pkg/ames/types"
	"github.com/arvo-os/ames/pkg/ames/wire"
)

// InboundFragment is one fragment arriving off the wire for a sink's flow.
type InboundFragment struct {
	MessageNum   types.MessageNum
	NumFragments uint32
	FragmentNum  uint32
	Data         []byte
}

func (f InboundFragment) isFinal() bool {
	return f.FragmentNum == f.NumFragments-1
}

// SinkAck is the ack the sink decided to send back in response to a
// received fragment, nil when none is warranted.
type SinkAck struct {
	Kind             wire.MeatKind
	MessageNum       types.MessageNum
	AckedFragmentNum uint32
	OK               bool
}

// MessageSink is one flow's inbound engine: reassembly,
// duplicate suppression, and ack scheduling.
type MessageSink struct {
	state *types.SinkState
}

func NewMessageSink(state *types.SinkState) *MessageSink {
	return &MessageSink{state: state}
}

// Receive applies the sink's reception policy to one inbound fragment and
// returns the ack to send (if any) and a just-completed message to hand to
// the local consumer (if reassembly just finished).
//
// Reception policy:
//   - message-num >= last-acked+SinkWindow is rejected outright (sliding
//     window of in-flight inbound messages).
//   - a duplicate (seq <= last-acked, once the consumer has actually
//     acked at least one message on this flow): the final fragment gets
//     the cached message-ack re-sent; any other fragment gets a plain
//     fragment-ack. Gated on AckStarted rather than Started: messages can
//     complete reassembly out of order, so LastHeard alone can't tell a
//     message that was truly acked from one that simply hasn't been
//     assigned a message-num yet.
//   - seq <= last-heard but > last-acked, and already reassembled (still
//     queued for the consumer): every fragment but the final one is acked —
//     the final fragment is dropped rather than committing to a
//     positive/negative message-ack before the consumer has responded. A
//     message below last-heard that has not itself been reassembled yet
//     (an earlier message overtaken by a later one) takes the next branch.
//   - seq > last-heard, inside the window: inserted into live-messages,
//     acked unless it is the final fragment; on completion the message is
//     reassembled and handed to the caller.
func (s *MessageSink) Receive(f InboundFragment) (ack *SinkAck, delivered *types.PendingVaneAck, err error) {
	if f.MessageNum >= s.state.LastAcked+types.SinkWindow {
		return nil, nil, types.ErrWindowExceeded
	}

	if s.state.AckStarted && f.MessageNum <= s.state.LastAcked {
		if f.isFinal() {
			_, nacked := s.state.Nax[f.MessageNum]
			return &SinkAck{Kind: wire.MeatMessageAck, MessageNum: f.MessageNum, OK: !nacked}, nil, nil
		}
		return &SinkAck{Kind: wire.MeatFragmentAck, MessageNum: f.MessageNum, AckedFragmentNum: f.FragmentNum}, nil, nil
	}

	if s.state.Started && f.MessageNum <= s.state.LastHeard {
		reassembled := false
		for _, pv := range s.state.PendingVaneAck {
			if pv.MessageNum == f.MessageNum {
				reassembled = true
				break
			}
		}
		if reassembled {
			if f.isFinal() {
				return nil, nil, nil
			}
			return &SinkAck{Kind: wire.MeatFragmentAck, MessageNum: f.MessageNum, AckedFragmentNum: f.FragmentNum}, nil, nil
		}
	}

	partial, ok := s.state.LiveMessages[f.MessageNum]
	if !ok {
		partial = types.NewPartialMessage()
		partial.NumFragments = f.NumFragments
		s.state.LiveMessages[f.MessageNum] = partial
	} else if partial.NumFragments != f.NumFragments {
		return nil, nil, fmt.Errorf("%w: message %d", types.ErrFragmentMismatch, f.MessageNum)
	}

	if _, seen := partial.Fragments[f.FragmentNum]; !seen {
		partial.Fragments[f.FragmentNum] = f.Data
		partial.NumReceived++
	}

	if partial.NumReceived < partial.NumFragments {
		if f.isFinal() {
			return nil, nil, nil
		}
		return &SinkAck{Kind: wire.MeatFragmentAck, MessageNum: f.MessageNum, AckedFragmentNum: f.FragmentNum}, nil, nil
	}

	blob, rerr := reassemble(partial)
	delete(s.state.LiveMessages, f.MessageNum)
	if rerr != nil {
		return nil, nil, rerr
	}
	if !s.state.Started || f.MessageNum > s.state.LastHeard {
		s.state.LastHeard = f.MessageNum
	}
	s.state.Started = true
	pending := types.PendingVaneAck{MessageNum: f.MessageNum, Blob: blob}
	s.state.PendingVaneAck = append(s.state.PendingVaneAck, pending)
	return nil, &pending, nil
}

func reassemble(p *types.PartialMessage) ([]byte, error) {
	var out []byte
	for i := uint32(0); i < p.NumFragments; i++ {
		chunk, ok := p.Fragments[i]
		if !ok {
			return nil, fmt.Errorf("%w: missing fragment %d", types.ErrMalformedPacket, i)
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// IsConsumerIdle reports whether the local consumer currently has nothing
// offered — the point at which a just-reassembled message should be handed
// over immediately rather than left queued.
func (s *MessageSink) IsConsumerIdle() bool {
	return len(s.state.PendingVaneAck) == 0
}

// ConsumerDone applies the local consumer's done(ok) response to the
// message currently offered: pops it, advances last-acked, records a nack
// if the consumer failed, and returns the message-ack to emit plus the
// next message (if any) to offer.
func (s *MessageSink) ConsumerDone(ok bool) (acked types.PendingVaneAck, ackToSend SinkAck, next *types.PendingVaneAck) {
	acked = s.state.PendingVaneAck[0]
	s.state.PendingVaneAck = s.state.PendingVaneAck[1:]
	s.state.LastAcked = acked.MessageNum
	s.state.AckStarted = true
	if !ok {
		s.state.Nax[acked.MessageNum] = struct{}{}
	}
	ackToSend = SinkAck{Kind: wire.MeatMessageAck, MessageNum: acked.MessageNum, OK: ok}
	if len(s.state.PendingVaneAck) > 0 {
		head := s.state.PendingVaneAck[0]
		next = &head
	}
	return acked, ackToSend, next
}

// ConsumerDrop applies drop(message-num): the sender has acknowledged our
// nack, so it no longer needs to be retained for dedup.
func (s *MessageSink) ConsumerDrop(messageNum types.MessageNum) {
	delete(s.state.Nax, messageNum)
}
