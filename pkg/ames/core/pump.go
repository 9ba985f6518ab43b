package core

import (
	"time"

	"github.com/arvo-os/ames/pkg/ames/types"
)

// OutboundFragment is a fragment the packet pump has decided to (re)send.
// The message pump only ever produces these; encoding and encryption is
// the peer dispatch layer's job, since only it holds the channel.
type OutboundFragment struct {
	MessageNum   types.MessageNum
	NumFragments uint32
	FragmentNum  uint32
	Data         []byte
}

// MessagePump is one flow's outbound engine: it fragments
// messages, feeds the packet pump, collects acks, and delivers in-order
// ack/nack/naxplanation results to the local caller.
type MessagePump struct {
	state *types.PumpState
	cc    *PacketPump
}

func NewMessagePump(state *types.PumpState) *MessagePump {
	return &MessagePump{state: state, cc: NewPacketPump(state.Congestion)}
}

// Memo appends a whole message blob to the unsent queue. The caller still
// needs to call FeedAll to actually push fragments through the packet pump.
func (mp *MessagePump) Memo(blob []byte) {
	mp.state.UnsentMessages = append(mp.state.UnsentMessages, blob)
}

// pullNextMessage ensures unsent-fragments is non-empty if there is any
// whole message left to fragment, assigning it the next message-num.
func (mp *MessagePump) pullNextMessage() bool {
	if len(mp.state.UnsentFragments) > 0 {
		return true
	}
	if len(mp.state.UnsentMessages) == 0 {
		return false
	}
	blob := mp.state.UnsentMessages[0]
	mp.state.UnsentMessages = mp.state.UnsentMessages[1:]

	num := mp.state.Next
	mp.state.Next++

	n := types.NumFragmentsFor(len(blob))
	frags := make([]types.PendingFragment, n)
	for i := uint32(0); i < n; i++ {
		frags[i] = types.PendingFragment{
			MessageNum:   num,
			NumFragments: n,
			FragmentNum:  i,
			Blob:         blob,
		}
	}
	mp.state.UnsentFragments = frags
	return true
}

func toOutbound(lp types.LivePacket) OutboundFragment {
	return OutboundFragment{
		MessageNum:   lp.MessageNum,
		NumFragments: lp.NumFragments,
		FragmentNum:  lp.FragmentNum,
		Data:         types.FragmentBytes(lp.Blob, lp.FragmentNum),
	}
}

// FeedAll keeps pulling messages into fragments and feeding them to the
// packet pump until the congestion window is exhausted or there is nothing
// left to send.
func (mp *MessagePump) FeedAll(now time.Time) []OutboundFragment {
	var out []OutboundFragment
	for {
		if len(mp.state.UnsentFragments) == 0 {
			if !mp.pullNextMessage() {
				break
			}
		}
		fed, tail := mp.cc.Feed(mp.state.UnsentFragments, now)
		mp.state.UnsentFragments = tail
		if len(fed) == 0 {
			break
		}
		for _, lp := range fed {
			out = append(out, toOutbound(lp))
		}
	}
	return out
}

// HearFragmentAck delivers a bare fragment ack to the packet pump and
// returns anything that must be resent as a result (skip-threshold or
// fast-retransmit). Acks for message-nums below current or not yet
// assigned (at or above next) are ignored.
func (mp *MessagePump) HearFragmentAck(messageNum types.MessageNum, fragmentNum uint32, now time.Time) []OutboundFragment {
	if messageNum < mp.state.Current || messageNum >= mp.state.Next {
		return nil
	}
	result := mp.cc.Ack(messageNum, fragmentNum, now)
	var out []OutboundFragment
	for _, lp := range result.Resend {
		out = append(out, toOutbound(lp))
	}
	return out
}

// flushMessage acks every fragment of messageNum still live — a
// message-ack implies all of its fragment acks.
func (mp *MessagePump) flushMessage(messageNum types.MessageNum, now time.Time) {
	var fragments []uint32
	for _, lp := range mp.state.Congestion.Live {
		if lp.MessageNum == messageNum {
			fragments = append(fragments, lp.FragmentNum)
		}
	}
	for _, f := range fragments {
		mp.cc.Ack(messageNum, f, now)
	}
}

// queueAck applies supersede semantics: a naxplanation
// always wins over a bare nack, and nothing displaces an already-queued
// naxplanation.
func (mp *MessagePump) queueAck(messageNum types.MessageNum, ack types.QueuedAck) {
	if existing, ok := mp.state.QueuedAcks[messageNum]; ok && !existing.Supersedes(ack) {
		return
	}
	mp.state.QueuedAcks[messageNum] = ack
}

// drain emits done(message-num, err) for every message-num starting at
// current whose ack has already arrived, advancing current in lock-step —
// this is the only place dones are produced, which is what guarantees
// strict message-num ordering for the local caller. A bare nack at current
// stops the drain: its done is emitted only once the naxplanation for it
// has superseded it.
func (mp *MessagePump) drain() []types.Done {
	var dones []types.Done
	for {
		qa, ok := mp.state.QueuedAcks[mp.state.Current]
		if !ok || qa.Kind == types.AckNack {
			break
		}
		delete(mp.state.QueuedAcks, mp.state.Current)
		var err error
		switch qa.Kind {
		case types.AckOK:
			err = nil
		case types.AckNaxplanation:
			err = qa.Error
		}
		dones = append(dones, types.Done{MessageNum: mp.state.Current, Err: err})
		mp.state.Current++
	}
	return dones
}

// HearMessageAck handles a message-ack(ok, lag): queues the result at
// message-num, flushes the packet pump for that message, and drains
// queued-message-acks from current upward.
func (mp *MessagePump) HearMessageAck(messageNum types.MessageNum, ok bool, now time.Time) []types.Done {
	mp.flushMessage(messageNum, now)
	kind := types.AckOK
	if !ok {
		kind = types.AckNack
	}
	mp.queueAck(messageNum, types.QueuedAck{Kind: kind})
	return mp.drain()
}

// HearNaxplanation handles near(message-num, error): a naxplanation
// message landing on the paired forward bone supersedes a prior bare nack.
func (mp *MessagePump) HearNaxplanation(messageNum types.MessageNum, cause error) []types.Done {
	mp.queueAck(messageNum, types.QueuedAck{Kind: types.AckNaxplanation, Error: cause})
	return mp.drain()
}

// Prod resets congestion state back to its initial slow-start regime.
func (mp *MessagePump) Prod() {
	mp.state.Congestion.Cwnd = types.InitialCwnd
	mp.state.Congestion.Ssthresh = types.InitialSsthresh
}

// Wake handles the packet-pump timer firing. A spurious early wake (the
// scheduled time has not actually arrived) is tolerated by doing nothing,
// timer discipline.
func (mp *MessagePump) Wake(now time.Time) []OutboundFragment {
	nextWake, armed := mp.cc.NextWake()
	if !armed || now.Before(nextWake) {
		return nil
	}
	lp := mp.cc.Timeout(now)
	if lp == nil {
		return nil
	}
	return []OutboundFragment{toOutbound(*lp)}
}

// NextWake exposes the packet pump's current retransmit deadline so the
// peer dispatch layer can decide whether to (re)arm its timer.
func (mp *MessagePump) NextWake() (time.Time, bool) {
	return mp.cc.NextWake()
}

// Idle reports whether the flow has nothing left in flight or queued —
// the point at which the packet pump's timer should be cancelled via an
// explicit rest effect.
func (mp *MessagePump) Idle() bool {
	return len(mp.state.Congestion.Live) == 0 &&
		len(mp.state.UnsentFragments) == 0 &&
		len(mp.state.UnsentMessages) == 0
}
