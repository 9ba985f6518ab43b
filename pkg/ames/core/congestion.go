package core

import (
	"sort"
	"time"

	"github.com/arvo-os/ames/internal/mug"
	"github.com/arvo-os/ames/pkg/ames/types"
)

// PacketPump is a TCP-like congestion controller. It operates directly on
// a *types.CongestionState value owned by the enclosing message pump;
// there are no back-references
type PacketPump struct {
	state *types.CongestionState
}

func NewPacketPump(state *types.CongestionState) *PacketPump {
	return &PacketPump{state: state}
}

// liveIndex returns the index of the first live packet whose key is >=
// (num, frag) — either the exact match, or where it would be inserted.
func (p *PacketPump) liveIndex(num types.MessageNum, frag uint32) int {
	live := p.state.Live
	return sort.Search(len(live), func(i int) bool {
		return !liveLess(live[i].MessageNum, live[i].FragmentNum, num, frag)
	})
}

func liveLess(num types.MessageNum, frag uint32, onum types.MessageNum, ofrag uint32) bool {
	if num != onum {
		return num < onum
	}
	return frag < ofrag
}

func liveEqual(num types.MessageNum, frag uint32, p types.LivePacket) bool {
	return num == p.MessageNum && frag == p.FragmentNum
}

func (p *PacketPump) insertSorted(lp types.LivePacket) {
	live := p.state.Live
	idx := p.liveIndex(lp.MessageNum, lp.FragmentNum)
	live = append(live, types.LivePacket{})
	copy(live[idx+1:], live[idx:])
	live[idx] = lp
	p.state.Live = live
}

func (p *PacketPump) removeAt(idx int) types.LivePacket {
	lp := p.state.Live[idx]
	p.state.Live = append(p.state.Live[:idx], p.state.Live[idx+1:]...)
	return lp
}

// Feed takes up to cwnd-num_live packets off the front of pending, enqueues
// them as live, and returns the unsent tail: the message pump calls this
// and gets full visibility into backpressure.
func (p *PacketPump) Feed(pending []types.PendingFragment, now time.Time) (fed []types.LivePacket, tail []types.PendingFragment) {
	slots := p.state.Cwnd - p.state.NumLive
	if slots < 0 {
		slots = 0
	}
	if slots > len(pending) {
		slots = len(pending)
	}

	for i := 0; i < slots; i++ {
		pf := pending[i]
		p.state.Counter++
		lp := types.LivePacket{
			MessageNum:   pf.MessageNum,
			FragmentNum:  pf.FragmentNum,
			NumFragments: pf.NumFragments,
			Blob:         pf.Blob,
			LastSent:     now,
			Tries:        1,
			NextExpiry:   now.Add(p.state.RTO),
			Counter:      p.state.Counter,
		}
		p.insertSorted(lp)
		fed = append(fed, lp)
	}
	p.state.NumLive += slots
	tail = pending[slots:]
	return fed, tail
}

// AckResult reports what an Ack call decided.
type AckResult struct {
	Acked   *types.LivePacket
	Resend  []types.LivePacket
}

// Ack handles an incoming ack for (messageNum, fragmentNum): it updates
// cwnd/ssthresh/rtt/rto when the acked packet is found live, marks earlier
// still-live packets as skipped, and returns anything that must be resent
// immediately by the skip-threshold and fast-retransmit rules.
func (p *PacketPump) Ack(messageNum types.MessageNum, fragmentNum uint32, now time.Time) AckResult {
	var result AckResult

	idx := p.liveIndex(messageNum, fragmentNum)
	if idx < len(p.state.Live) && liveEqual(messageNum, fragmentNum, p.state.Live[idx]) {
		acked := p.removeAt(idx)
		p.state.NumLive--
		p.state.Counter++
		p.onFreshAck(acked, now)
		result.Acked = &acked
	}

	result.Resend = append(result.Resend, p.handleSkipsAndExpiry(messageNum, fragmentNum, now)...)
	return result
}

func (p *PacketPump) onFreshAck(acked types.LivePacket, now time.Time) {
	if p.state.InSlowStart() {
		p.state.Cwnd++
	} else if p.state.Cwnd > 0 && mug.OfUint64(uint64(now.UnixNano()))%uint32(p.state.Cwnd) == 0 {
		p.state.Cwnd++
	}

	if acked.Tries == 1 {
		sample := now.Sub(acked.LastSent)
		if p.state.RTT == 0 {
			p.state.RTT = sample
			p.state.RTTVar = sample / 2
		} else {
			p.state.RTT = (sample + 7*p.state.RTT) / 8
			dev := sample - p.state.RTT
			if dev < 0 {
				dev = -dev
			}
			p.state.RTTVar = (dev + 7*p.state.RTTVar) / 8
		}
		p.state.RTO = types.ClampRTO(p.state.RTT + 4*p.state.RTTVar)
	}
}

// handleSkipsAndExpiry walks live packets strictly preceding the acked key,
// in order, incrementing skip counts and resending those that cross the
// skip threshold or whose individual expiry has already passed.
func (p *PacketPump) handleSkipsAndExpiry(ackedNum types.MessageNum, ackedFrag uint32, now time.Time) []types.LivePacket {
	var resend []types.LivePacket
	halved := false

	for i := range p.state.Live {
		lp := &p.state.Live[i]
		if !liveLess(lp.MessageNum, lp.FragmentNum, ackedNum, ackedFrag) {
			break
		}

		eligible := false
		if !lp.NextExpiry.After(now) {
			eligible = true
		} else {
			lp.Skips++
			if lp.Tries <= 1 && (p.state.InRecovery() || lp.Skips >= 3) {
				eligible = true
			}
		}

		if eligible {
			if !halved && !p.state.InRecovery() {
				p.state.Cwnd /= 2
				if p.state.Cwnd < 2 {
					p.state.Cwnd = 2
				}
				halved = true
			}
			lp.Tries++
			lp.LastSent = now
			lp.NextExpiry = now.Add(p.state.RTO)
			resend = append(resend, *lp)
		}
	}
	return resend
}

// Timeout fires when the pump's RTO expires with packets still live: slow
// start resets, the head of the queue is resent.
func (p *PacketPump) Timeout(now time.Time) *types.LivePacket {
	if len(p.state.Live) == 0 {
		return nil
	}
	p.state.Ssthresh = p.state.Cwnd / 2
	if p.state.Ssthresh < 1 {
		p.state.Ssthresh = 1
	}
	p.state.Cwnd = 1
	p.state.RTO = types.ClampRTO(p.state.RTO * 2)

	head := &p.state.Live[0]
	head.Tries++
	head.LastSent = now
	head.NextExpiry = now.Add(p.state.RTO)
	out := *head
	return &out
}

// NextWake computes when the timer should next fire: last-sent(head)+rto.
// The transport's rearmTimer arms the timer at this deadline after
// cancelling the previous one; it does not diff against the currently
// scheduled timer, so it re-arms even when the deadline is unchanged.
func (p *PacketPump) NextWake() (time.Time, bool) {
	if len(p.state.Live) == 0 {
		return time.Time{}, false
	}
	return p.state.Live[0].LastSent.Add(p.state.RTO), true
}
