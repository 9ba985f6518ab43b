package core

import (
	"testing"
	"time"

	"github.com/arvo-os/ames/pkg/ames/types"
)

func pending(num types.MessageNum, n int) []types.PendingFragment {
	out := make([]types.PendingFragment, n)
	for i := range out {
		out[i] = types.PendingFragment{MessageNum: num, NumFragments: uint32(n), FragmentNum: uint32(i)}
	}
	return out
}

func TestFeedRespectsCwnd(t *testing.T) {
	state := types.NewCongestionState()
	pp := NewPacketPump(state)
	now := time.Now()

	fed, tail := pp.Feed(pending(0, 5), now)
	if len(fed) != 1 {
		t.Fatalf("expected 1 fragment fed at initial cwnd=1, got %d", len(fed))
	}
	if len(tail) != 4 {
		t.Fatalf("expected 4 left in tail, got %d", len(tail))
	}
	if state.NumLive != 1 {
		t.Fatalf("expected num-live=1, got %d", state.NumLive)
	}
}

func TestAckGrowsCwndInSlowStart(t *testing.T) {
	state := types.NewCongestionState()
	pp := NewPacketPump(state)
	now := time.Now()

	pp.Feed(pending(0, 3), now)
	before := state.Cwnd
	pp.Ack(0, 0, now.Add(10*time.Millisecond))
	if state.Cwnd <= before {
		t.Fatalf("expected cwnd to grow in slow start, before=%d after=%d", before, state.Cwnd)
	}
}

func TestTimeoutHalvesAndResets(t *testing.T) {
	state := types.NewCongestionState()
	state.Cwnd = 8
	pp := NewPacketPump(state)
	now := time.Now()
	pp.Feed(pending(0, 1), now)

	lp := pp.Timeout(now.Add(time.Second))
	if lp == nil {
		t.Fatal("expected a packet to resend on timeout")
	}
	if state.Cwnd != 1 {
		t.Fatalf("expected cwnd reset to 1, got %d", state.Cwnd)
	}
	if state.Ssthresh != 4 {
		t.Fatalf("expected ssthresh halved to 4, got %d", state.Ssthresh)
	}
	if lp.Tries != 2 {
		t.Fatalf("expected tries incremented to 2, got %d", lp.Tries)
	}
}

func TestRTOClampedToBounds(t *testing.T) {
	if got := types.ClampRTO(1 * time.Millisecond); got != types.MinRTO {
		t.Fatalf("expected clamp to MinRTO, got %v", got)
	}
	if got := types.ClampRTO(time.Hour); got != types.MaxRTO {
		t.Fatalf("expected clamp to MaxRTO, got %v", got)
	}
}

func TestSkipThresholdTriggersResend(t *testing.T) {
	state := types.NewCongestionState()
	state.Cwnd = 4
	pp := NewPacketPump(state)
	now := time.Now()
	pp.Feed(pending(0, 4), now)

	// Ack fragment 3 repeatedly (simulating the ack for a packet ahead of
	// fragment 0 in sequence arriving again) to cross the skip-count
	// threshold for fragment 0.
	result := pp.Ack(0, 3, now)
	if result.Acked == nil {
		t.Fatal("expected fragment 3 to be acked")
	}
	var resent []types.LivePacket
	for i := 0; i < 3; i++ {
		resent = append(resent, pp.Ack(0, 3, now).Resend...)
	}
	found := false
	for _, lp := range state.Live {
		if lp.FragmentNum == 0 && lp.Skips >= 3 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected fragment 0 to accumulate skips, live=%+v", state.Live)
	}
	resentFrag0 := false
	for _, lp := range resent {
		if lp.FragmentNum == 0 {
			resentFrag0 = true
		}
	}
	if !resentFrag0 {
		t.Fatalf("expected fragment 0 to be resent once it crossed the skip threshold, resent=%+v", resent)
	}
}
