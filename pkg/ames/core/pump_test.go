package core

import (
	"bytes"
	"testing"
	"time"

	"github.com/arvo-os/ames/pkg/ames/types"
)

func TestMemoFeedAllProducesFragments(t *testing.T) {
	state := types.NewPumpState()
	state.Congestion.Cwnd = 10
	mp := NewMessagePump(state)

	blob := bytes.Repeat([]byte("x"), types.FragmentSize*2+10)
	mp.Memo(blob)

	out := mp.FeedAll(time.Now())
	if len(out) != 3 {
		t.Fatalf("expected 3 fragments for a %d-byte blob, got %d", len(blob), len(out))
	}
	if out[0].MessageNum != 0 || out[0].FragmentNum != 0 {
		t.Fatalf("unexpected first fragment: %+v", out[0])
	}
	if out[2].FragmentNum != 2 || out[2].NumFragments != 3 {
		t.Fatalf("unexpected last fragment: %+v", out[2])
	}
}

func TestHearMessageAckDrainsInOrder(t *testing.T) {
	state := types.NewPumpState()
	state.Congestion.Cwnd = 10
	mp := NewMessagePump(state)
	now := time.Now()

	mp.Memo([]byte("one"))
	mp.Memo([]byte("two"))
	mp.FeedAll(now)
	mp.FeedAll(now) // no-op: with cwnd wide open the first call already pulled both messages in

	// Ack message 1 first: nothing should drain yet since message 0 is
	// still outstanding (invariant: dones emitted in strict message-num
	// order).
	dones := mp.HearMessageAck(1, true, now)
	if len(dones) != 0 {
		t.Fatalf("expected no dones before message 0 acked, got %+v", dones)
	}

	dones = mp.HearMessageAck(0, true, now)
	if len(dones) != 2 {
		t.Fatalf("expected both messages to drain once 0 arrives, got %d", len(dones))
	}
	if dones[0].MessageNum != 0 || dones[1].MessageNum != 1 {
		t.Fatalf("dones out of order: %+v", dones)
	}
	if dones[0].Err != nil || dones[1].Err != nil {
		t.Fatalf("expected no errors, got %+v", dones)
	}
}

func TestNaxplanationSupersedesBareNack(t *testing.T) {
	state := types.NewPumpState()
	state.Congestion.Cwnd = 10
	mp := NewMessagePump(state)
	now := time.Now()

	mp.Memo([]byte("solo"))
	mp.FeedAll(now)

	mp.HearMessageAck(0, false, now) // bare nack, queued but not yet naxplained
	dones := mp.HearNaxplanation(0, types.ErrNacked)
	if len(dones) != 1 {
		t.Fatalf("expected the message to drain once the naxplanation lands, got %+v", dones)
	}
	if dones[0].Err == nil {
		t.Fatal("expected an error on a naxplained message")
	}
}

func TestWakeIsNoopBeforeDeadline(t *testing.T) {
	state := types.NewPumpState()
	mp := NewMessagePump(state)
	now := time.Now()

	mp.Memo([]byte("x"))
	mp.FeedAll(now)

	if out := mp.Wake(now); out != nil {
		t.Fatalf("expected no resend before rto elapses, got %+v", out)
	}
}

func TestWakeResendsAfterDeadline(t *testing.T) {
	state := types.NewPumpState()
	mp := NewMessagePump(state)
	now := time.Now()

	mp.Memo([]byte("x"))
	mp.FeedAll(now)

	later := now.Add(state.Congestion.RTO + time.Millisecond)
	out := mp.Wake(later)
	if len(out) != 1 {
		t.Fatalf("expected exactly one resent fragment, got %d", len(out))
	}
}

func TestIdleReflectsOutstandingWork(t *testing.T) {
	state := types.NewPumpState()
	mp := NewMessagePump(state)
	if !mp.Idle() {
		t.Fatal("expected a fresh pump to be idle")
	}
	mp.Memo([]byte("x"))
	if mp.Idle() {
		t.Fatal("expected a pump with an unsent message to be busy")
	}
}
