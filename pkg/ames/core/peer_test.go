package core

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/arvo-os/ames/pkg/ames/types"
)

func mkKey(t *testing.T) (ed25519.PrivateKey, types.PublicKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	return priv, types.PublicKey(pub)
}

func mkTestShip(b byte) types.Ship {
	var s types.Ship
	s[15] = b
	return s
}

// mkClassShip builds a ship address of exactly the requested class by
// setting the highest byte that class's width allows.
func mkClassShip(class types.Class, b byte) types.Ship {
	var s types.Ship
	switch class {
	case types.Galaxy:
		s[15] = b
	case types.Star:
		s[14] = b
	case types.Planet:
		s[12] = b
	case types.Moon:
		s[8] = b
	case types.Comet:
		s[0] = b
	}
	return s
}

func TestPromoteAlienDerivesKeyAndClearsFlowState(t *testing.T) {
	priv, herPub := mkKey(t)
	ship := mkTestShip(1)

	p := PromoteAlien(ship, types.Life(3), herPub, priv)
	if p.Ship != ship {
		t.Fatalf("expected ship %v, got %v", ship, p.Ship)
	}
	if p.HerLife != 3 {
		t.Fatalf("expected life 3, got %v", p.HerLife)
	}
	if p.SymmetricKey == (types.SymmetricKey{}) {
		t.Fatal("expected a derived symmetric key, got the zero value")
	}
	if p.QoS != types.Unborn {
		t.Fatalf("expected a freshly promoted peer to start Unborn, got %v", p.QoS)
	}
}

func TestRekeyPreservesFlowStateButChangesKey(t *testing.T) {
	priv, herPub := mkKey(t)
	ship := mkTestShip(2)
	p := PromoteAlien(ship, types.Life(1), herPub, priv)

	bone := types.Bone(4)
	p.PumpFor(bone).UnsentMessages = append(p.PumpFor(bone).UnsentMessages, []byte("queued"))
	before := p.SymmetricKey

	_, newPub := mkKey(t)
	Rekey(p, types.Life(2), newPub, priv)

	if p.HerLife != 2 {
		t.Fatalf("expected life bumped to 2, got %v", p.HerLife)
	}
	if p.SymmetricKey == before {
		t.Fatal("expected the symmetric key to change on rekey")
	}
	if len(p.Snd[bone].UnsentMessages) != 1 {
		t.Fatal("expected flow state to survive a rekey")
	}
}

func TestApplyContinuityBreachClearsFlowStateNotIdentity(t *testing.T) {
	priv, herPub := mkKey(t)
	ship := mkTestShip(3)
	p := PromoteAlien(ship, types.Life(1), herPub, priv)
	p.QoS = types.Live
	p.PumpFor(types.Bone(4)).UnsentMessages = append(p.PumpFor(types.Bone(4)).UnsentMessages, []byte("x"))

	ApplyContinuityBreach(p, types.Rift(9))

	if p.HerRift != 9 {
		t.Fatalf("expected rift bumped to 9, got %v", p.HerRift)
	}
	if p.QoS != types.Unborn {
		t.Fatalf("expected QoS reset to Unborn on breach, got %v", p.QoS)
	}
	if len(p.Snd) != 0 {
		t.Fatal("expected flow state cleared on continuity breach")
	}
	if p.HerPublicKey == nil {
		t.Fatal("expected identity fields to survive a continuity breach")
	}
}

func TestApplySponsorChangeLeavesFlowStateAlone(t *testing.T) {
	priv, herPub := mkKey(t)
	p := PromoteAlien(mkTestShip(4), types.Life(1), herPub, priv)
	p.PumpFor(types.Bone(4))

	sponsor := mkTestShip(9)
	if err := ApplySponsorChange(p, &sponsor); err != nil {
		t.Fatalf("ApplySponsorChange: %v", err)
	}

	if p.Sponsor == nil || !p.Sponsor.Equal(sponsor) {
		t.Fatalf("expected sponsor set to %v, got %v", sponsor, p.Sponsor)
	}
	if len(p.Snd) != 1 {
		t.Fatal("expected flow state untouched by a sponsor change")
	}
}

func TestApplySponsorChangeRejectsNonStarSponsorForComet(t *testing.T) {
	priv, herPub := mkKey(t)
	comet := mkClassShip(types.Comet, 1)
	p := PromoteAlien(comet, types.Life(1), herPub, priv)

	star := mkClassShip(types.Star, 2)
	if err := ApplySponsorChange(p, &star); err != nil {
		t.Fatalf("star sponsor for comet should be accepted: %v", err)
	}
	if p.Sponsor == nil || !p.Sponsor.Equal(star) {
		t.Fatalf("expected sponsor %v, got %v", star, p.Sponsor)
	}

	planet := mkClassShip(types.Planet, 3)
	if err := ApplySponsorChange(p, &planet); err == nil {
		t.Fatal("expected a planet sponsor for a comet to be rejected")
	}
	if p.Sponsor == nil || !p.Sponsor.Equal(star) {
		t.Fatalf("expected the prior star sponsor to survive a rejected change, got %v", p.Sponsor)
	}
}

func TestArmedTimersReportsOnlyPumpsWithOutstandingWork(t *testing.T) {
	priv, herPub := mkKey(t)
	ship := mkTestShip(5)
	p := PromoteAlien(ship, types.Life(1), herPub, priv)

	idle := p.PumpFor(types.Bone(4))
	idle.Congestion.Cwnd = 10

	busy := p.PumpFor(types.Bone(8))
	busy.Congestion.Cwnd = 10
	NewPacketPump(busy.Congestion).Feed([]types.PendingFragment{{MessageNum: 0, NumFragments: 1, FragmentNum: 0}}, time.Now())

	timers := ArmedTimers(ship, p)
	if len(timers) != 1 {
		t.Fatalf("expected exactly one armed timer, got %d: %+v", len(timers), timers)
	}
	if timers[0].Bone != types.Bone(8) {
		t.Fatalf("expected the armed timer on bone 8, got %+v", timers[0])
	}
}

func TestUpdateQoSOnContactTransitionsToLive(t *testing.T) {
	p := types.NewPeerState(mkTestShip(6))
	now := time.Now()

	prev := UpdateQoSOnContact(p, now)
	if prev != types.Unborn {
		t.Fatalf("expected previous QoS Unborn, got %v", prev)
	}
	if p.QoS != types.Live {
		t.Fatalf("expected QoS to become Live, got %v", p.QoS)
	}
	if !p.LastContact.Equal(now) {
		t.Fatal("expected LastContact stamped with the contact time")
	}
}

func TestQoSDeadlineFiredOnlyAfterSilenceWindow(t *testing.T) {
	p := types.NewPeerState(mkTestShip(7))
	now := time.Now()
	UpdateQoSOnContact(p, now)

	if QoSDeadlineFired(p, now.Add(time.Second)) {
		t.Fatal("expected no transition before the dead-after window elapses")
	}
	if !QoSDeadlineFired(p, now.Add(types.DeadAfter+time.Second)) {
		t.Fatal("expected a transition to Dead once the window elapses")
	}
	if p.QoS != types.Dead {
		t.Fatalf("expected QoS Dead, got %v", p.QoS)
	}
}

func TestQoSDeadlineFiredNoopIfAlreadyDead(t *testing.T) {
	p := types.NewPeerState(mkTestShip(8))
	p.QoS = types.Dead
	if QoSDeadlineFired(p, time.Now()) {
		t.Fatal("expected no-op transition when QoS is already Dead")
	}
}

func TestDetectClogCountsOnlyBackwardFlows(t *testing.T) {
	priv, herPub := mkKey(t)
	ship := mkTestShip(9)
	p := PromoteAlien(ship, types.Life(1), herPub, priv)

	forward := types.Bone(4)
	backward := forward | 1

	p.PumpFor(forward).UnsentMessages = make([][]byte, ClogThreshold+1)
	if DetectClog(p) {
		t.Fatal("expected forward-flow backlog to not count toward clog")
	}

	p.PumpFor(backward).UnsentMessages = make([][]byte, ClogThreshold)
	if !DetectClog(p) {
		t.Fatal("expected backward-flow backlog at the threshold to trip clog detection")
	}
}
