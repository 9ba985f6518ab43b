package core

import (
	"crypto/ed25519"
	"time"

	"github.com/arvo-os/ames/pkg/ames/types"
)

// DeriveSymmetricKey computes the shared secret between our private key
// and her public key at her current life. It is purely a function of
// those two inputs and is recomputed on any key change rather than stored
// redundantly. A real X25519 Diffie-Hellman exchange belongs here; this
// folds the two key material inputs through the same deterministic hash
// used elsewhere in the transport so the core logic above it (rekey,
// breach, channel construction) is exercised independent of which
// concrete DH primitive the host's crypto suite uses.
func DeriveSymmetricKey(ourPriv ed25519.PrivateKey, herPub types.PublicKey) types.SymmetricKey {
	var key types.SymmetricKey
	combined := make([]byte, 0, len(ourPriv)+len(herPub))
	combined = append(combined, ourPriv...)
	combined = append(combined, herPub...)
	h := fnvLike(combined)
	copy(key[:], h[:])
	return key
}

// fnvLike is a small deterministic stretch used only to turn the combined
// key material into 32 bytes; it is not itself a cryptographic primitive
// and exists purely so DeriveSymmetricKey has a concrete, replayable
// result without depending on a specific DH curve implementation.
func fnvLike(data []byte) [32]byte {
	var out [32]byte
	var h uint64 = 14695981039346656037
	for i, b := range data {
		h ^= uint64(b)
		h *= 1099511628211
		out[i%32] ^= byte(h >> (8 * (uint(i) % 8)))
	}
	return out
}

// PromoteAlien turns a known ship's public key material into a fresh Known
// peer entry, implementing the Alien -> Known transition. The caller is
// responsible for draining the alien's queued agenda onto the result.
func PromoteAlien(ship types.Ship, herLife types.Life, herPub types.PublicKey, ourPriv ed25519.PrivateKey) *types.PeerState {
	p := types.NewPeerState(ship)
	p.HerLife = herLife
	p.HerPublicKey = herPub
	p.SymmetricKey = DeriveSymmetricKey(ourPriv, herPub)
	return p
}

// Rekey applies a PKI-reported key change to an already-known peer,
// preserving all flow state.
func Rekey(p *types.PeerState, newLife types.Life, newPub types.PublicKey, ourPriv ed25519.PrivateKey) {
	p.HerLife = newLife
	p.HerPublicKey = newPub
	p.SymmetricKey = DeriveSymmetricKey(ourPriv, newPub)
}

// ApplyContinuityBreach discards all flow state for a peer: snd, rcv, nax,
// and ossuary are reset, QoS returns to unborn, and PKI-derived fields
// (crypto, route) are retained/refreshed by the caller. The caller is
// responsible for separately cancelling every outstanding timer that
// referenced this ship before calling this.
func ApplyContinuityBreach(p *types.PeerState, newRift types.Rift) {
	p.ResetFlowState()
	p.HerRift = newRift
}

// ApplySponsorChange replaces a peer's sponsor without touching flow state.
// A sponsor that violates spec.md §4.1's "only a star may sponsor a comet"
// rule is rejected outright: the caller gets the error and leaves the
// previous sponsor (if any) in place rather than installing a bogus chain.
func ApplySponsorChange(p *types.PeerState, sponsor *types.Ship) error {
	if sponsor != nil && p.Ship.Class() == types.Comet && sponsor.Class() != types.Star {
		return types.ErrInvalidCometSponsor
	}
	p.Sponsor = sponsor
	return nil
}

// ArmedTimers lists every flow timer currently outstanding for a peer — the
// set that must be cancelled before a continuity breach clears state.
func ArmedTimers(ship types.Ship, p *types.PeerState) []TimerWire {
	var out []TimerWire
	for bone, pump := range p.Snd {
		if _, armed := NewPacketPump(pump.Congestion).NextWake(); armed {
			out = append(out, TimerWire{Namespace: "pump", Ship: ship, Bone: bone})
		}
	}
	return out
}

// UpdateQoSOnContact applies "dead -> live on any successful receive" and
// "unborn -> live on first successful exchange". It returns
// the previous QoS so the caller can decide whether a transition
// notification is warranted.
func UpdateQoSOnContact(p *types.PeerState, now time.Time) types.QoS {
	prev := p.QoS
	p.QoS = types.Live
	p.LastContact = now
	return prev
}

// QoSDeadlineFired applies "live -> dead 30s after last contact". It is a no-op (and reports false) if the peer has had contact
// since the timer was armed, since wakes can legitimately race a fresh
// receive.
func QoSDeadlineFired(p *types.PeerState, now time.Time) (transitioned bool) {
	if p.QoS != types.Live {
		return false
	}
	if now.Sub(p.LastContact) < types.DeadAfter {
		return false
	}
	p.QoS = types.Dead
	return true
}

// ClogThreshold is how many in-flight-plus-unsent packets across a peer's
// backward flows trigger a clog notification.
const ClogThreshold = 5

// DetectClog inspects every backward-flow pump for a peer and reports
// whether the combined in-flight-plus-unsent count has crossed
// ClogThreshold. Called on a QoS transition to dead or unborn.
func DetectClog(p *types.PeerState) bool {
	total := 0
	for bone, pump := range p.Snd {
		if bone.IsForward() {
			continue
		}
		total += pump.Congestion.NumLive + len(pump.UnsentFragments) + len(pump.UnsentMessages)
	}
	return total >= ClogThreshold
}

// ResolveRoute walks the sponsor chain starting at to, per spec.md §4.5:
//
//   - a galaxy always has a synthetic direct route by address, so the walk
//     terminates there even if never registered as a known peer;
//   - ourselves as a candidate ends the walk (self-loop); forwarding
//     requests do so too, specifically to avoid recursing into sponsors
//     and re-forwarding the packet back the way it came;
//   - a direct route is transmitted to and ends the walk;
//   - an indirect route is transmitted to (the lane may be stale, so the
//     walk continues to the sponsor as a backstop);
//   - an unknown candidate with no route at all ends the walk with nothing
//     transmitted on that branch.
//
// It returns every lane a packet addressed to `to` should be sent on, in
// walk order. An empty result means no route exists.
func ResolveRoute(peers map[types.Ship]*types.PeerState, ourShip, to types.Ship, isForwarding bool) []types.Lane {
	var lanes []types.Lane
	candidate := to
	visited := make(map[types.Ship]struct{})

	for {
		if _, looped := visited[candidate]; looped {
			break
		}
		visited[candidate] = struct{}{}

		if candidate.IsGalaxy() {
			lanes = append(lanes, types.GalaxyLane(candidate))
			break
		}

		if candidate == ourShip {
			break
		}

		p, known := peers[candidate]
		if !known {
			break
		}

		if p.Route.Valid {
			lanes = append(lanes, p.Route.Lane)
			if p.Route.Direct {
				break
			}
		}

		if isForwarding {
			break
		}
		if p.Sponsor == nil {
			break
		}
		candidate = *p.Sponsor
	}
	return lanes
}
