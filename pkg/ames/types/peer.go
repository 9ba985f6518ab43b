package types

import "time"

// SymmetricKey is the ECDH-derived shared secret used to open/shut packets
// exchanged with a peer. It is purely a function of (our private key, her
// public key at her life) and is recomputed, never persisted redundantly,
// on any key change.
type SymmetricKey [32]byte

// PublicKey is the peer's raw public key material at HerLife.
type PublicKey []byte

// NaxEntry identifies a message known-nacked and awaiting the peer's drop
// acknowledgement.
type NaxEntry struct {
	Bone       Bone
	MessageNum MessageNum
}

// HeedSubscriber is an opaque local subscriber interested in a peer's
// liveness events (QoS transitions, clog).
type HeedSubscriber string

// PeerState is everything Ames knows about one known peer.
type PeerState struct {
	Ship Ship

	// Crypto.
	SymmetricKey SymmetricKey
	HerLife      Life
	HerRift      Rift
	HerPublicKey PublicKey
	Sponsor      *Ship

	// Route.
	Route Route

	// QoS.
	QoS         QoS
	LastContact time.Time

	Ossuary *Ossuary

	Snd map[Bone]*PumpState
	Rcv map[Bone]*SinkState

	Nax map[NaxEntry]struct{}

	Heeds map[HeedSubscriber]struct{}
}

// NewPeerState returns a freshly-known peer entry with only identity
// preserved — the shape every peer takes immediately after promotion from
// Alien. ResetFlowState returns a peer's flow state to this shape on a
// continuity breach; a rekey leaves flow state as it is.
func NewPeerState(ship Ship) *PeerState {
	return &PeerState{
		Ship:    ship,
		Ossuary: NewOssuary(),
		QoS:     Unborn,
		Snd:     make(map[Bone]*PumpState),
		Rcv:     make(map[Bone]*SinkState),
		Nax:     make(map[NaxEntry]struct{}),
		Heeds:   make(map[HeedSubscriber]struct{}),
	}
}

// ResetFlowState discards all per-flow state on continuity breach (ossuary,
// snd, rcv, nax) and resets QoS to unborn, keeping the identity, crypto,
// route, sponsor, heeds and last-contact fields.
func (p *PeerState) ResetFlowState() {
	p.Ossuary = NewOssuary()
	p.Snd = make(map[Bone]*PumpState)
	p.Rcv = make(map[Bone]*SinkState)
	p.Nax = make(map[NaxEntry]struct{})
	p.QoS = Unborn
}

// PumpFor returns (creating if absent) the outbound pump state for bone b.
func (p *PeerState) PumpFor(b Bone) *PumpState {
	if s, ok := p.Snd[b]; ok {
		return s
	}
	s := NewPumpState()
	p.Snd[b] = s
	return s
}

// SinkFor returns (creating if absent) the inbound sink state for bone b.
func (p *PeerState) SinkFor(b Bone) *SinkState {
	if s, ok := p.Rcv[b]; ok {
		return s
	}
	s := NewSinkState()
	p.Rcv[b] = s
	return s
}

// AlienAgenda is what a peer with no keys yet has queued up, to be drained
// in FIFO order once the peer is promoted to Known.
type AlienAgenda struct {
	Messages []QueuedMessage
	Packets  [][]byte
	Heeds    []HeedSubscriber
	Scries   []QueuedScry
}

// QueuedMessage is an outbound message blob waiting on a ship's keys.
type QueuedMessage struct {
	Duct Duct
	Blob []byte
}

// QueuedScry is a remote-scry request waiting on a ship's keys. Ames treats
// its payload opaquely; the remote-scry subsystem interprets it.
type QueuedScry struct {
	Duct    Duct
	Request []byte
}

// AlienState is a peer with no keys yet.
type AlienState struct {
	Ship   Ship
	Agenda AlienAgenda
}

// NewAlienState returns an empty agenda for a first-referenced ship.
func NewAlienState(ship Ship) *AlienState {
	return &AlienState{Ship: ship}
}
