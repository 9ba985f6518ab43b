package core

import (
	"crypto/ed25519"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arvo-os/ames/pkg/ames/definition"
	"github.com/arvo-os/ames/pkg/ames/types"
	"github.com/arvo-os/ames/pkg/ames/wire"
)

// Plea is a request message offered to Ames by a local subsystem, tagged
// with the target subsystem.
type Plea struct {
	Subsystem string
	Payload   []byte
}

// Verbosity mirrors the host's debug toggle flags.
type Verbosity struct {
	Snd, Rcv, Odd, Msg, Ges, For, Rot bool
}

// TaskKind discriminates an inbound task. This is a closed
// sum matched exhaustively in Dispatch.
type TaskKind int

const (
	TaskBorn TaskKind = iota
	TaskHear
	TaskHeed
	TaskJilt
	TaskPlea
	TaskProd
	TaskSift
	TaskSpew
	TaskStir
	TaskTrim
	TaskVega
	TaskPKIResult
	TaskWake
	TaskConsumerDone
	TaskConsumerDrop
)

// Task is one inbound event.
type Task struct {
	Kind TaskKind

	Lane         types.Lane
	Blob         []byte
	PriorFailure error

	Ship  types.Ship
	Ships []types.Ship

	Duct types.Duct
	Plea Plea

	Verbosity Verbosity

	Timer TimerWire

	PKI PKIResult

	Bone       types.Bone
	MessageNum types.MessageNum
	ConsumerOK bool
}

// Transport is the top-level event handler: it resolves the peer, builds
// the transient channel, delegates to the per-flow pump/sink logic, and
// collects the effects the host must execute.
//
// It is single-threaded and synchronous: Dispatch never blocks and never
// spawns work of its own.
type Transport struct {
	OurShip types.Ship
	OurLife types.Life
	OurRift types.Rift
	OurPriv ed25519.PrivateKey

	Peers  map[types.Ship]*types.PeerState
	Aliens map[types.Ship]*types.AlienState

	PKI     PKIOracle
	Log     definition.Logger
	Metrics *definition.Metrics

	Verbosity Verbosity
	Sift      map[types.Ship]struct{}

	born bool
}

func NewTransport(ourShip types.Ship, ourLife types.Life, ourPriv ed25519.PrivateKey, pki PKIOracle, log definition.Logger, metrics *definition.Metrics) *Transport {
	return &Transport{
		OurShip: ourShip,
		OurLife: ourLife,
		OurPriv: ourPriv,
		Peers:   make(map[types.Ship]*types.PeerState),
		Aliens:  make(map[types.Ship]*types.AlienState),
		PKI:     pki,
		Log:     log,
		Metrics: metrics,
		Sift:    make(map[types.Ship]struct{}),
	}
}

// Dispatch processes exactly one event to completion and returns every
// outbound effect it produced, in the order produced.
func (t *Transport) Dispatch(task Task, now time.Time) []Effect {
	switch task.Kind {
	case TaskBorn:
		t.born = true
		return nil
	case TaskHear:
		return t.handleHear(task, now)
	case TaskHeed:
		t.peerFor(task.Ship).Heeds[types.HeedSubscriber(task.Duct)] = struct{}{}
		return nil
	case TaskJilt:
		if p, ok := t.Peers[task.Ship]; ok {
			delete(p.Heeds, types.HeedSubscriber(task.Duct))
		}
		return nil
	case TaskPlea:
		return t.handlePlea(task, now)
	case TaskProd:
		return t.handleProd(task)
	case TaskSift:
		t.Sift = make(map[types.Ship]struct{}, len(task.Ships))
		for _, s := range task.Ships {
			t.Sift[s] = struct{}{}
		}
		return nil
	case TaskSpew:
		t.Verbosity = task.Verbosity
		return nil
	case TaskStir:
		return t.handleStir(now)
	case TaskTrim, TaskVega:
		return nil
	case TaskPKIResult:
		return t.handlePKIResult(task, now)
	case TaskWake:
		return t.handleWake(task, now)
	case TaskConsumerDone:
		return t.handleConsumerDone(task, now)
	case TaskConsumerDrop:
		if p, ok := t.Peers[task.Ship]; ok {
			NewMessageSink(p.SinkFor(task.Bone)).ConsumerDrop(task.MessageNum)
		}
		return nil
	default:
		return []Effect{LogEffect("ames: unknown task kind, dropping")}
	}
}

func (t *Transport) peerFor(ship types.Ship) *types.PeerState {
	if p, ok := t.Peers[ship]; ok {
		return p
	}
	p := types.NewPeerState(ship)
	t.Peers[ship] = p
	return p
}

func (t *Transport) channelFor(p *types.PeerState) types.Channel {
	return types.Channel{
		OurShip:      t.OurShip,
		OurLife:      t.OurLife,
		HerShip:      p.Ship,
		HerLife:      p.HerLife,
		HerRift:      p.HerRift,
		SymmetricKey: p.SymmetricKey,
	}
}

// handlePlea implements Unknown -> Alien transition (queue
// and kick off a PKI lookup) and, once a peer is known, mints a bone for
// the duct and feeds the message through its pump.
func (t *Transport) handlePlea(task Task, now time.Time) []Effect {
	if p, ok := t.Peers[task.Ship]; ok {
		return t.sendPlea(p, task.Duct, task.Plea, now)
	}

	alien, ok := t.Aliens[task.Ship]
	firstReference := !ok
	if !ok {
		alien = types.NewAlienState(task.Ship)
		t.Aliens[task.Ship] = alien
	}
	blob, _ := wire.Jam(task.Plea)
	alien.Agenda.Messages = append(alien.Agenda.Messages, types.QueuedMessage{Duct: task.Duct, Blob: blob})

	var effects []Effect
	if firstReference {
		if task.Ship.Class() == types.Comet {
			effects = append(effects, t.sendKeysRequest(task.Ship))
		} else {
			t.PKI.Lookup(task.Ship)
		}
	}
	return effects
}

// sendKeysRequest only logs that the comet's keys are needed; no
// keys-request packet is built or sent, so the comet stays an alien until
// it sends its own open-packet attestation.
func (t *Transport) sendKeysRequest(ship types.Ship) Effect {
	return LogEffect("ames: comet " + ship.String() + " has no keys; no keys-request packet is sent")
}

func (t *Transport) sendPlea(p *types.PeerState, duct types.Duct, plea Plea, now time.Time) []Effect {
	bone := p.Ossuary.Mint(duct)
	blob, _ := wire.Jam(plea)
	pump := NewMessagePump(p.PumpFor(bone))
	pump.Memo(blob)
	return t.feedAndEncode(p, bone, pump, now)
}

// feedAndEncode drives a pump's FeedAll and turns each resulting fragment
// into an encrypted shut packet send effect, followed by the timer effects
// of rearmTimer.
func (t *Transport) feedAndEncode(p *types.PeerState, bone types.Bone, pump *MessagePump, now time.Time) []Effect {
	var effects []Effect
	for _, frag := range pump.FeedAll(now) {
		effects = append(effects, t.encodeFragmentSend(p, bone, frag)...)
	}
	effects = append(effects, t.rearmTimer(p, bone, pump, now)...)
	t.recordCongestion(p.Ship, bone, pump)
	return effects
}

// recordCongestion publishes a pump's current congestion window to the
// metrics registry, when one is configured. The host is free to run
// without metrics wired in at all.
func (t *Transport) recordCongestion(ship types.Ship, bone types.Bone, pump *MessagePump) {
	if t.Metrics == nil {
		return
	}
	labels := prometheus.Labels{"ship": ship.String(), "bone": boneLabel(bone)}
	t.Metrics.Cwnd.With(labels).Set(float64(pump.state.Congestion.Cwnd))
	t.Metrics.Ssthresh.With(labels).Set(float64(pump.state.Congestion.Ssthresh))
	t.Metrics.RTOMillis.With(labels).Set(float64(pump.state.Congestion.RTO.Milliseconds()))
	t.Metrics.NumLive.With(labels).Set(float64(pump.state.Congestion.NumLive))
}

func boneLabel(b types.Bone) string {
	return strconv.FormatUint(uint64(b), 10)
}

func (t *Transport) encodeFragmentSend(p *types.PeerState, bone types.Bone, frag OutboundFragment) []Effect {
	ch := t.channelFor(p)
	body := wire.ShutPacketBody{
		Bone:       bone,
		MessageNum: frag.MessageNum,
		Meat: wire.Meat{
			Kind:         wire.MeatFragment,
			NumFragments: frag.NumFragments,
			FragmentNum:  frag.FragmentNum,
			FragmentData: frag.Data,
		},
	}
	ct, err := wire.EncryptShutPacket(ch.SymmetricKey, t.OurShip, p.Ship, t.OurLife, p.HerLife, body)
	if err != nil {
		return []Effect{LogEffect("ames: failed encrypting fragment: " + err.Error())}
	}
	h := wire.Header{
		Sender:       t.OurShip,
		Receiver:     p.Ship,
		Request:      true,
		Sample:       true,
		SenderTick:   t.OurLife.Tick(),
		ReceiverTick: p.HerLife.Tick(),
	}
	packet, err := wire.EncodeShutPacket(h, ct)
	if err != nil {
		return []Effect{LogEffect("ames: failed encoding fragment: " + err.Error())}
	}
	return t.sendVia(p.Ship, false, packet)
}

// sendVia resolves every lane a packet addressed to `to` should go out on
// (walking the sponsor chain per spec.md §4.5) and turns each into a send
// effect. isForwarding suppresses sponsor recursion past the immediate
// candidate, per the loop-prevention rule.
func (t *Transport) sendVia(to types.Ship, isForwarding bool, packet []byte) []Effect {
	lanes := ResolveRoute(t.Peers, t.OurShip, to, isForwarding)
	if len(lanes) == 0 {
		return []Effect{LogEffect("ames: no route to " + to.String())}
	}
	effects := make([]Effect, 0, len(lanes))
	for _, lane := range lanes {
		effects = append(effects, SendEffect(lane, packet))
	}
	return effects
}

// rearmTimer cancels the pump's timer and, while packets are live, arms it
// again at the pump's current deadline. It does not compare against the
// previously armed deadline: every call emits a rest, followed by a wait
// unless the pump is idle, even when the deadline has not moved.
func (t *Transport) rearmTimer(p *types.PeerState, bone types.Bone, pump *MessagePump, now time.Time) []Effect {
	tw := TimerWire{Namespace: "pump", Ship: p.Ship, Bone: bone}
	if pump.Idle() {
		return []Effect{RestEffect(tw)}
	}
	next, armed := pump.NextWake()
	if !armed {
		return nil
	}
	return []Effect{RestEffect(tw), WaitEffect(tw, next)}
}

// handleHear decodes an inbound packet and routes it to the appropriate
// sink or pump, per the packet-kind and bone-ownership rules.
func (t *Transport) handleHear(task Task, now time.Time) []Effect {
	h, content, err := wire.DecodeHeader(task.Blob)
	if err != nil {
		return []Effect{LogEffect("ames: " + err.Error())}
	}

	if h.Sender.Class() == types.Comet && h.Request && h.Sample && h.SenderTick == 1 {
		if open, oerr := wire.DecodeOpenPacket(content); oerr == nil {
			return t.handleCometAttestation(open, task.Lane, now)
		}
	}

	if h.Receiver != t.OurShip {
		return t.forward(h, task.Lane, task.Blob)
	}

	p, ok := t.Peers[h.Sender]
	if !ok {
		return []Effect{LogEffect("ames: hear from unknown peer " + h.Sender.String())}
	}

	if err := h.CheckTicks(p.HerLife, t.OurLife); err != nil {
		return []Effect{LogEffect("ames: " + err.Error())}
	}

	body, err := wire.DecryptShutPacket(p.SymmetricKey, h.Sender, t.OurShip, p.HerLife, t.OurLife, content)
	if err != nil {
		return []Effect{LogEffect("ames: " + err.Error())}
	}

	prevQoS := UpdateQoSOnContact(p, now)
	var effects []Effect
	if prevQoS != types.Live {
		effects = append(effects, t.qosTransitionEffects(p, prevQoS, types.Live)...)
	}

	switch body.Meat.Kind {
	case wire.MeatFragment:
		effects = append(effects, t.handleInboundFragment(p, h, body, now)...)
	case wire.MeatFragmentAck:
		effects = append(effects, t.handleInboundFragmentAck(p, body.Bone, body.MessageNum, body.Meat.AckedFragmentNum, now)...)
	case wire.MeatMessageAck:
		effects = append(effects, t.handleInboundMessageAck(p, body.Bone, body.MessageNum, body.Meat.OK, now)...)
	default:
		effects = append(effects, LogEffect("ames: unknown meat kind, dropping"))
	}
	return effects
}

func (t *Transport) handleInboundFragment(p *types.PeerState, h wire.Header, body *wire.ShutPacketBody, now time.Time) []Effect {
	sink := NewMessageSink(p.SinkFor(body.Bone))
	wasIdle := sink.IsConsumerIdle()
	ack, delivered, err := sink.Receive(InboundFragment{
		MessageNum:   body.MessageNum,
		NumFragments: body.Meat.NumFragments,
		FragmentNum:  body.Meat.FragmentNum,
		Data:         body.Meat.FragmentData,
	})
	if err != nil {
		return []Effect{LogEffect("ames: " + err.Error())}
	}

	var effects []Effect
	if ack != nil {
		effects = append(effects, t.encodeAckSend(p, h, body.Bone, *ack)...)
	}

	if delivered == nil {
		return effects
	}

	if nackBone, isNaxplanation := t.nackTraceTargetOf(p, body.Bone); isNaxplanation {
		effects = append(effects, t.applyNaxplanation(p, nackBone, delivered.Blob, now)...)
		return effects
	}

	if wasIdle {
		effects = append(effects, GiveEffect(Give{Kind: GiveBoon, Ship: p.Ship, Rift: p.HerRift, Bone: body.Bone, Blob: delivered.Blob}))
	}
	return effects
}

// nackTraceTargetOf reports whether bone is the nack-trace companion of a
// forward bone this peer owns a pump for, per the "B xor 0b10" pairing.
func (t *Transport) nackTraceTargetOf(p *types.PeerState, bone types.Bone) (types.Bone, bool) {
	forward := bone.NackTracePair()
	_, ok := p.Snd[forward]
	return forward, ok
}

func (t *Transport) applyNaxplanation(p *types.PeerState, forwardBone types.Bone, blob []byte, now time.Time) []Effect {
	var payload struct {
		MessageNum types.MessageNum `cbor:"num"`
		Error      string           `cbor:"err"`
	}
	if err := wire.Cue(blob, &payload); err != nil {
		return []Effect{LogEffect("ames: malformed naxplanation: " + err.Error())}
	}
	pump := NewMessagePump(p.PumpFor(forwardBone))
	dones := pump.HearNaxplanation(payload.MessageNum, &naxplanationError{payload.Error})
	return t.doneEffects(p, forwardBone, dones, pump, now)
}

type naxplanationError struct{ text string }

func (e *naxplanationError) Error() string { return e.text }

func (t *Transport) handleInboundFragmentAck(p *types.PeerState, bone types.Bone, messageNum types.MessageNum, fragmentNum uint32, now time.Time) []Effect {
	ps, ok := p.Snd[bone]
	if !ok {
		return nil
	}
	pump := NewMessagePump(ps)
	var effects []Effect
	resent := pump.HearFragmentAck(messageNum, fragmentNum, now)
	for _, frag := range resent {
		effects = append(effects, t.encodeFragmentSend(p, bone, frag)...)
	}
	if t.Metrics != nil && len(resent) > 0 {
		t.Metrics.Retransmit.With(prometheus.Labels{"ship": p.Ship.String(), "bone": boneLabel(bone)}).Add(float64(len(resent)))
	}
	effects = append(effects, t.feedAndEncode(p, bone, pump, now)...)
	return effects
}

func (t *Transport) handleInboundMessageAck(p *types.PeerState, bone types.Bone, messageNum types.MessageNum, ok bool, now time.Time) []Effect {
	ps, present := p.Snd[bone]
	if !present {
		return nil
	}
	pump := NewMessagePump(ps)
	dones := pump.HearMessageAck(messageNum, ok, now)
	effects := t.doneEffects(p, bone, dones, pump, now)
	effects = append(effects, t.feedAndEncode(p, bone, pump, now)...)
	return effects
}

func (t *Transport) doneEffects(p *types.PeerState, bone types.Bone, dones []types.Done, pump *MessagePump, now time.Time) []Effect {
	var effects []Effect
	for _, d := range dones {
		duct := p.Ossuary.BoneToDuct[bone]
		effects = append(effects, GiveEffect(Give{Kind: GiveDone, Duct: duct, Ship: p.Ship, Rift: p.HerRift, Bone: bone, Done: d}))
		if t.Metrics != nil {
			ok := "true"
			if d.Err != nil {
				ok = "false"
			}
			t.Metrics.Dones.With(prometheus.Labels{"ship": p.Ship.String(), "bone": boneLabel(bone), "ok": ok}).Inc()
		}
	}
	return effects
}

func (t *Transport) encodeAckSend(p *types.PeerState, h wire.Header, bone types.Bone, ack SinkAck) []Effect {
	body := wire.ShutPacketBody{
		Bone:       bone,
		MessageNum: ack.MessageNum,
		Meat: wire.Meat{
			Kind:             ack.Kind,
			AckedFragmentNum: ack.AckedFragmentNum,
			OK:               ack.OK,
		},
	}
	ct, err := wire.EncryptShutPacket(p.SymmetricKey, t.OurShip, p.Ship, t.OurLife, p.HerLife, body)
	if err != nil {
		return []Effect{LogEffect("ames: failed encrypting ack: " + err.Error())}
	}
	outHeader := wire.Header{
		Sender:       t.OurShip,
		Receiver:     p.Ship,
		Request:      false,
		Sample:       true,
		SenderTick:   t.OurLife.Tick(),
		ReceiverTick: p.HerLife.Tick(),
	}
	packet, err := wire.EncodeShutPacket(outHeader, ct)
	if err != nil {
		return []Effect{LogEffect("ames: failed encoding ack: " + err.Error())}
	}
	return t.sendVia(p.Ship, false, packet)
}

// handleWake fires a packet pump's retransmit timer.
func (t *Transport) handleWake(task Task, now time.Time) []Effect {
	p, ok := t.Peers[task.Timer.Ship]
	if !ok {
		return nil
	}
	ps, ok := p.Snd[task.Timer.Bone]
	if !ok {
		return nil
	}
	pump := NewMessagePump(ps)
	var effects []Effect
	resent := pump.Wake(now)
	for _, frag := range resent {
		effects = append(effects, t.encodeFragmentSend(p, task.Timer.Bone, frag)...)
	}
	if t.Metrics != nil && len(resent) > 0 {
		t.Metrics.Retransmit.With(prometheus.Labels{"ship": p.Ship.String(), "bone": boneLabel(task.Timer.Bone)}).Add(float64(len(resent)))
	}
	effects = append(effects, t.rearmTimer(p, task.Timer.Bone, pump, now)...)
	t.recordCongestion(p.Ship, task.Timer.Bone, pump)

	if QoSDeadlineFired(p, now) {
		effects = append(effects, t.qosTransitionEffects(p, types.Live, types.Dead)...)
	}
	return effects
}

func (t *Transport) qosTransitionEffects(p *types.PeerState, from, to types.QoS) []Effect {
	effects := []Effect{LogEffect("ames: " + p.Ship.String() + " qos " + from.String() + " -> " + to.String())}
	for heed := range p.Heeds {
		effects = append(effects, GiveEffect(Give{Kind: GiveTurf, Duct: types.Duct(heed), Ship: p.Ship, QoS: to}))
	}
	if to == types.Dead || to == types.Unborn {
		if DetectClog(p) {
			for heed := range p.Heeds {
				effects = append(effects, GiveEffect(Give{Kind: GiveClog, Duct: types.Duct(heed), Ship: p.Ship}))
			}
		}
	}
	return effects
}

// handleProd resets congestion for every flow of each listed peer.
func (t *Transport) handleProd(task Task) []Effect {
	for _, ship := range task.Ships {
		p, ok := t.Peers[ship]
		if !ok {
			continue
		}
		for _, ps := range p.Snd {
			NewMessagePump(ps).Prod()
		}
	}
	return nil
}

// handleStir arms the timer of every pump that has packets in flight, at
// its current deadline — the "recovery" task. It does not check whether
// a timer is already armed; the host's wait replaces any existing one.
func (t *Transport) handleStir(now time.Time) []Effect {
	var effects []Effect
	for ship, p := range t.Peers {
		for bone, ps := range p.Snd {
			pump := NewMessagePump(ps)
			if next, armed := pump.NextWake(); armed {
				tw := TimerWire{Namespace: "pump", Ship: ship, Bone: bone}
				effects = append(effects, WaitEffect(tw, next))
			}
		}
	}
	return effects
}

// handleCometAttestation processes an unencrypted open packet: a comet
// introducing itself with its public key as proof of address. The packet
// is only trusted as far as its self-signature goes; everything else
// about the comet (sponsor, rift) still needs a PKI round trip unless one
// is already known.
func (t *Transport) handleCometAttestation(open *wire.OpenPacket, lane types.Lane, now time.Time) []Effect {
	ship := open.Body.Sender
	p, ok := t.Peers[ship]
	if !ok {
		p = PromoteAlien(ship, open.Body.SenderLife, types.PublicKey(open.Body.PublicKey), t.OurPriv)
		t.Peers[ship] = p
	} else {
		Rekey(p, open.Body.SenderLife, types.PublicKey(open.Body.PublicKey), t.OurPriv)
	}
	// The arrival lane is trusted as a route but marked indirect per
	// spec.md S5: the comet's actual path may change session to session,
	// so routing still falls back to its sponsor if this lane goes stale.
	p.Route = types.Route{Valid: true, Direct: false, Lane: lane}
	prev := UpdateQoSOnContact(p, now)

	var effects []Effect
	if alien, ok := t.Aliens[ship]; ok {
		delete(t.Aliens, ship)
		for _, qm := range alien.Agenda.Messages {
			bone := p.Ossuary.Mint(qm.Duct)
			pump := NewMessagePump(p.PumpFor(bone))
			pump.Memo(qm.Blob)
			effects = append(effects, t.feedAndEncode(p, bone, pump, now)...)
		}
	}
	if prev != types.Live {
		effects = append(effects, t.qosTransitionEffects(p, prev, types.Live)...)
	}
	return effects
}

// forward relays a packet addressed to some other ship as-is, stamping the
// arrival lane as the origin breadcrumb unless one is already present and
// unless the sender is a galaxy (a galaxy's own route needs no breadcrumb).
func (t *Transport) forward(h wire.Header, lane types.Lane, raw []byte) []Effect {
	fh := h
	if len(fh.Origin) == 0 && !h.Sender.IsGalaxy() {
		fh.Origin = laneBreadcrumb(lane)
	}
	_, content, err := wire.DecodeHeader(raw)
	if err != nil {
		return []Effect{LogEffect("ames: " + err.Error())}
	}
	packet, err := fh.Encode(content)
	if err != nil {
		return []Effect{LogEffect("ames: " + err.Error())}
	}
	return t.sendVia(h.Receiver, true, packet)
}

// laneBreadcrumb renders a lane into the <= MaxOriginLen bytes a packet
// header's origin field can carry.
func laneBreadcrumb(lane types.Lane) []byte {
	var raw []byte
	if lane.IsGalaxy() {
		g := lane.Galaxy()
		raw = g[:]
	} else {
		raw = lane.Opaque()
	}
	if len(raw) > wire.MaxOriginLen {
		raw = raw[len(raw)-wire.MaxOriginLen:]
	}
	return append([]byte(nil), raw...)
}

// handlePKIResult applies a PKI oracle's answer: a fresh snapshot promotes
// an alien (draining its queued agenda), while the narrower result kinds
// apply the matching Known -> Known' transition.
func (t *Transport) handlePKIResult(task Task, now time.Time) []Effect {
	r := task.PKI
	switch r.Kind {
	case PKIFullSnapshot:
		p, existed := t.Peers[r.Ship]
		if !existed {
			p = PromoteAlien(r.Ship, r.Life, r.PublicKey, t.OurPriv)
			t.Peers[r.Ship] = p
		} else {
			Rekey(p, r.Life, r.PublicKey, t.OurPriv)
		}
		var effects []Effect
		if err := ApplySponsorChange(p, r.Sponsor); err != nil {
			effects = append(effects, LogEffect("ames: "+err.Error()))
		}
		p.HerRift = r.Rift

		if alien, ok := t.Aliens[r.Ship]; ok {
			delete(t.Aliens, r.Ship)
			for _, qm := range alien.Agenda.Messages {
				bone := p.Ossuary.Mint(qm.Duct)
				pump := NewMessagePump(p.PumpFor(bone))
				pump.Memo(qm.Blob)
				effects = append(effects, t.feedAndEncode(p, bone, pump, now)...)
			}
		}
		return effects

	case PKIRekey:
		p, ok := t.Peers[r.Ship]
		if !ok {
			return nil
		}
		Rekey(p, r.Life, r.PublicKey, t.OurPriv)
		return nil

	case PKISponsorChange:
		p, ok := t.Peers[r.Ship]
		if !ok {
			return nil
		}
		if err := ApplySponsorChange(p, r.Sponsor); err != nil {
			return []Effect{LogEffect("ames: " + err.Error())}
		}
		return nil

	case PKIRiftChange, PKIBreach:
		p, ok := t.Peers[r.Ship]
		if !ok {
			return nil
		}
		var effects []Effect
		for _, timer := range ArmedTimers(r.Ship, p) {
			effects = append(effects, RestEffect(timer))
		}
		ApplyContinuityBreach(p, r.Rift)
		return effects

	default:
		panic(fmt.Sprintf("ames: unknown PKI result kind %d", r.Kind))
	}
}

func (t *Transport) handleConsumerDone(task Task, now time.Time) []Effect {
	p, ok := t.Peers[task.Ship]
	if !ok {
		return nil
	}
	sink := NewMessageSink(p.SinkFor(task.Bone))
	acked, ackToSend, next := sink.ConsumerDone(task.ConsumerOK)

	h := wire.Header{Sender: t.OurShip, Receiver: p.Ship, Request: false, Sample: true, SenderTick: t.OurLife.Tick(), ReceiverTick: p.HerLife.Tick()}
	effects := t.encodeAckSend(p, h, task.Bone, ackToSend)

	if !task.ConsumerOK {
		effects = append(effects, t.sendNaxplanation(p, task.Bone, acked.MessageNum, task.PriorFailure, now)...)
	}

	if next != nil {
		effects = append(effects, GiveEffect(Give{Kind: GiveBoon, Ship: p.Ship, Rift: p.HerRift, Bone: task.Bone, Blob: next.Blob}))
	}
	return effects
}

// sendNaxplanation builds near(messageNum, cause) and feeds it through the
// message pump of bone's nack-trace companion, the backward flow
// applyNaxplanation reads on the other side. A bare message-nack only tells
// the sender "it failed"; the paired naxplanation message carries why, per
// spec.md §4.2/§7's caller-failure handling.
func (t *Transport) sendNaxplanation(p *types.PeerState, bone types.Bone, messageNum types.MessageNum, cause error, now time.Time) []Effect {
	reason := "consumer rejected message"
	if cause != nil {
		reason = cause.Error()
	}
	payload := struct {
		MessageNum types.MessageNum `cbor:"num"`
		Error      string           `cbor:"err"`
	}{MessageNum: messageNum, Error: reason}

	blob, err := wire.Jam(payload)
	if err != nil {
		return []Effect{LogEffect("ames: " + err.Error())}
	}

	nackBone := bone.NackTracePair()
	pump := NewMessagePump(p.PumpFor(nackBone))
	pump.Memo(blob)
	return t.feedAndEncode(p, nackBone, pump, now)
}
