package core

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/arvo-os/ames/pkg/ames/types"
	"github.com/arvo-os/ames/pkg/ames/wire"
)

func mkTransportPeer(t *testing.T) (*Transport, *types.PeerState, types.Ship) {
	t.Helper()
	ourPriv, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating our key: %v", err)
	}
	_, herPub, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating her key: %v", err)
	}

	tr := NewTransport(mkTestShip(1), types.Life(1), ourPriv, nil, nil, nil)
	herShip := mkTestShip(2)
	p := PromoteAlien(herShip, types.Life(1), types.PublicKey(herPub), ourPriv)
	p.Route = types.Route{Valid: true, Direct: true, Lane: types.OpaqueLane([]byte("udp:127.0.0.1:4242"))}
	tr.Peers[herShip] = p
	return tr, p, herShip
}

func decryptSend(t *testing.T, tr *Transport, p *types.PeerState, eff Effect) *wire.ShutPacketBody {
	t.Helper()
	if eff.Kind != EffectSend {
		t.Fatalf("expected a send effect, got %+v", eff)
	}
	h, content, err := wire.DecodeHeader(eff.Blob)
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	body, err := wire.DecryptShutPacket(p.SymmetricKey, h.Sender, h.Receiver, tr.OurLife, p.HerLife, content)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	return body
}

func TestHandleConsumerDoneSendsNaxplanationOnNack(t *testing.T) {
	tr, p, herShip := mkTransportPeer(t)
	bone := types.Bone(4)

	sink := NewMessageSink(p.SinkFor(bone))
	_, delivered, err := sink.Receive(InboundFragment{MessageNum: 0, NumFragments: 1, FragmentNum: 0, Data: []byte("payload")})
	if err != nil || delivered == nil {
		t.Fatalf("expected the message delivered to the consumer, got delivered=%+v err=%v", delivered, err)
	}

	cause := errors.New("handler exploded")
	effects := tr.Dispatch(Task{
		Kind:         TaskConsumerDone,
		Ship:         herShip,
		Bone:         bone,
		ConsumerOK:   false,
		PriorFailure: cause,
	}, time.Now())

	var sawNack, sawNax bool
	for _, eff := range effects {
		if eff.Kind != EffectSend {
			continue
		}
		body := decryptSend(t, tr, p, eff)
		switch body.Meat.Kind {
		case wire.MeatMessageAck:
			sawNack = true
			if body.Meat.OK {
				t.Fatal("expected a negative message-ack")
			}
			if body.Bone != bone {
				t.Fatalf("expected the nack on bone %v, got %v", bone, body.Bone)
			}
		case wire.MeatFragment:
			sawNax = true
			if body.Bone != bone.NackTracePair() {
				t.Fatalf("expected the naxplanation on the nack-trace bone %v, got %v", bone.NackTracePair(), body.Bone)
			}
			var payload struct {
				MessageNum types.MessageNum `cbor:"num"`
				Error      string           `cbor:"err"`
			}
			if err := wire.Cue(body.Meat.FragmentData, &payload); err != nil {
				t.Fatalf("cue naxplanation payload: %v", err)
			}
			if payload.MessageNum != 0 {
				t.Fatalf("expected naxplanation for message 0, got %d", payload.MessageNum)
			}
			if payload.Error != cause.Error() {
				t.Fatalf("expected error %q, got %q", cause.Error(), payload.Error)
			}
		}
	}
	if !sawNack {
		t.Fatal("expected a message-nack send effect")
	}
	if !sawNax {
		t.Fatal("expected a naxplanation fragment send effect")
	}
}

func TestHandleConsumerDoneOmitsNaxplanationOnAck(t *testing.T) {
	tr, p, herShip := mkTransportPeer(t)
	bone := types.Bone(4)

	sink := NewMessageSink(p.SinkFor(bone))
	sink.Receive(InboundFragment{MessageNum: 0, NumFragments: 1, FragmentNum: 0, Data: []byte("payload")})

	effects := tr.Dispatch(Task{Kind: TaskConsumerDone, Ship: herShip, Bone: bone, ConsumerOK: true}, time.Now())
	for _, eff := range effects {
		if eff.Kind != EffectSend {
			continue
		}
		body := decryptSend(t, tr, p, eff)
		if body.Meat.Kind == wire.MeatFragment {
			t.Fatal("expected no naxplanation fragment on a positive ack")
		}
	}
}

func TestHandlePKIResultPanicsOnUnknownKind(t *testing.T) {
	tr, _, herShip := mkTransportPeer(t)

	defer func() {
		if recover() == nil {
			t.Fatal("expected handlePKIResult to panic on an unrecognized PKI result kind")
		}
	}()
	tr.Dispatch(Task{Kind: TaskPKIResult, PKI: PKIResult{Kind: PKIResultKind(99), Ship: herShip}}, time.Now())
}
