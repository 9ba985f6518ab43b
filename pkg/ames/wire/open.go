package wire

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	"github.com/arvo-os/ames/pkg/ames/types"
)

// OpenPacketBody is a comet's self-attestation, sent unencrypted: a
// comet's identity *is* the fingerprint of its own public key.
type OpenPacketBody struct {
	PublicKey []byte           `cbor:"pub"`
	Sender    types.Ship       `cbor:"sndr"`
	SenderLife types.Life      `cbor:"sndr_life"` // always 1
	Receiver  types.Ship       `cbor:"rcvr"`
	ReceiverLife types.Life    `cbor:"rcvr_life"`
}

// OpenPacket is the wire form: a signature over the jammed body.
type OpenPacket struct {
	Signature []byte
	Body      OpenPacketBody
}

// SignOpenPacket builds and signs a fresh self-attestation. Ed25519 is used
// the way the beenet example signs its frames with crypto/ed25519 —
// standard library, but the ecosystem-idiomatic choice for this primitive.
func SignOpenPacket(priv ed25519.PrivateKey, body OpenPacketBody) (*OpenPacket, error) {
	body.SenderLife = 1
	payload, err := Jam(body)
	if err != nil {
		return nil, err
	}
	sig := ed25519.Sign(priv, payload)
	return &OpenPacket{Signature: sig, Body: body}, nil
}

// EncodeOpenPacket jams (signature, body) and wraps it behind the shared
// packet header with Request=true, Sample=true, sender life tick = 1 (a
// comet's life is always 1 until rekeyed).
func EncodeOpenPacket(p *OpenPacket, receiverLife types.Life) ([]byte, error) {
	content, err := Jam(struct {
		Signature []byte         `cbor:"sig"`
		Body      OpenPacketBody `cbor:"body"`
	}{p.Signature, p.Body})
	if err != nil {
		return nil, err
	}
	h := Header{
		Sender:       p.Body.Sender,
		Receiver:     p.Body.Receiver,
		Request:      true,
		Sample:       true,
		SenderTick:   types.Life(1).Tick(),
		ReceiverTick: receiverLife.Tick(),
	}
	return h.Encode(content)
}

// DecodeOpenPacket parses and verifies an open packet's content (everything
// after the shared header): the signature must verify under the embedded
// public key, and that key must hash to the claimed sender ship — a comet's
// address *is* its key fingerprint.
func DecodeOpenPacket(content []byte) (*OpenPacket, error) {
	var wrapped struct {
		Signature []byte         `cbor:"sig"`
		Body      OpenPacketBody `cbor:"body"`
	}
	if err := Cue(content, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMalformedPacket, err)
	}

	payload, err := Jam(wrapped.Body)
	if err != nil {
		return nil, err
	}
	if !ed25519.Verify(ed25519.PublicKey(wrapped.Body.PublicKey), payload, wrapped.Signature) {
		return nil, types.ErrSignatureInvalid
	}

	if !ShipFromPublicKey(wrapped.Body.PublicKey).Equal(wrapped.Body.Sender) {
		return nil, types.ErrAddressMismatch
	}

	return &OpenPacket{Signature: wrapped.Signature, Body: wrapped.Body}, nil
}

// ShipFromPublicKey derives a comet's address by truncating/folding the
// SHA-256 fingerprint of its public key into the 128-bit ship space.
func ShipFromPublicKey(pub []byte) types.Ship {
	sum := sha256.Sum256(pub)
	var s types.Ship
	copy(s[:], sum[:16])
	return s
}
