package wire

import (
	"crypto/cipher"
	"fmt"

	siv "github.com/secure-io/siv-go"

	"github.com/arvo-os/ames/pkg/ames/types"
)

func newAEAD(key types.SymmetricKey) (cipher.AEAD, error) {
	aead, err := siv.NewCMAC(key[:])
	if err != nil {
		return nil, fmt.Errorf("ames: building AES-SIV AEAD: %w", err)
	}
	return aead, nil
}

// associatedData builds the AES-SIV associated-data vector: [sndr, rcvr,
// sndr-life, rcvr-life].
func associatedData(sndr, rcvr types.Ship, sndrLife, rcvrLife types.Life) []byte {
	buf := make([]byte, 0, 16+16+4+4)
	buf = append(buf, sndr[:]...)
	buf = append(buf, rcvr[:]...)
	buf = append(buf, byte(sndrLife), byte(sndrLife>>8), byte(sndrLife>>16), byte(sndrLife>>24))
	buf = append(buf, byte(rcvrLife), byte(rcvrLife>>8), byte(rcvrLife>>16), byte(rcvrLife>>24))
	return buf
}

// EncryptShutPacket jams the shut-packet body and seals it with AES-SIV.
// A single-fragment message is the common case; the fast path here is just
// that the caller passes Meat once rather than looping — there is no
// separate representation, it falls out of ShutPacketBody already only
// ever describing one fragment or one ack at a time.
func EncryptShutPacket(key types.SymmetricKey, sndr, rcvr types.Ship, sndrLife, rcvrLife types.Life, body ShutPacketBody) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := Jam(body)
	if err != nil {
		return nil, err
	}
	ad := associatedData(sndr, rcvr, sndrLife, rcvrLife)
	nonce := make([]byte, aead.NonceSize())
	return aead.Seal(nil, nonce, plaintext, ad), nil
}

// DecryptShutPacket opens an AES-SIV ciphertext and cues the resulting
// plaintext back into a ShutPacketBody.
func DecryptShutPacket(key types.SymmetricKey, sndr, rcvr types.Ship, sndrLife, rcvrLife types.Life, ciphertext []byte) (*ShutPacketBody, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	ad := associatedData(sndr, rcvr, sndrLife, rcvrLife)
	nonce := make([]byte, aead.NonceSize())
	plaintext, err := aead.Open(nil, nonce, ciphertext, ad)
	if err != nil {
		return nil, fmt.Errorf("%w: AES-SIV open failed: %v", types.ErrMalformedPacket, err)
	}
	var body ShutPacketBody
	if err := Cue(plaintext, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMalformedPacket, err)
	}
	return &body, nil
}

// EncodeShutPacket wraps an already-encrypted shut packet behind the shared
// bit-exact header.
func EncodeShutPacket(h Header, ciphertext []byte) ([]byte, error) {
	return h.Encode(ciphertext)
}
