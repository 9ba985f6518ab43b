// Package wire implements the Ames packet codec: the bit-exact packet
// header, the open/shut packet content classes, their
// fragment-ack/message-ack payloads, and the crypto (ed25519 signatures,
// AES-SIV encryption) that protects shut packets.
package wire

import (
	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	opts := cbor.CanonicalEncOptions()
	m, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	encMode = m

	dopts := cbor.DecOptions{}
	dm, err := dopts.DecMode()
	if err != nil {
		panic(err)
	}
	decMode = dm
}

// Jam serializes v to its canonical wire representation. Ames's structured
// payloads (shut-packet bodies, open-packet attestations) use canonical
// CBOR the way the beenet example canonically encodes its frame bodies
// before signing/transmitting — this gives byte-stable output independent
// of map iteration order, a precondition for signing.
func Jam(v interface{}) ([]byte, error) {
	return encMode.Marshal(v)
}

// Cue is the inverse of Jam.
func Cue(data []byte, v interface{}) error {
	return decMode.Unmarshal(data, v)
}
