package types

import "errors"

// Protocol-kind errors: malformed input the transport drops silently,
// possibly logging a trace. Comparison is by errors.Is.
var (
	ErrMalformedPacket     = errors.New("ames: malformed packet")
	ErrTickMismatch        = errors.New("ames: sender/receiver life tick mismatch")
	ErrSignatureInvalid    = errors.New("ames: signature verification failed")
	ErrRiftMismatch        = errors.New("ames: rift mismatch")
	ErrFieldSize           = errors.New("ames: mis-sized field")
	ErrUnsupportedSuite    = errors.New("ames: unsupported crypto suite")
	ErrUnknownVariant      = errors.New("ames: unknown protocol variant")
	ErrInvalidCometSponsor = errors.New("ames: only a star may sponsor a comet")
	ErrAddressMismatch     = errors.New("ames: public key does not hash to claimed ship")
	ErrFragmentMismatch    = errors.New("ames: conflicting num-fragments for message")
	ErrStaleRift           = errors.New("ames: event carries an older rift than current")
	ErrWindowExceeded      = errors.New("ames: message-num outside sink window")
	ErrNacked              = errors.New("ames: message nacked")
)
