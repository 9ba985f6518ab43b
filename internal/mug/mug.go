// Package mug implements Ames's deterministic, non-cryptographic mixing
// hash. It is used wherever the protocol needs a value that looks random
// but must be reproducible across replicas replaying the same event log —
// most notably the packet pump's "increment cwnd with probability 1/cwnd"
// coin flip, used once the pump is out of slow start.
package mug

import "github.com/cespare/xxhash/v2"

// Of folds b down to a 31-bit non-negative value, mirroring the kernel's
// "mug" primitive: a short, well-distributed, deterministic digest safe to
// use as a map key or a modulus operand.
func Of(b []byte) uint32 {
	sum := xxhash.Sum64(b)
	folded := uint32(sum>>32) ^ uint32(sum)
	return folded & 0x7fffffff
}

// OfUint64 mugs the little-endian bytes of v, the common case of hashing a
// monotonic counter (a timestamp, a ship address, a message-num) without an
// intermediate allocation.
func OfUint64(v uint64) uint32 {
	var buf [8]byte
	for i := range buf {
		buf[i] = byte(v >> (8 * i))
	}
	return Of(buf[:])
}
