package types

import "fmt"

// Ship is a 128-bit opaque peer identifier. Its class is derived purely
// from its bit width, so no side table is needed to classify an address.
type Ship [16]byte

// Class enumerates the five ship sizes, from most to least significant.
type Class int

const (
	Galaxy Class = iota
	Star
	Planet
	Moon
	Comet
)

func (c Class) String() string {
	switch c {
	case Galaxy:
		return "galaxy"
	case Star:
		return "star"
	case Planet:
		return "planet"
	case Moon:
		return "moon"
	case Comet:
		return "comet"
	default:
		return "unknown"
	}
}

// Class derives the ship's size class from the position of its highest set
// byte, following the kernel's convention: galaxies fit in one byte, stars
// in two, planets in four, moons in eight, and anything wider is a comet.
func (s Ship) Class() Class {
	width := s.byteWidth()
	switch {
	case width <= 1:
		return Galaxy
	case width <= 2:
		return Star
	case width <= 4:
		return Planet
	case width <= 8:
		return Moon
	default:
		return Comet
	}
}

// byteWidth reports how many of the array's trailing bytes are needed to
// hold s's value: s is a big-endian 128-bit integer, so the unused high
// bits sit at the low indices and the first nonzero byte scanning from
// index 0 marks where the significant trailing run begins.
func (s Ship) byteWidth() int {
	for i := 0; i < len(s); i++ {
		if s[i] != 0 {
			return len(s) - i
		}
	}
	return 0
}

// IsGalaxy reports whether s is a top-level sponsor with a well-known
// address; only galaxies may sponsor stars, and only stars may sponsor
// comets.
func (s Ship) IsGalaxy() bool {
	return s.Class() == Galaxy
}

// Equal reports whether two ships name the same address.
func (s Ship) Equal(other Ship) bool {
	return s == other
}

func (s Ship) String() string {
	return fmt.Sprintf("~%x", [16]byte(s))
}

// Life is a monotonically increasing key epoch for a ship.
type Life uint32

// Tick is life reduced mod 16, the nibble actually carried on the wire to
// cheaply reject stale-epoch replay without transmitting the full life.
func (l Life) Tick() uint8 {
	return uint8(l % 16)
}

// Rift is a monotonically increasing continuity epoch for a ship.
// Incrementing it invalidates all message state held for that ship.
type Rift uint32
