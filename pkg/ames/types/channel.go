package types

// Channel is the transient view joining local identity (our ship, life,
// private key) with one peer's identity (symmetric key, her-life, her-rift)
// for the duration of a single event. It is never stored: handlers
// recompute and thread it through so peer state itself carries no
// redundant cryptographic material.
type Channel struct {
	OurShip Ship
	OurLife Life

	HerShip Ship
	HerLife Life
	HerRift Rift

	SymmetricKey SymmetricKey
}
