// Package core implements the hard engineering of Ames: the message pump,
// the message sink, the packet pump (congestion controller), and the peer
// state machine that orchestrates them. The core is
// single-threaded and synchronous: a handler never blocks, it only
// collects a list of outbound effects for the host to execute.
package core

import (
	"time"

	"github.com/arvo-os/ames/pkg/ames/types"
)

// TimerWire is the canonical handle used to arm and cancel a timer. Timers
// are identified structurally, not by an opaque handle, so a peer can
// recompute the wire for any timer it wants to cancel without having kept
// a reference around.
type TimerWire struct {
	Namespace string
	Ship      types.Ship
	Bone      types.Bone
}

// GiveKind discriminates what is being handed back to a local subsystem.
type GiveKind int

const (
	GiveBoon GiveKind = iota // a response message delivered to the caller
	GiveLost                 // a boon the consumer could not process
	GiveDone                 // done(message-num, optional error) on a send
	GiveClog                 // a clogged-peer notification
	GiveTurf                 // liveness / QoS transition notification
)

// Give is a value handed to a local subsystem, addressed by duct.
type Give struct {
	Kind       GiveKind
	Duct       types.Duct
	Ship       types.Ship
	Rift       types.Rift
	Bone       types.Bone
	Done       types.Done
	Blob       []byte
	QoS        types.QoS
	Text       string
}

// EffectKind discriminates an outbound effect.
type EffectKind int

const (
	EffectSend EffectKind = iota
	EffectWait
	EffectRest
	EffectGive
	EffectLog
)

// Effect is one outbound action the host must perform after a single event
// has been processed to completion. Order within one event's effect list is
// preserved end to end.
type Effect struct {
	Kind EffectKind

	// EffectSend.
	Lane types.Lane
	Blob []byte

	// EffectWait / EffectRest.
	Timer TimerWire
	When  time.Time

	// EffectGive.
	Give Give

	// EffectLog.
	Text string
}

func SendEffect(lane types.Lane, blob []byte) Effect {
	return Effect{Kind: EffectSend, Lane: lane, Blob: blob}
}

func WaitEffect(timer TimerWire, when time.Time) Effect {
	return Effect{Kind: EffectWait, Timer: timer, When: when}
}

func RestEffect(timer TimerWire) Effect {
	return Effect{Kind: EffectRest, Timer: timer}
}

func GiveEffect(g Give) Effect {
	return Effect{Kind: EffectGive, Give: g}
}

func LogEffect(text string) Effect {
	return Effect{Kind: EffectLog, Text: text}
}

// PKIOracle is the external collaborator that supplies peer public keys,
// life, rift, and sponsor chain. It is out of this
// package's scope; Ames only consumes its results.
type PKIOracle interface {
	// Lookup asks the oracle to resolve a ship; the answer eventually
	// arrives as a PKIResult task.
	Lookup(ship types.Ship)
}

// PKIResultKind discriminates the oracle's open-ish result sum. An unrecognized kind is a protocol violation and must crash rather
// than be silently ignored.
type PKIResultKind int

const (
	PKIFullSnapshot PKIResultKind = iota
	PKIRekey
	PKISponsorChange
	PKIRiftChange
	PKIBreach
)

// PKIResult is one inbound answer from the PKI oracle.
type PKIResult struct {
	Kind PKIResultKind
	Ship types.Ship

	Life      types.Life
	Suite     string
	PublicKey types.PublicKey

	Sponsor *types.Ship

	Rift types.Rift
}

// LocalRouter is the external collaborator that produces outbound requests
// and consumes inbound requests/responses. Ames hands it
// Give values through effects; it never calls back in synchronously.
type LocalRouter interface{}
