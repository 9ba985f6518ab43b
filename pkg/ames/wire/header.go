package wire

import (
	"fmt"

	"github.com/arvo-os/ames/pkg/ames/types"
)

// shipSizeClass maps a ship's Class to the fixed byte width its address
// occupies on the wire.
func shipSizeClass(c types.Class) (code uint8, width int) {
	switch c {
	case types.Galaxy:
		return 0, 1
	case types.Star:
		return 1, 2
	case types.Planet:
		return 2, 4
	case types.Moon:
		return 3, 8
	default:
		return 4, 16
	}
}

func widthForCode(code uint8) (int, error) {
	switch code {
	case 0:
		return 1, nil
	case 1:
		return 2, nil
	case 2:
		return 4, nil
	case 3:
		return 8, nil
	case 4:
		return 16, nil
	default:
		return 0, fmt.Errorf("%w: ship size code %d", types.ErrFieldSize, code)
	}
}

// MaxOriginLen bounds the forwarding-breadcrumb field.
const MaxOriginLen = 6

// Header is the bit-exact fixed portion of every Ames packet. Ship sizes,
// life ticks, and the origin field occupy fixed integer widths packed
// low-to-high; this is deliberately hand-rolled with encoding/binary-style
// bit shifting rather than a generic codec, since wire compatibility
// depends on exact bit positions.
type Header struct {
	Sender       types.Ship
	Receiver     types.Ship
	Request      bool // request=1, ack=0
	Sample       bool // currently always true
	SenderTick   uint8 // sender life mod 16
	ReceiverTick uint8 // receiver life mod 16
	Origin       []byte // optional forwarding breadcrumb, <= MaxOriginLen bytes
}

// Encode packs the header followed by content into a single packet.
func (h Header) Encode(content []byte) ([]byte, error) {
	if len(h.Origin) > MaxOriginLen {
		return nil, fmt.Errorf("%w: origin %d bytes", types.ErrFieldSize, len(h.Origin))
	}

	sCode, sWidth := shipSizeClass(h.Sender.Class())
	rCode, rWidth := shipSizeClass(h.Receiver.Class())

	buf := make([]byte, 0, 3+sWidth+rWidth+len(h.Origin)+len(content))

	var flags uint8
	if h.Request {
		flags |= 1 << 0
	}
	if h.Sample {
		flags |= 1 << 1
	}
	flags |= sCode << 2
	flags |= rCode << 5
	buf = append(buf, flags)

	buf = append(buf, (h.SenderTick&0xf)<<4|(h.ReceiverTick&0xf))

	var originByte uint8
	if len(h.Origin) > 0 {
		originByte = 1<<0 | uint8(len(h.Origin))<<1
	}
	buf = append(buf, originByte)

	buf = append(buf, h.Sender[16-sWidth:]...)
	buf = append(buf, h.Receiver[16-rWidth:]...)
	buf = append(buf, h.Origin...)
	buf = append(buf, content...)
	return buf, nil
}

// DecodeHeader unpacks a Header and returns the remaining content bytes.
func DecodeHeader(packet []byte) (Header, []byte, error) {
	if len(packet) < 3 {
		return Header{}, nil, fmt.Errorf("%w: short packet", types.ErrMalformedPacket)
	}
	flags := packet[0]
	tickByte := packet[1]
	originByte := packet[2]
	rest := packet[3:]

	sCode := (flags >> 2) & 0x7
	rCode := (flags >> 5) & 0x7
	sWidth, err := widthForCode(sCode)
	if err != nil {
		return Header{}, nil, err
	}
	rWidth, err := widthForCode(rCode)
	if err != nil {
		return Header{}, nil, err
	}

	originLen := int((originByte >> 1) & 0x7)
	if originByte&1 == 0 {
		originLen = 0
	}
	if originLen > MaxOriginLen {
		return Header{}, nil, fmt.Errorf("%w: origin %d bytes", types.ErrFieldSize, originLen)
	}

	need := sWidth + rWidth + originLen
	if len(rest) < need {
		return Header{}, nil, fmt.Errorf("%w: truncated addresses", types.ErrMalformedPacket)
	}

	var sender, receiver types.Ship
	copy(sender[16-sWidth:], rest[:sWidth])
	rest = rest[sWidth:]
	copy(receiver[16-rWidth:], rest[:rWidth])
	rest = rest[rWidth:]

	var origin []byte
	if originLen > 0 {
		origin = append([]byte(nil), rest[:originLen]...)
		rest = rest[originLen:]
	}

	h := Header{
		Sender:       sender,
		Receiver:     receiver,
		Request:      flags&(1<<0) != 0,
		Sample:       flags&(1<<1) != 0,
		SenderTick:   tickByte >> 4,
		ReceiverTick: tickByte & 0xf,
		Origin:       origin,
	}
	return h, rest, nil
}

// CheckTicks rejects stale-epoch replay without requiring the full life
// numbers on the wire: the sender's claimed tick must match our record of
// her life mod 16, and the receiver tick must match our own life mod 16.
func (h Header) CheckTicks(herLife, ourLife types.Life) error {
	if h.SenderTick != herLife.Tick() {
		return fmt.Errorf("%w: sender tick %d != %d", types.ErrTickMismatch, h.SenderTick, herLife.Tick())
	}
	if h.ReceiverTick != ourLife.Tick() {
		return fmt.Errorf("%w: receiver tick %d != %d", types.ErrTickMismatch, h.ReceiverTick, ourLife.Tick())
	}
	return nil
}
