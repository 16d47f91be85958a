package tcp

import (
	"strings"

	"github.com/FreibergVlad/port-scanner/bitflags"
)

// Masks of the nine control bits within the low nine bits of the combined
// data offset, reserved, and flags field.
const (
	FlagNS  uint16 = 256
	FlagCWR uint16 = 128
	FlagECE uint16 = 64
	FlagURG uint16 = 32
	FlagACK uint16 = 16
	FlagPSH uint16 = 8
	FlagRST uint16 = 4
	FlagSYN uint16 = 2
	FlagFIN uint16 = 1

	controlBitsMask uint16 = 0x01ff
)

// ControlFlags names the control bits of a segment for construction.
type ControlFlags struct {
	NS  bool
	CWR bool
	ECE bool
	URG bool
	ACK bool
	PSH bool
	RST bool
	SYN bool
	FIN bool
}

// ControlBits is the set of control bits of a single segment. It is a
// comparable value type, so two values with the same bits are equal
// under ==.
type ControlBits struct {
	bits bitflags.Set[uint16]
}

// NewControlBits builds the set from individually named flags.
func NewControlBits(f ControlFlags) ControlBits {
	var s bitflags.Set[uint16]
	s.Set(FlagNS, f.NS)
	s.Set(FlagCWR, f.CWR)
	s.Set(FlagECE, f.ECE)
	s.Set(FlagURG, f.URG)
	s.Set(FlagACK, f.ACK)
	s.Set(FlagPSH, f.PSH)
	s.Set(FlagRST, f.RST)
	s.Set(FlagSYN, f.SYN)
	s.Set(FlagFIN, f.FIN)
	return ControlBits{bits: s}
}

// ControlBitsFromInt builds the set from the low nine bits of v. Higher
// bits are discarded; validating the adjacent reserved bits is the header
// codec's concern, not this function's.
func ControlBitsFromInt(v uint16) ControlBits {
	var s bitflags.Set[uint16]
	s.Set(v&controlBitsMask, true)
	return ControlBits{bits: s}
}

func (c ControlBits) NS() bool  { return c.bits.IsSet(FlagNS) }
func (c ControlBits) CWR() bool { return c.bits.IsSet(FlagCWR) }
func (c ControlBits) ECE() bool { return c.bits.IsSet(FlagECE) }
func (c ControlBits) URG() bool { return c.bits.IsSet(FlagURG) }
func (c ControlBits) ACK() bool { return c.bits.IsSet(FlagACK) }
func (c ControlBits) PSH() bool { return c.bits.IsSet(FlagPSH) }
func (c ControlBits) RST() bool { return c.bits.IsSet(FlagRST) }
func (c ControlBits) SYN() bool { return c.bits.IsSet(FlagSYN) }
func (c ControlBits) FIN() bool { return c.bits.IsSet(FlagFIN) }

// Bits returns the set packed into the low nine bits of a uint16.
func (c ControlBits) Bits() uint16 {
	return c.bits.Bits()
}

// String lists the raised flags in lower case, space separated, always in
// the order ns cwr ece urg ack psh rst syn fin.
func (c ControlBits) String() string {
	names := []struct {
		mask uint16
		name string
	}{
		{FlagNS, "ns"},
		{FlagCWR, "cwr"},
		{FlagECE, "ece"},
		{FlagURG, "urg"},
		{FlagACK, "ack"},
		{FlagPSH, "psh"},
		{FlagRST, "rst"},
		{FlagSYN, "syn"},
		{FlagFIN, "fin"},
	}
	var parts []string
	for _, n := range names {
		if c.bits.IsSet(n.mask) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, " ")
}
