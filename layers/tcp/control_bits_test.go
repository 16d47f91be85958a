package tcp

import "testing"

func TestControlBitsAccessors(t *testing.T) {
	tests := []struct {
		name  string
		flags ControlFlags
		mask  uint16
		isSet func(ControlBits) bool
	}{
		{"ns", ControlFlags{NS: true}, FlagNS, ControlBits.NS},
		{"cwr", ControlFlags{CWR: true}, FlagCWR, ControlBits.CWR},
		{"ece", ControlFlags{ECE: true}, FlagECE, ControlBits.ECE},
		{"urg", ControlFlags{URG: true}, FlagURG, ControlBits.URG},
		{"ack", ControlFlags{ACK: true}, FlagACK, ControlBits.ACK},
		{"psh", ControlFlags{PSH: true}, FlagPSH, ControlBits.PSH},
		{"rst", ControlFlags{RST: true}, FlagRST, ControlBits.RST},
		{"syn", ControlFlags{SYN: true}, FlagSYN, ControlBits.SYN},
		{"fin", ControlFlags{FIN: true}, FlagFIN, ControlBits.FIN},
	}
	for _, tt := range tests {
		c := NewControlBits(tt.flags)
		if !tt.isSet(c) {
			t.Errorf("%s: flag not set after construction", tt.name)
		}
		if c.Bits() != tt.mask {
			t.Errorf("%s: Bits() = %d; want %d", tt.name, c.Bits(), tt.mask)
		}
	}
}

func TestControlBitsFromInt(t *testing.T) {
	c := ControlBitsFromInt(FlagSYN | FlagACK)
	if !c.SYN() || !c.ACK() || c.FIN() {
		t.Errorf("ControlBitsFromInt(syn|ack) decoded wrong: %#x", c.Bits())
	}

	// Bits above the ninth, where the data offset and reserved bits
	// live on the wire, must be discarded.
	c = ControlBitsFromInt(0x8000 | FlagACK)
	if c.Bits() != FlagACK {
		t.Errorf("high bits not discarded: Bits() = %#x; want %#x", c.Bits(), FlagACK)
	}
}

func TestControlBitsEquality(t *testing.T) {
	a := NewControlBits(ControlFlags{SYN: true, ACK: true})
	b := ControlBitsFromInt(FlagSYN | FlagACK)
	if a != b {
		t.Errorf("equal flag sets compare unequal: %#x vs %#x", a.Bits(), b.Bits())
	}
	c := NewControlBits(ControlFlags{SYN: true})
	if a == c {
		t.Errorf("different flag sets compare equal")
	}
}

func TestControlBitsString(t *testing.T) {
	tests := []struct {
		flags ControlFlags
		want  string
	}{
		{ControlFlags{}, ""},
		{ControlFlags{SYN: true}, "syn"},
		// Declaration order, not the order flags were raised in.
		{ControlFlags{SYN: true, ACK: true}, "ack syn"},
		{ControlFlags{FIN: true, PSH: true, ACK: true}, "ack psh fin"},
		{
			ControlFlags{NS: true, CWR: true, ECE: true, URG: true, ACK: true, PSH: true, RST: true, SYN: true, FIN: true},
			"ns cwr ece urg ack psh rst syn fin",
		},
	}
	for _, tt := range tests {
		if got := NewControlBits(tt.flags).String(); got != tt.want {
			t.Errorf("String() = %q; want %q", got, tt.want)
		}
	}
}
