package checksum

import "testing"

func TestChecksumKnownVectors(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		want uint16
	}{
		// Worked example from RFC 1071 section 3.
		{"rfc1071", []byte{0x00, 0x01, 0xf2, 0x03, 0xf4, 0xf5, 0xf6, 0xf7}, 0x220d},
		{"empty", []byte{}, 0xffff},
		{"zeros", []byte{0x00, 0x00, 0x00, 0x00}, 0xffff},
		{"ones", []byte{0xff, 0xff, 0xff, 0xff}, 0x0000},
		// Odd length pads the trailing byte with a zero low byte, so a
		// lone 0x01 sums as the word 0x0100.
		{"oddSingle", []byte{0x01}, 0xfeff},
		{"oddTriple", []byte{0x12, 0x34, 0x56}, ^uint16(0x1234 + 0x5600)},
	}
	for _, tt := range tests {
		if got := Checksum(tt.buf); got != tt.want {
			t.Errorf("%s: Checksum = %#04x; want %#04x", tt.name, got, tt.want)
		}
	}
}

func TestPartialFoldsCarries(t *testing.T) {
	// 0xffff + 0xffff + 0x0001 = 0x1ffff: the first fold yields 0x10000,
	// which still carries, so the fold must repeat.
	buf := []byte{0xff, 0xff, 0xff, 0xff, 0x00, 0x01}
	if got := Partial(buf, 0); got != 0x0001 {
		t.Errorf("Partial = %#04x; want 0x0001", got)
	}
}

func TestPartialChainingMatchesSinglePass(t *testing.T) {
	buf := []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}
	whole := Partial(buf, 0)

	// Split points must keep the leading ranges even length.
	for _, cut := range []int{0, 2, 4, 6, 8, 10} {
		chained := Partial(buf[cut:], Partial(buf[:cut], 0))
		if chained != whole {
			t.Errorf("cut %d: chained sum = %#04x; want %#04x", cut, chained, whole)
		}
	}
}

func TestCombineMatchesChaining(t *testing.T) {
	a := []byte{0x12, 0x34, 0xab, 0xcd}
	b := []byte{0xff, 0x00, 0x00, 0xff, 0x80, 0x80}
	whole := Partial(append(append([]byte{}, a...), b...), 0)
	combined := Combine(Partial(a, 0), Partial(b, 0))
	if combined != whole {
		t.Errorf("Combine = %#04x; want %#04x", combined, whole)
	}
}

func TestChecksumPure(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	first := Checksum(buf)
	second := Checksum(buf)
	if first != second {
		t.Errorf("Checksum not stable: %#04x then %#04x", first, second)
	}
	if buf[0] != 0x01 || buf[4] != 0x05 {
		t.Errorf("Checksum mutated its input: % x", buf)
	}
}

func TestReceiverSideValidation(t *testing.T) {
	// Embedding the checksum of a buffer back into it makes the full
	// buffer sum to 0xffff, which is how receivers verify integrity.
	buf := []byte{0x45, 0x00, 0x00, 0x1c, 0x00, 0x00, 0x00, 0x00, 0x40, 0x06, 0x00, 0x00}
	cs := Checksum(buf)
	buf[10] = byte(cs >> 8)
	buf[11] = byte(cs)
	if got := Partial(buf, 0); got != 0xffff {
		t.Errorf("sum over self-checksummed buffer = %#04x; want 0xffff", got)
	}
}
