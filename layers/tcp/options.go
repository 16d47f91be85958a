package tcp

import (
	"encoding/binary"
	"fmt"
)

// Option kinds of RFC 793 and its successors that the codec either
// interprets or commonly emits in probe segments.
const (
	OptionKindEndOfList     uint8 = 0
	OptionKindNoOp          uint8 = 1
	OptionKindMSS           uint8 = 2
	OptionKindWindowScale   uint8 = 3
	OptionKindSACKPermitted uint8 = 4
	OptionKindTimestamps    uint8 = 8
)

// maxOptionLength is the largest size a single option's one byte length
// field can describe.
const maxOptionLength = 255

// Option is one entry of a segment's options list. Implementations are
// limited to this package so the decoder can enumerate them.
type Option interface {
	// wireLength returns the option's size on the wire in bytes.
	wireLength() int

	// appendWire appends the option's wire form to dst.
	appendWire(dst []byte) []byte

	// equalOption reports value equality with another option.
	equalOption(other Option) bool
}

// EndOfList terminates an options list. Everything after it in the options
// field is padding.
type EndOfList struct{}

func (EndOfList) wireLength() int { return 1 }

func (EndOfList) appendWire(dst []byte) []byte {
	return append(dst, OptionKindEndOfList)
}

func (EndOfList) equalOption(other Option) bool {
	_, ok := other.(EndOfList)
	return ok
}

// NoOp is the single byte padding option used to align later options.
type NoOp struct{}

func (NoOp) wireLength() int { return 1 }

func (NoOp) appendWire(dst []byte) []byte {
	return append(dst, OptionKindNoOp)
}

func (NoOp) equalOption(other Option) bool {
	_, ok := other.(NoOp)
	return ok
}

// Sized is a kind, length, value option whose payload is a list of 32 bit
// big endian words, such as the timestamps option.
type Sized struct {
	Kind   uint8
	Values []uint32
}

func (s Sized) wireLength() int { return 2 + 4*len(s.Values) }

func (s Sized) appendWire(dst []byte) []byte {
	length := s.wireLength()
	if length > maxOptionLength {
		panic(fmt.Sprintf("tcp: option kind %d is %d bytes, more than its length field can describe", s.Kind, length))
	}
	dst = append(dst, s.Kind, byte(length))
	for _, v := range s.Values {
		dst = binary.BigEndian.AppendUint32(dst, v)
	}
	return dst
}

func (s Sized) equalOption(other Option) bool {
	o, ok := other.(Sized)
	if !ok || s.Kind != o.Kind || len(s.Values) != len(o.Values) {
		return false
	}
	for i := range s.Values {
		if s.Values[i] != o.Values[i] {
			return false
		}
	}
	return true
}

// Opaque is a kind, length, value option whose payload the codec carries
// without interpreting. Unrecognized kinds decode to it, and it also covers
// well known options whose payloads are not word shaped, such as MSS.
type Opaque struct {
	Kind uint8
	Data []byte
}

func (o Opaque) wireLength() int { return 2 + len(o.Data) }

func (o Opaque) appendWire(dst []byte) []byte {
	length := o.wireLength()
	if length > maxOptionLength {
		panic(fmt.Sprintf("tcp: option kind %d is %d bytes, more than its length field can describe", o.Kind, length))
	}
	dst = append(dst, o.Kind, byte(length))
	return append(dst, o.Data...)
}

func (o Opaque) equalOption(other Option) bool {
	t, ok := other.(Opaque)
	if !ok || o.Kind != t.Kind || len(o.Data) != len(t.Data) {
		return false
	}
	for i := range o.Data {
		if o.Data[i] != t.Data[i] {
			return false
		}
	}
	return true
}

// Timestamps builds the RFC 7323 timestamps option from a timestamp value
// and an echo reply.
func Timestamps(tsVal, tsEcr uint32) Sized {
	return Sized{Kind: OptionKindTimestamps, Values: []uint32{tsVal, tsEcr}}
}

// MaxSegmentSize builds the MSS option advertised in SYN segments.
func MaxSegmentSize(mss uint16) Opaque {
	return Opaque{Kind: OptionKindMSS, Data: binary.BigEndian.AppendUint16(nil, mss)}
}

// WindowScale builds the RFC 7323 window scale option.
func WindowScale(shift uint8) Opaque {
	return Opaque{Kind: OptionKindWindowScale, Data: []byte{shift}}
}

// SACKPermitted builds the RFC 2018 SACK permitted option.
func SACKPermitted() Opaque {
	return Opaque{Kind: OptionKindSACKPermitted}
}

// Options is the ordered options list of a segment.
type Options []Option

// EncodedLength returns the size of the encoded list in bytes, padding
// included, which is always a multiple of four.
func (o Options) EncodedLength() int {
	n := 0
	for _, opt := range o {
		n += opt.wireLength()
	}
	return (n + 3) &^ 3
}

// Encode serializes the list and pads it with zero bytes, which read back
// as end of list markers, until its length is a multiple of four.
func (o Options) Encode() []byte {
	b := make([]byte, 0, o.EncodedLength())
	for _, opt := range o {
		b = opt.appendWire(b)
	}
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}

// Equal reports whether both lists hold the same options in the same order.
func (o Options) Equal(other Options) bool {
	if len(o) != len(other) {
		return false
	}
	for i := range o {
		if !o[i].equalOption(other[i]) {
			return false
		}
	}
	return true
}

// validate rejects lists that cannot be encoded into a header: an oversize
// single option, or a list longer than the data offset field can express.
func (o Options) validate() error {
	for _, opt := range o {
		if opt.wireLength() > maxOptionLength {
			return fmt.Errorf("%w: option longer than its length field can describe", ErrArgument)
		}
	}
	if n := o.EncodedLength(); n > maxOptionsLength {
		return fmt.Errorf("%w: options occupy %d bytes, limit is %d", ErrArgument, n, maxOptionsLength)
	}
	return nil
}

// clone returns a deep copy of the list.
func (o Options) clone() Options {
	if o == nil {
		return nil
	}
	c := make(Options, len(o))
	for i, opt := range o {
		switch t := opt.(type) {
		case Sized:
			c[i] = Sized{Kind: t.Kind, Values: append([]uint32(nil), t.Values...)}
		case Opaque:
			c[i] = Opaque{Kind: t.Kind, Data: append([]byte(nil), t.Data...)}
		default:
			c[i] = opt
		}
	}
	return c
}

// ParseOptions decodes the options field of a segment. An end of list
// marker is kept in the returned list and stops the scan, leaving the rest
// of the field as padding. Kinds the codec does not interpret are preserved
// opaquely, payload bytes copied out of b.
func ParseOptions(b []byte) (Options, error) {
	var opts Options
	for i := 0; i < len(b); {
		switch kind := b[i]; kind {
		case OptionKindEndOfList:
			return append(opts, EndOfList{}), nil
		case OptionKindNoOp:
			opts = append(opts, NoOp{})
			i++
		default:
			if i+1 >= len(b) {
				return nil, fmt.Errorf("%w: option kind %d truncated before its length byte", ErrOptions, kind)
			}
			length := int(b[i+1])
			if length < 2 {
				return nil, fmt.Errorf("%w: option kind %d declares length %d, minimum is 2", ErrOptions, kind, length)
			}
			if i+length > len(b) {
				return nil, fmt.Errorf("%w: option kind %d length %d overruns the options field", ErrOptions, kind, length)
			}
			data := b[i+2 : i+length]
			if kind == OptionKindTimestamps && length == 10 {
				opts = append(opts, Timestamps(
					binary.BigEndian.Uint32(data[0:4]),
					binary.BigEndian.Uint32(data[4:8]),
				))
			} else {
				opts = append(opts, Opaque{Kind: kind, Data: append([]byte(nil), data...)})
			}
			i += length
		}
	}
	return opts, nil
}
