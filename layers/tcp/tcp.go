// Package tcp implements a byte exact TCP segment codec: fixed header,
// options with their alignment padding, and the checksum over the pseudo
// header supplied by the network layer beneath the segment.
package tcp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/FreibergVlad/port-scanner/checksum"
	"github.com/FreibergVlad/port-scanner/layers"
)

const (
	// HeaderLength is the length of the fixed header, before options.
	HeaderLength = 20

	// ProtocolNumber identifies TCP to the network layer.
	ProtocolNumber uint8 = 6

	minDataOffset = 5
	maxDataOffset = 15

	// maxOptionsLength is the room left for options by the 4 bit data
	// offset field.
	maxOptionsLength = (maxDataOffset - minDataOffset) * 4

	maxPort = 65535
)

// Byte offsets of the fixed header fields.
const (
	sourcePortOffset      = 0
	destinationPortOffset = 2
	sequenceNumberOffset  = 4
	ackNumberOffset       = 8
	offsetFlagsOffset     = 12
	windowSizeOffset      = 14
	checksumFieldOffset   = 16
	urgentPointerOffset   = 18
)

var (
	ErrPortRange      = errors.New("tcp: port outside the range 0 to 65535")
	ErrArgument       = errors.New("tcp: invalid segment field")
	ErrHeader         = errors.New("tcp: malformed header")
	ErrOptions        = errors.New("tcp: malformed options")
	ErrChecksum       = errors.New("tcp: checksum mismatch")
	ErrNoNetworkLayer = errors.New("tcp: no network layer to build the pseudo header from")
)

// Fields describes a segment to construct. Ports are ints so that out of
// range values reach validation instead of being silently truncated.
type Fields struct {
	SourcePort      int
	DestinationPort int
	SequenceNumber  uint32
	AckNumber       uint32
	Flags           ControlBits
	WindowSize      uint16
	UrgentPointer   uint16
	Options         Options
	Payload         []byte
}

// Packet is a single TCP segment. Once constructed it is treated as a
// value: operations never mutate it and repeated serializations yield
// identical bytes. The packet takes ownership of the options and payload
// passed in; callers must not mutate them afterwards.
type Packet struct {
	layers.Base

	sourcePort      uint16
	destinationPort uint16
	sequenceNumber  uint32
	ackNumber       uint32
	flags           ControlBits
	windowSize      uint16
	urgentPointer   uint16
	options         Options
	payload         []byte
}

// New builds a segment from f, validating everything that can be checked
// without a network layer: port ranges and encodability of the options.
func New(f Fields) (*Packet, error) {
	if f.SourcePort < 0 || f.SourcePort > maxPort {
		return nil, fmt.Errorf("%w: source port %d", ErrPortRange, f.SourcePort)
	}
	if f.DestinationPort < 0 || f.DestinationPort > maxPort {
		return nil, fmt.Errorf("%w: destination port %d", ErrPortRange, f.DestinationPort)
	}
	if err := f.Options.validate(); err != nil {
		return nil, err
	}
	return &Packet{
		sourcePort:      uint16(f.SourcePort),
		destinationPort: uint16(f.DestinationPort),
		sequenceNumber:  f.SequenceNumber,
		ackNumber:       f.AckNumber,
		flags:           f.Flags,
		windowSize:      f.WindowSize,
		urgentPointer:   f.UrgentPointer,
		options:         f.Options,
		payload:         f.Payload,
	}, nil
}

func (p *Packet) SourcePort() uint16      { return p.sourcePort }
func (p *Packet) DestinationPort() uint16 { return p.destinationPort }
func (p *Packet) SequenceNumber() uint32  { return p.sequenceNumber }
func (p *Packet) AckNumber() uint32       { return p.ackNumber }
func (p *Packet) Flags() ControlBits      { return p.flags }
func (p *Packet) WindowSize() uint16      { return p.windowSize }
func (p *Packet) UrgentPointer() uint16   { return p.urgentPointer }
func (p *Packet) Options() Options        { return p.options }

// Payload returns the bytes carried above this layer.
func (p *Packet) Payload() []byte {
	return p.payload
}

// ToBytes serializes the segment. The network layer beneath it supplies the
// pseudo header material for the checksum and polices the segment length.
func (p *Packet) ToBytes() ([]byte, error) {
	network, ok := p.Underlying().(layers.Network)
	if !ok {
		return nil, ErrNoNetworkLayer
	}

	options := p.options.Encode()
	if len(options)%4 != 0 {
		panic("tcp: options encoder broke 32 bit alignment")
	}
	dataOffset := minDataOffset + len(options)/4

	segmentLength := dataOffset*4 + len(p.payload)
	if err := network.CheckSegmentLength(segmentLength); err != nil {
		return nil, err
	}

	header := make([]byte, HeaderLength, segmentLength)
	binary.BigEndian.PutUint16(header[sourcePortOffset:], p.sourcePort)
	binary.BigEndian.PutUint16(header[destinationPortOffset:], p.destinationPort)
	binary.BigEndian.PutUint32(header[sequenceNumberOffset:], p.sequenceNumber)
	binary.BigEndian.PutUint32(header[ackNumberOffset:], p.ackNumber)
	binary.BigEndian.PutUint16(header[offsetFlagsOffset:], uint16(dataOffset)<<12|p.flags.Bits())
	binary.BigEndian.PutUint16(header[windowSizeOffset:], p.windowSize)
	binary.BigEndian.PutUint16(header[urgentPointerOffset:], p.urgentPointer)

	// The sum is chained over pseudo header, header with a zeroed
	// checksum field, options, and payload. Every range before the
	// payload has even length, so chaining equals a single pass.
	sum := checksum.Partial(pseudoHeader(network, segmentLength), 0)
	sum = checksum.Partial(header, sum)
	sum = checksum.Partial(options, sum)
	sum = checksum.Partial(p.payload, sum)

	// Unlike UDP, a zero checksum is transmitted as is.
	binary.BigEndian.PutUint16(header[checksumFieldOffset:], ^sum)

	segment := append(header, options...)
	return append(segment, p.payload...), nil
}

// FromBytes parses a segment. The returned packet has no network layer
// attached, and the checksum is deliberately not verified, since only the
// caller knows the addresses the segment traveled between; VerifyChecksum
// covers that separately. Payload and option bytes are copied, so b may be
// reused afterwards.
func FromBytes(b []byte) (*Packet, error) {
	if len(b) < HeaderLength {
		return nil, fmt.Errorf("%w: %d bytes is shorter than a header", ErrHeader, len(b))
	}

	offsetFlags := binary.BigEndian.Uint16(b[offsetFlagsOffset:])
	if reserved := offsetFlags >> 9 & 0x7; reserved != 0 {
		return nil, fmt.Errorf("%w: reserved bits %#03b are set", ErrHeader, reserved)
	}
	dataOffset := int(offsetFlags >> 12)
	if dataOffset < minDataOffset {
		return nil, fmt.Errorf("%w: data offset %d below minimum %d", ErrHeader, dataOffset, minDataOffset)
	}
	optionsLength := (dataOffset - minDataOffset) * 4
	if HeaderLength+optionsLength > len(b) {
		return nil, fmt.Errorf("%w: data offset %d points past the %d byte segment", ErrHeader, dataOffset, len(b))
	}

	options, err := ParseOptions(b[HeaderLength : HeaderLength+optionsLength])
	if err != nil {
		return nil, err
	}

	return &Packet{
		sourcePort:      binary.BigEndian.Uint16(b[sourcePortOffset:]),
		destinationPort: binary.BigEndian.Uint16(b[destinationPortOffset:]),
		sequenceNumber:  binary.BigEndian.Uint32(b[sequenceNumberOffset:]),
		ackNumber:       binary.BigEndian.Uint32(b[ackNumberOffset:]),
		flags:           ControlBitsFromInt(offsetFlags),
		windowSize:      binary.BigEndian.Uint16(b[windowSizeOffset:]),
		urgentPointer:   binary.BigEndian.Uint16(b[urgentPointerOffset:]),
		options:         options,
		payload:         append([]byte(nil), b[HeaderLength+optionsLength:]...),
	}, nil
}

// VerifyChecksum reports whether the checksum embedded in the raw segment
// is consistent with its bytes and the addressing material of network.
func VerifyChecksum(segment []byte, network layers.Network) error {
	if network == nil {
		return ErrNoNetworkLayer
	}
	if len(segment) < HeaderLength {
		return fmt.Errorf("%w: %d bytes is shorter than a header", ErrHeader, len(segment))
	}
	sum := checksum.Partial(pseudoHeader(network, len(segment)), 0)
	sum = checksum.Partial(segment, sum)
	if sum != 0xffff {
		return fmt.Errorf("%w: residual sum %#04x", ErrChecksum, sum)
	}
	return nil
}

// pseudoHeader synthesizes the checksum prefix from the network layer:
// source address, destination address, a zero byte, the transport protocol
// number, and the segment length. Address width follows the network layer,
// 12 bytes in total for IPv4.
func pseudoHeader(network layers.Network, segmentLength int) []byte {
	source := network.SourceAddressRaw()
	destination := network.DestinationAddressRaw()

	b := make([]byte, 0, len(source)+len(destination)+4)
	b = append(b, source...)
	b = append(b, destination...)
	b = append(b, 0, network.TransportProtocol())
	return binary.BigEndian.AppendUint16(b, uint16(segmentLength))
}

// Equal reports whether other is a TCP segment with the same fields,
// options, payload, and lower layer. Comparison is by value.
func (p *Packet) Equal(other layers.Layer) bool {
	o, ok := other.(*Packet)
	if !ok || o == nil {
		return false
	}
	if p.sourcePort != o.sourcePort || p.destinationPort != o.destinationPort ||
		p.sequenceNumber != o.sequenceNumber || p.ackNumber != o.ackNumber ||
		p.flags != o.flags || p.windowSize != o.windowSize ||
		p.urgentPointer != o.urgentPointer {
		return false
	}
	if !p.options.Equal(o.options) || !bytes.Equal(p.payload, o.payload) {
		return false
	}
	return equalUnderlying(p.Underlying(), o.Underlying())
}

func equalUnderlying(a, b layers.Layer) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(b)
}

// Clone returns a deep copy of the segment, lower layer included.
func (p *Packet) Clone() layers.Layer {
	c := *p
	c.payload = append([]byte(nil), p.payload...)
	c.options = p.options.clone()
	c.SetUnderlying(nil)
	if u := p.Underlying(); u != nil {
		c.SetUnderlying(u.Clone())
	}
	return &c
}

func (p *Packet) String() string {
	return fmt.Sprintf("TCP(src=%d, dst=%d, seq=%d, ack=%d, flags=(%s), win=%d, urg=%d, options=%dB, payload=%dB)",
		p.sourcePort, p.destinationPort, p.sequenceNumber, p.ackNumber,
		p.flags, p.windowSize, p.urgentPointer, p.options.EncodedLength(), len(p.payload))
}
