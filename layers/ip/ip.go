// Package ip implements an IPv4 header codec. It covers the fixed 20 byte
// header that raw sockets and the transport codecs need; header options are
// tolerated on decode but never produced.
package ip

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"

	"github.com/FreibergVlad/port-scanner/bitflags"
	"github.com/FreibergVlad/port-scanner/checksum"
	"github.com/FreibergVlad/port-scanner/layers"
)

const (
	// HeaderLength is the length of a header without options, the only
	// kind this codec emits.
	HeaderLength = 20

	// Version is the only IP version this codec handles.
	Version = 4

	maxTotalLength = 0xffff

	// MaxSegmentLength is the largest transport segment an IPv4 packet
	// can carry alongside its own header.
	MaxSegmentLength = maxTotalLength - HeaderLength

	// minSegmentLength is the shortest transport segment the medium is
	// asked to carry, the fixed TCP header.
	minSegmentLength = 20
)

// Protocol numbers of the transports carried above this layer.
const (
	ProtocolTCP uint8 = 6
	ProtocolUDP uint8 = 17
)

// Byte offsets of the header fields.
const (
	versionIHLOffset     = 0
	dscpECNOffset        = 1
	totalLengthOffset    = 2
	identificationOffset = 4
	flagsFragmentOffset  = 6
	ttlOffset            = 8
	protocolOffset       = 9
	checksumOffset       = 10
	sourceOffset         = 12
	destinationOffset    = 16
)

// Masks of the fragmentation control bits within the 16 bit flags and
// fragment offset field.
const (
	FlagDontFragment  uint16 = 0x4000
	FlagMoreFragments uint16 = 0x2000

	flagsMask          uint16 = 0xe000
	fragmentOffsetMask uint16 = 0x1fff
)

var (
	ErrAddress      = errors.New("ip: address is not IPv4")
	ErrArgument     = errors.New("ip: invalid header field")
	ErrHeader       = errors.New("ip: malformed header")
	ErrPacketLength = errors.New("ip: packet exceeds maximum total length")
	ErrChecksum     = errors.New("ip: header checksum mismatch")
)

// Fields describes a packet to construct.
type Fields struct {
	SourceAddress      net.IP
	DestinationAddress net.IP

	// TTL of 0 is replaced by 64.
	TTL uint8

	Identification uint16

	// Protocol of 0 is replaced by ProtocolTCP.
	Protocol uint8

	DSCPECN uint8

	DontFragment  bool
	MoreFragments bool

	// FragmentOffset is measured in 8 byte units and must fit in 13 bits.
	FragmentOffset uint16

	Payload []byte
}

// Packet is a single IPv4 packet. Once constructed it is treated as a value:
// operations on it never mutate it and repeated serializations yield
// identical bytes.
type Packet struct {
	layers.Base

	source         [4]byte
	destination    [4]byte
	dscpECN        uint8
	ttl            uint8
	identification uint16
	flags          bitflags.Set[uint16]
	fragmentOffset uint16
	protocol       uint8
	payload        []byte
}

// New builds a packet from f. Both addresses must be IPv4.
func New(f Fields) (*Packet, error) {
	source := f.SourceAddress.To4()
	if source == nil {
		return nil, fmt.Errorf("%w: source %v", ErrAddress, f.SourceAddress)
	}
	destination := f.DestinationAddress.To4()
	if destination == nil {
		return nil, fmt.Errorf("%w: destination %v", ErrAddress, f.DestinationAddress)
	}
	if f.FragmentOffset > fragmentOffsetMask {
		return nil, fmt.Errorf("%w: fragment offset %d does not fit in 13 bits", ErrArgument, f.FragmentOffset)
	}

	p := &Packet{
		dscpECN:        f.DSCPECN,
		ttl:            f.TTL,
		identification: f.Identification,
		fragmentOffset: f.FragmentOffset,
		protocol:       f.Protocol,
		payload:        f.Payload,
	}
	copy(p.source[:], source)
	copy(p.destination[:], destination)
	p.flags.Set(FlagDontFragment, f.DontFragment)
	p.flags.Set(FlagMoreFragments, f.MoreFragments)
	if p.ttl == 0 {
		p.ttl = 64
	}
	if p.protocol == 0 {
		p.protocol = ProtocolTCP
	}
	return p, nil
}

func (p *Packet) SourceAddress() net.IP {
	return net.IPv4(p.source[0], p.source[1], p.source[2], p.source[3])
}

func (p *Packet) DestinationAddress() net.IP {
	return net.IPv4(p.destination[0], p.destination[1], p.destination[2], p.destination[3])
}

// SourceAddressRaw returns the source address in network byte order.
func (p *Packet) SourceAddressRaw() []byte {
	a := p.source
	return a[:]
}

// DestinationAddressRaw returns the destination address in network byte order.
func (p *Packet) DestinationAddressRaw() []byte {
	a := p.destination
	return a[:]
}

// TransportProtocol returns the protocol number of the carried transport.
func (p *Packet) TransportProtocol() uint8 {
	return p.protocol
}

func (p *Packet) TTL() uint8             { return p.ttl }
func (p *Packet) Identification() uint16 { return p.identification }
func (p *Packet) DSCPECN() uint8         { return p.dscpECN }
func (p *Packet) DontFragment() bool     { return p.flags.IsSet(FlagDontFragment) }
func (p *Packet) MoreFragments() bool    { return p.flags.IsSet(FlagMoreFragments) }
func (p *Packet) FragmentOffset() uint16 { return p.fragmentOffset }

// Payload returns the bytes carried above this layer.
func (p *Packet) Payload() []byte {
	return p.payload
}

// CheckSegmentLength returns layers.ErrSegmentLength if a transport segment
// of n bytes cannot be carried by an IPv4 packet.
func (p *Packet) CheckSegmentLength(n int) error {
	if n < minSegmentLength || n > MaxSegmentLength {
		return fmt.Errorf("%w: %d bytes, carriable range is %d to %d",
			layers.ErrSegmentLength, n, minSegmentLength, MaxSegmentLength)
	}
	return nil
}

// PackHeader serializes the 20 byte header. The header checksum is computed
// over the header with a zeroed checksum field and spliced in.
func (p *Packet) PackHeader() ([]byte, error) {
	totalLength := HeaderLength + len(p.payload)
	if totalLength > maxTotalLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrPacketLength, totalLength)
	}

	h := make([]byte, HeaderLength)
	h[versionIHLOffset] = Version<<4 | HeaderLength/4
	h[dscpECNOffset] = p.dscpECN
	binary.BigEndian.PutUint16(h[totalLengthOffset:], uint16(totalLength))
	binary.BigEndian.PutUint16(h[identificationOffset:], p.identification)
	binary.BigEndian.PutUint16(h[flagsFragmentOffset:], p.flags.Bits()|p.fragmentOffset)
	h[ttlOffset] = p.ttl
	h[protocolOffset] = p.protocol
	copy(h[sourceOffset:], p.source[:])
	copy(h[destinationOffset:], p.destination[:])

	binary.BigEndian.PutUint16(h[checksumOffset:], checksum.Checksum(h))
	return h, nil
}

// ToBytes serializes the full packet, header followed by payload.
func (p *Packet) ToBytes() ([]byte, error) {
	h, err := p.PackHeader()
	if err != nil {
		return nil, err
	}
	return append(h, p.payload...), nil
}

// FromBytes parses an IPv4 packet. Header options are skipped and not
// retained, and bytes past the total length field, such as link layer
// padding, are ignored. The checksum is not verified here; call
// VerifyChecksum when that policy is wanted.
func FromBytes(b []byte) (*Packet, error) {
	if len(b) < HeaderLength {
		return nil, fmt.Errorf("%w: %d bytes is shorter than a header", ErrHeader, len(b))
	}
	if version := b[versionIHLOffset] >> 4; version != Version {
		return nil, fmt.Errorf("%w: version %d", ErrHeader, version)
	}
	headerLength := int(b[versionIHLOffset]&0x0f) * 4
	if headerLength < HeaderLength {
		return nil, fmt.Errorf("%w: header length %d below minimum", ErrHeader, headerLength)
	}
	if headerLength > len(b) {
		return nil, fmt.Errorf("%w: header length %d overruns packet", ErrHeader, headerLength)
	}
	totalLength := int(binary.BigEndian.Uint16(b[totalLengthOffset:]))
	if totalLength < headerLength {
		return nil, fmt.Errorf("%w: total length %d below header length %d", ErrHeader, totalLength, headerLength)
	}
	if totalLength > len(b) {
		return nil, fmt.Errorf("%w: total length %d overruns %d byte buffer", ErrHeader, totalLength, len(b))
	}

	flagsFragment := binary.BigEndian.Uint16(b[flagsFragmentOffset:])

	p := &Packet{
		dscpECN:        b[dscpECNOffset],
		ttl:            b[ttlOffset],
		identification: binary.BigEndian.Uint16(b[identificationOffset:]),
		flags:          bitflags.FromBits(flagsFragment & flagsMask),
		fragmentOffset: flagsFragment & fragmentOffsetMask,
		protocol:       b[protocolOffset],
		payload:        append([]byte(nil), b[headerLength:totalLength]...),
	}
	copy(p.source[:], b[sourceOffset:])
	copy(p.destination[:], b[destinationOffset:])
	return p, nil
}

// VerifyChecksum reports whether the checksum embedded in the raw header b
// is consistent with its bytes.
func VerifyChecksum(b []byte) error {
	if len(b) < HeaderLength {
		return fmt.Errorf("%w: %d bytes is shorter than a header", ErrHeader, len(b))
	}
	headerLength := int(b[versionIHLOffset]&0x0f) * 4
	if headerLength < HeaderLength || headerLength > len(b) {
		return fmt.Errorf("%w: header length %d", ErrHeader, headerLength)
	}
	if sum := checksum.Partial(b[:headerLength], 0); sum != 0xffff {
		return fmt.Errorf("%w: residual sum %#04x", ErrChecksum, sum)
	}
	return nil
}

// Equal reports whether other is an IPv4 packet with the same header fields,
// payload, and lower layer.
func (p *Packet) Equal(other layers.Layer) bool {
	o, ok := other.(*Packet)
	if !ok || o == nil {
		return false
	}
	if p.source != o.source || p.destination != o.destination ||
		p.dscpECN != o.dscpECN || p.ttl != o.ttl ||
		p.identification != o.identification || p.flags != o.flags ||
		p.fragmentOffset != o.fragmentOffset || p.protocol != o.protocol {
		return false
	}
	if len(p.payload) != len(o.payload) {
		return false
	}
	for i := range p.payload {
		if p.payload[i] != o.payload[i] {
			return false
		}
	}
	return equalUnderlying(p.Underlying(), o.Underlying())
}

func equalUnderlying(a, b layers.Layer) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(b)
}

// Clone returns a deep copy of the packet.
func (p *Packet) Clone() layers.Layer {
	c := *p
	c.payload = append([]byte(nil), p.payload...)
	c.SetUnderlying(nil)
	if u := p.Underlying(); u != nil {
		c.SetUnderlying(u.Clone())
	}
	return &c
}

func (p *Packet) String() string {
	return fmt.Sprintf("IPv4(src=%v, dst=%v, proto=%d, ttl=%d, id=%d, payload=%dB)",
		p.SourceAddress(), p.DestinationAddress(), p.protocol, p.ttl, p.identification, len(p.payload))
}
