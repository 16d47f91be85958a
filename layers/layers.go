// Package layers defines the contracts shared by the protocol packet codecs.
// A packet of one layer may be stacked on a packet of the layer beneath it,
// and transport codecs consult the network layer beneath them for the
// addressing material their checksums cover.
package layers

import "errors"

// ErrSegmentLength is returned when a serialized transport segment violates
// the length bounds of the network medium carrying it.
var ErrSegmentLength = errors.New("layers: segment length out of bounds for medium")

// Layer is one protocol layer of a composed packet.
type Layer interface {
	// Payload returns the bytes carried above this layer.
	Payload() []byte

	// Clone returns a deep copy sharing no mutable state with the
	// receiver, including any attached lower layer.
	Clone() Layer

	// Equal reports whether other is a layer of the same type carrying
	// the same field values, payload, and lower layer. Comparison is by
	// value, never by identity.
	Equal(other Layer) bool
}

// Network is implemented by layers able to carry a transport segment. It
// supplies the raw addressing material a transport checksum pseudo-header
// is built from, and polices the segment sizes the medium accepts.
type Network interface {
	Layer

	// SourceAddressRaw returns the source address in network byte order.
	SourceAddressRaw() []byte

	// DestinationAddressRaw returns the destination address in network
	// byte order.
	DestinationAddressRaw() []byte

	// TransportProtocol returns the protocol number identifying the
	// transport carried by this layer.
	TransportProtocol() uint8

	// CheckSegmentLength returns ErrSegmentLength if a transport segment
	// of n bytes cannot be carried by this medium.
	CheckSegmentLength(n int) error
}

// Base links a layer to the one beneath it. Codecs embed it to gain the
// Underlying accessors. The link is one way and non owning: attaching an
// upper layer to a lower one never mutates the lower layer, so one network
// packet may safely sit under several transport packets in turn.
type Base struct {
	underlying Layer
}

// Underlying returns the layer beneath this one, or nil if none is attached.
func (b *Base) Underlying() Layer {
	return b.underlying
}

// SetUnderlying attaches l beneath this layer, replacing any previous
// attachment. Passing nil detaches.
func (b *Base) SetUnderlying(l Layer) {
	b.underlying = l
}
