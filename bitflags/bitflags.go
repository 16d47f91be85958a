// Package bitflags provides a small container for named single-bit flags
// packed into one unsigned integer. It backs the flag fields of the packet
// codecs, such as the nine TCP control bits and the IPv4 fragmentation bits.
package bitflags

// Unsigned is the set of integer types a flag container may be backed by.
type Unsigned interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uint
}

// Set holds boolean flags packed into a single integer of type T. Each flag
// is identified by a mask with a single bit set; callers may also pass a
// union of such masks to address several flags at once. The zero value has
// every flag cleared.
type Set[T Unsigned] struct {
	bits T
}

// FromBits wraps a raw integer in a Set without interpreting it.
func FromBits[T Unsigned](bits T) Set[T] {
	return Set[T]{bits: bits}
}

// Set turns the flags selected by mask on or off. Only the masked bits are
// touched; every other bit keeps its previous state.
func (s *Set[T]) Set(mask T, value bool) {
	if value {
		s.bits |= mask
	} else {
		s.bits &^= mask
	}
}

// IsSet reports whether any flag selected by mask is on.
func (s Set[T]) IsSet(mask T) bool {
	return s.bits&mask != 0
}

// Bits returns the packed integer holding all flags.
func (s Set[T]) Bits() T {
	return s.bits
}
