// Package checksum implements the internet checksum of RFC 1071 as used by
// the IPv4 and TCP codecs.
package checksum

// Partial computes the 16-bit one's complement sum of buf folded into a
// single word, without the final bit inversion. The initial argument seeds
// the accumulator so sums may be chained across several byte ranges, for
// example a pseudo-header followed by a header and a payload. Because the
// sum is word based, only the last chained range may have odd length; an
// odd trailing byte is padded with a zero low byte.
func Partial(buf []byte, initial uint16) uint16 {
	sum := uint32(initial)

	n := len(buf)
	if n%2 != 0 {
		n--
		sum += uint32(buf[n]) << 8
	}
	for i := 0; i < n; i += 2 {
		sum += uint32(buf[i])<<8 | uint32(buf[i+1])
	}

	// Fold the carries back in until the sum fits in 16 bits. A single
	// fold can itself carry, so loop rather than folding once.
	for sum>>16 != 0 {
		sum = sum&0xffff + sum>>16
	}
	return uint16(sum)
}

// Combine folds two partial sums into one, with end-around carry. It is
// equivalent to summing the underlying byte ranges in one pass, provided
// the first range has even length.
func Combine(a, b uint16) uint16 {
	sum := uint32(a) + uint32(b)
	for sum>>16 != 0 {
		sum = sum&0xffff + sum>>16
	}
	return uint16(sum)
}

// Checksum returns the internet checksum of buf: the bitwise complement of
// the one's complement word sum. A receiver summing a buffer that embeds a
// valid checksum obtains 0xffff.
func Checksum(buf []byte) uint16 {
	return ^Partial(buf, 0)
}
