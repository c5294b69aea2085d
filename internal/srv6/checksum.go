package srv6

import "encoding/binary"

// ChecksumDelta is the one's complement difference between the old and new
// contents of a rewritten field: the sum of ~old and new, word by word
// (RFC 1624, eqn. 3). It is independent of the checksum it is applied to,
// so one delta serves both the IPv4 header and the transport checksum.
type ChecksumDelta uint32

// AddressDelta computes the delta for replacing the 32-bit value old by updated.
func AddressDelta(old, updated uint32) ChecksumDelta {
	var d uint32
	d += uint32(^uint16(old >> 16))
	d += uint32(^uint16(old))
	d += updated >> 16
	d += updated & 0xffff
	return ChecksumDelta(d)
}

// Apply rewrites the big-endian checksum stored in field[0:2] so that it
// covers the new content: HC' = ~(~HC + delta).
func (d ChecksumDelta) Apply(field []byte) {
	sum := uint32(^binary.BigEndian.Uint16(field)) + uint32(d)
	binary.BigEndian.PutUint16(field, ^foldChecksum(sum))
}

// AdjustChecksums applies the delta of old -> updated to every checksum field.
func AdjustChecksums(old, updated uint32, fields ...[]byte) {
	d := AddressDelta(old, updated)
	for _, f := range fields {
		d.Apply(f)
	}
}

// foldChecksum folds the carries out of bit 16 back into the low word.
func foldChecksum(sum uint32) uint16 {
	for sum > 0xffff {
		sum = (sum >> 16) + (sum & 0xffff)
	}
	return uint16(sum)
}
