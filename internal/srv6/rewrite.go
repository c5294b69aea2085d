package srv6

import (
	"encoding/binary"

	"github.com/google/gopacket/layers"

	"firestige.xyz/srv6nat/internal/core"
)

const (
	ipv4HeaderMinLen = 20

	ipv4ChecksumOffset = 10
	ipv4SrcOffset      = 12
	ipv4DstOffset      = 16

	tcpChecksumOffset = 16
	udpChecksumOffset = 6
)

// Direction tells which inner address a translation rewrote.
type Direction uint8

const (
	DirectionNone Direction = iota
	// DirectionEgress rewrites the source from the "from" to the "to" prefix.
	DirectionEgress
	// DirectionIngress rewrites the destination from the "to" back to the "from" prefix.
	DirectionIngress
)

func (d Direction) String() string {
	switch d {
	case DirectionEgress:
		return "egress"
	case DirectionIngress:
		return "ingress"
	default:
		return "none"
	}
}

// RewriteInner translates the IPv4 header at the start of pkt against rec.
// The source is tried first, then the destination. On success the IPv4
// header checksum and, for TCP and UDP, the transport checksum are
// adjusted incrementally. Nothing is written when an error is returned.
func RewriteInner(pkt []byte, rec Record) (Direction, error) {
	if len(pkt) < ipv4HeaderMinLen {
		return DirectionNone, core.ErrPacketTooShort
	}
	if pkt[0]>>4 != 4 {
		return DirectionNone, core.ErrNotIPinIP
	}
	headerLen := int(pkt[0]&0x0f) * 4
	if headerLen < ipv4HeaderMinLen || len(pkt) < headerLen {
		return DirectionNone, core.ErrPacketTooShort
	}

	src := binary.BigEndian.Uint32(pkt[ipv4SrcOffset:])
	dst := binary.BigEndian.Uint32(pkt[ipv4DstOffset:])

	var (
		dir          Direction
		field        []byte
		old, updated uint32
	)
	switch {
	case src&rec.Mask == rec.From:
		dir, field, old = DirectionEgress, pkt[ipv4SrcOffset:ipv4SrcOffset+4], src
		updated = src&^rec.Mask | rec.To
	case dst&rec.Mask == rec.To:
		dir, field, old = DirectionIngress, pkt[ipv4DstOffset:ipv4DstOffset+4], dst
		updated = dst&^rec.Mask | rec.From
	default:
		return DirectionNone, core.ErrNoPrefixMatch
	}

	l4, err := transportChecksum(pkt, headerLen)
	if err != nil {
		return DirectionNone, err
	}

	binary.BigEndian.PutUint32(field, updated)
	sums := [][]byte{pkt[ipv4ChecksumOffset:]}
	if l4 != nil {
		sums = append(sums, l4)
	}
	AdjustChecksums(old, updated, sums...)
	// A zero UDP checksum means none was sent (RFC 768).
	if l4 != nil && layers.IPProtocol(pkt[9]) == layers.IPProtocolUDP && binary.BigEndian.Uint16(l4) == 0 {
		binary.BigEndian.PutUint16(l4, 0xffff)
	}
	return dir, nil
}

// transportChecksum returns the TCP/UDP checksum field covering the
// addresses, or nil when there is none to adjust: other protocols,
// non-first fragments and UDP datagrams sent without a checksum.
func transportChecksum(pkt []byte, headerLen int) ([]byte, error) {
	if binary.BigEndian.Uint16(pkt[6:8])&0x1fff != 0 {
		return nil, nil
	}

	var off int
	switch layers.IPProtocol(pkt[9]) {
	case layers.IPProtocolTCP:
		off = headerLen + tcpChecksumOffset
	case layers.IPProtocolUDP:
		off = headerLen + udpChecksumOffset
	default:
		return nil, nil
	}
	if len(pkt) < off+2 {
		return nil, core.ErrPacketTooShort
	}

	field := pkt[off : off+2]
	if layers.IPProtocol(pkt[9]) == layers.IPProtocolUDP && binary.BigEndian.Uint16(field) == 0 {
		return nil, nil
	}
	return field, nil
}
