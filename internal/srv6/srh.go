package srv6

import (
	"github.com/google/gopacket/layers"

	"firestige.xyz/srv6nat/internal/core"
)

const (
	ipv6HeaderLen    = 40
	ipv6NextHdrOff   = 6
	ipv6DstOffset    = 24
	ipv6AddrLen      = 16
	extHeaderUnit    = 8
	fragmentHdrLen   = 8
	srhFixedLen      = 8
	routingTypeSRv6  = 4
	srhSegsLeftOff   = 3
	srhLastEntryOff  = 4
	srhRoutingTypOff = 2
)

// SRH is a view over a Segment Routing Header (RFC 8754) inside a packet
// buffer, sized to the header's declared length.
type SRH []byte

// NextHeader is the protocol of the payload that follows the SRH.
func (h SRH) NextHeader() layers.IPProtocol { return layers.IPProtocol(h[0]) }

// Len is the header length in bytes: 8 * (Hdr Ext Len + 1).
func (h SRH) Len() int { return extLen(h[1]) }

// SegmentsLeft returns the index of the active segment plus one.
func (h SRH) SegmentsLeft() uint8 { return h[srhSegsLeftOff] }

// SetSegmentsLeft overwrites the Segments Left field.
func (h SRH) SetSegmentsLeft(v uint8) { h[srhSegsLeftOff] = v }

// LastEntry is the index of the last element of the segment list.
func (h SRH) LastEntry() uint8 { return h[srhLastEntryOff] }

// Segment returns the i-th 16-byte entry of the segment list, or false if
// the entry lies beyond the header.
func (h SRH) Segment(i int) ([]byte, bool) {
	off := srhFixedLen + i*ipv6AddrLen
	if i < 0 || off+ipv6AddrLen > len(h) {
		return nil, false
	}
	return h[off : off+ipv6AddrLen], true
}

// FindSRH walks the extension header chain of the IPv6 packet at the start
// of pkt and returns the SRH view and the offset just past it.
func FindSRH(pkt []byte) (SRH, int, error) {
	if len(pkt) < ipv6HeaderLen {
		return nil, 0, core.ErrPacketTooShort
	}
	if pkt[0]>>4 != 6 {
		return nil, 0, core.ErrNotIPv6
	}

	next := layers.IPProtocol(pkt[ipv6NextHdrOff])
	off := ipv6HeaderLen
	for {
		if len(pkt) < off+2 {
			if isExtHeader(next) {
				return nil, 0, core.ErrPacketTooShort
			}
			return nil, 0, core.ErrNoSRH
		}

		var size int
		switch next {
		case layers.IPProtocolIPv6HopByHop, layers.IPProtocolIPv6Destination:
			size = extLen(pkt[off+1])
		case layers.IPProtocolIPv6Fragment:
			size = fragmentHdrLen
		case layers.IPProtocolIPv6Routing:
			if len(pkt) < off+srhFixedLen {
				return nil, 0, core.ErrPacketTooShort
			}
			if pkt[off+srhRoutingTypOff] != routingTypeSRv6 {
				return nil, 0, core.ErrNoSRH
			}
			size = extLen(pkt[off+1])
			if len(pkt) < off+size {
				return nil, 0, core.ErrPacketTooShort
			}
			return SRH(pkt[off : off+size]), off + size, nil
		default:
			return nil, 0, core.ErrNoSRH
		}

		next = layers.IPProtocol(pkt[off])
		off += size
	}
}

func isExtHeader(p layers.IPProtocol) bool {
	switch p {
	case layers.IPProtocolIPv6HopByHop, layers.IPProtocolIPv6Destination,
		layers.IPProtocolIPv6Fragment, layers.IPProtocolIPv6Routing:
		return true
	}
	return false
}

func extLen(hdrExtLen byte) int {
	return extHeaderUnit * (int(hdrExtLen) + 1)
}
