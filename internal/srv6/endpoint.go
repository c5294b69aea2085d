package srv6

import (
	"github.com/google/gopacket/layers"

	"firestige.xyz/srv6nat/internal/core"
)

// Outcome is the processing verdict for one packet.
type Outcome uint8

const (
	OutcomeInvalid Outcome = iota
	OutcomeValid
)

func (o Outcome) String() string {
	if o == OutcomeValid {
		return "valid"
	}
	return "invalid"
}

// Result reports what ProcessEndNAT did to a packet.
type Result struct {
	Outcome   Outcome
	Direction Direction
	// Advanced is set once Segments Left was decremented and the outer
	// destination rewritten.
	Advanced bool
	// Err is nil for a Valid outcome.
	Err error
}

// ProcessEndNAT runs the End.NAT behavior on pkt, which starts at the
// outer IPv6 header.
//
// The SRH must carry an IPv4 payload and have segments left, otherwise
// the packet is left untouched. The inner header is then translated and
// the SRH advanced to the next segment; advancement happens whether or
// not the translation matched.
func ProcessEndNAT(pkt []byte, rec Record) Result {
	srh, innerOff, err := FindSRH(pkt)
	if err != nil {
		return Result{Err: err}
	}
	if srh.NextHeader() != layers.IPProtocolIPv4 {
		return Result{Err: core.ErrNotIPinIP}
	}
	sl := srh.SegmentsLeft()
	if sl == 0 {
		return Result{Err: core.ErrNoSegmentsLeft}
	}
	next, ok := srh.Segment(int(sl) - 1)
	if !ok {
		return Result{Err: core.ErrPacketTooShort}
	}

	res := Result{Outcome: OutcomeValid}
	res.Direction, res.Err = RewriteInner(pkt[innerOff:], rec)
	if res.Err != nil {
		res.Outcome = OutcomeInvalid
	}

	srh.SetSegmentsLeft(sl - 1)
	copy(pkt[ipv6DstOffset:ipv6DstOffset+ipv6AddrLen], next)
	res.Advanced = true
	return res
}
