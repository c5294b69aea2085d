// Package srv6 implements the End.NAT endpoint behavior: stateless /16
// prefix translation of the IPv4 packet carried behind a Segment Routing
// Header, incremental checksum repair and SRH segment advancement.
//
// Everything in this package works in place on a byte view of a single
// packet and never allocates on the per-packet path.
package srv6

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strings"

	"firestige.xyz/srv6nat/internal/core"
)

// PrefixMask is the fixed /16 network mask shared by every record.
const PrefixMask uint32 = 0xFFFF0000

// Keyword introduces an End.NAT configuration string.
const Keyword = "end.nat"

// Record is the per-segment translation configuration. It is created once
// and never mutated; From and To only carry the bits selected by Mask.
type Record struct {
	From uint32
	To   uint32
	Mask uint32
}

// NewRecord builds a record from two IPv4 addresses, dropping their host bits.
func NewRecord(from, to netip.Addr) (Record, error) {
	if !from.Is4() || !to.Is4() {
		return Record{}, fmt.Errorf("%w: end.nat prefixes must be IPv4 (from %s, to %s)", core.ErrParse, from, to)
	}
	return Record{
		From: addrToUint32(from) & PrefixMask,
		To:   addrToUint32(to) & PrefixMask,
		Mask: PrefixMask,
	}, nil
}

// ParseRecord accepts exactly "end.nat from <ipv4> to <ipv4>".
func ParseRecord(s string) (Record, error) {
	fields := strings.Fields(s)
	if len(fields) != 5 || fields[0] != Keyword || fields[1] != "from" || fields[3] != "to" {
		return Record{}, fmt.Errorf("%w: expected %q, got %q", core.ErrParse, Keyword+" from <ip4_address> to <ip4_address>", s)
	}
	from, err := netip.ParseAddr(fields[2])
	if err != nil {
		return Record{}, fmt.Errorf("%w: from address: %v", core.ErrParse, err)
	}
	to, err := netip.ParseAddr(fields[4])
	if err != nil {
		return Record{}, fmt.Errorf("%w: to address: %v", core.ErrParse, err)
	}
	return NewRecord(from, to)
}

// FromAddr returns the stored "from" prefix.
func (r Record) FromAddr() netip.Addr { return uint32ToAddr(r.From) }

// ToAddr returns the stored "to" prefix.
func (r Record) ToAddr() netip.Addr { return uint32ToAddr(r.To) }

// MaskAddr returns the mask in dotted form.
func (r Record) MaskAddr() netip.Addr { return uint32ToAddr(r.Mask) }

// String renders the record the way localsid listings show it.
func (r Record) String() string {
	return fmt.Sprintf("From: %s\n\tTo: %s\n\tMask: %s", r.FromAddr(), r.ToAddr(), r.MaskAddr())
}

// Spec renders the configuration string that parses back into r.
func (r Record) Spec() string {
	return fmt.Sprintf("%s from %s to %s", Keyword, r.FromAddr(), r.ToAddr())
}

func addrToUint32(a netip.Addr) uint32 {
	b := a.As4()
	return binary.BigEndian.Uint32(b[:])
}

func uint32ToAddr(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}
