// Package srv6test builds SRv6 packets for tests: an outer IPv6 header, an
// optional hop-by-hop header, a Segment Routing Header and an inner IPv4
// packet serialized by gopacket with valid checksums.
package srv6test

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Inner describes the IPv4 packet carried behind the SRH.
type Inner struct {
	Src, Dst         netip.Addr
	Protocol         layers.IPProtocol // TCP, UDP or anything else (sent as raw payload)
	SrcPort, DstPort uint16
	ID               uint16
	TTL              uint8
	// NOPOptions appends that many IPv4 NOP options (a multiple of 4 keeps
	// the header unpadded).
	NOPOptions int
	Payload    []byte
}

// BuildInner serializes in with lengths and checksums computed.
func BuildInner(in Inner) ([]byte, error) {
	ttl := in.TTL
	if ttl == 0 {
		ttl = 64
	}
	ip4 := &layers.IPv4{
		Version:  4,
		TTL:      ttl,
		Id:       in.ID,
		Protocol: in.Protocol,
		SrcIP:    net.IP(in.Src.AsSlice()),
		DstIP:    net.IP(in.Dst.AsSlice()),
	}
	for i := 0; i < in.NOPOptions; i++ {
		ip4.Options = append(ip4.Options, layers.IPv4Option{OptionType: 1, OptionLength: 1})
	}

	ls := []gopacket.SerializableLayer{ip4}
	switch in.Protocol {
	case layers.IPProtocolTCP:
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(in.SrcPort),
			DstPort: layers.TCPPort(in.DstPort),
			Seq:     1000,
			Ack:     2000,
			ACK:     true,
			PSH:     true,
			Window:  65535,
		}
		if err := tcp.SetNetworkLayerForChecksum(ip4); err != nil {
			return nil, err
		}
		ls = append(ls, tcp)
	case layers.IPProtocolUDP:
		udp := &layers.UDP{
			SrcPort: layers.UDPPort(in.SrcPort),
			DstPort: layers.UDPPort(in.DstPort),
		}
		if err := udp.SetNetworkLayerForChecksum(ip4); err != nil {
			return nil, err
		}
		ls = append(ls, udp)
	}
	ls = append(ls, gopacket.Payload(in.Payload))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		return nil, fmt.Errorf("serialize inner packet: %w", err)
	}
	return buf.Bytes(), nil
}

// Outer describes the IPv6 envelope and SRH.
type Outer struct {
	Src, Dst netip.Addr
	// Segments in wire order: Segments[0] is the last segment of the path.
	Segments     []netip.Addr
	SegmentsLeft uint8
	// NextHeader after the SRH; zero means IPv4-in-IPv6.
	NextHeader layers.IPProtocol
	HopByHop   bool
}

// Build wraps payload in the IPv6 header and SRH described by out.
func Build(out Outer, payload []byte) ([]byte, error) {
	next := out.NextHeader
	if next == 0 {
		next = layers.IPProtocolIPv4
	}

	srh := make([]byte, 8+16*len(out.Segments))
	srh[0] = byte(next)
	srh[1] = byte(len(out.Segments) * 2)
	srh[2] = 4
	srh[3] = out.SegmentsLeft
	if len(out.Segments) > 0 {
		srh[4] = byte(len(out.Segments) - 1)
	}
	for i, s := range out.Segments {
		b := s.As16()
		copy(srh[8+16*i:], b[:])
	}

	first := layers.IPProtocolIPv6Routing
	var ext []byte
	if out.HopByHop {
		// PadN filling the 8-byte hop-by-hop header
		ext = []byte{byte(layers.IPProtocolIPv6Routing), 0, 1, 4, 0, 0, 0, 0}
		first = layers.IPProtocolIPv6HopByHop
	}
	ext = append(ext, srh...)
	ext = append(ext, payload...)

	ip6 := &layers.IPv6{
		Version:    6,
		NextHeader: first,
		HopLimit:   64,
		SrcIP:      net.IP(out.Src.AsSlice()),
		DstIP:      net.IP(out.Dst.AsSlice()),
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, ip6, gopacket.Payload(ext)); err != nil {
		return nil, fmt.Errorf("serialize outer packet: %w", err)
	}
	return buf.Bytes(), nil
}

// InnerOffset returns the offset of the inner packet in a packet built by Build.
func InnerOffset(out Outer) int {
	off := 40 + 8 + 16*len(out.Segments)
	if out.HopByHop {
		off += 8
	}
	return off
}

// Recompute decodes an IPv4 packet and serializes it again with every
// checksum computed from scratch, lengths untouched. It is the reference
// the incremental update is compared against.
func Recompute(inner []byte) ([]byte, error) {
	// Only the IPv4 and transport layers matter; application payloads that
	// fail to decode are carried as raw bytes.
	p := gopacket.NewPacket(inner, layers.LayerTypeIPv4, gopacket.Default)
	ip4, ok := p.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	if !ok {
		return nil, fmt.Errorf("decode inner packet: no IPv4 layer")
	}

	ls := []gopacket.SerializableLayer{ip4}
	switch {
	case p.Layer(layers.LayerTypeTCP) != nil:
		tcp := p.Layer(layers.LayerTypeTCP).(*layers.TCP)
		if err := tcp.SetNetworkLayerForChecksum(ip4); err != nil {
			return nil, err
		}
		ls = append(ls, tcp, gopacket.Payload(tcp.Payload))
	case p.Layer(layers.LayerTypeUDP) != nil:
		udp := p.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if err := udp.SetNetworkLayerForChecksum(ip4); err != nil {
			return nil, err
		}
		ls = append(ls, udp, gopacket.Payload(udp.Payload))
	default:
		ls = append(ls, gopacket.Payload(ip4.Payload))
	}

	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{ComputeChecksums: true}, ls...); err != nil {
		return nil, fmt.Errorf("reserialize inner packet: %w", err)
	}
	return buf.Bytes(), nil
}
