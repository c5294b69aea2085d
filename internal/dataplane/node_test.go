package dataplane

import (
	"net/netip"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/ipv4"

	"firestige.xyz/srv6nat/internal/srv6"
	"firestige.xyz/srv6nat/internal/srv6/srv6test"
)

var (
	segA = netip.MustParseAddr("fc00:a::1")
	segB = netip.MustParseAddr("fc00:b::1")
	segC = netip.MustParseAddr("fc00:c::1")
	segD = netip.MustParseAddr("fc00:d::1")
)

type mapResolver map[uint32]srv6.Record

func (m mapResolver) Resolve(index uint32) (srv6.Record, bool) {
	r, ok := m[index]
	return r, ok
}

type collector struct {
	out map[Next][]*Packet
}

func newCollector() *collector { return &collector{out: make(map[Next][]*Packet)} }

func (c *collector) Enqueue(p *Packet, next Next) { c.out[next] = append(c.out[next], p) }

var outer = srv6test.Outer{
	Src:          netip.MustParseAddr("2001:db8::1"),
	Dst:          segD,
	Segments:     []netip.Addr{segA, segB, segC, segD},
	SegmentsLeft: 3,
}

func newPacket(t *testing.T, src, dst string, index uint32) *Packet {
	t.Helper()
	inner, err := srv6test.BuildInner(srv6test.Inner{
		Src:      netip.MustParseAddr(src),
		Dst:      netip.MustParseAddr(dst),
		Protocol: layers.IPProtocolTCP,
		SrcPort:  40000,
		DstPort:  443,
		Payload:  []byte("hello"),
	})
	require.NoError(t, err)
	pkt, err := srv6test.Build(outer, inner)
	require.NoError(t, err)
	return &Packet{Buffer: pkt, SegmentIndex: index}
}

func innerOf(p *Packet) []byte { return p.Data()[srv6test.InnerOffset(outer):] }

func innerHeader(t *testing.T, p *Packet) *ipv4.Header {
	t.Helper()
	h, err := ipv4.ParseHeader(innerOf(p))
	require.NoError(t, err)
	return h
}

func assertChecksumsValid(t *testing.T, p *Packet) {
	t.Helper()
	want, err := srv6test.Recompute(innerOf(p))
	require.NoError(t, err)
	assert.Equal(t, want, innerOf(p))
}

func newTestNode(t *testing.T, workers int, opts ...NodeOption) *Node {
	t.Helper()
	rec, err := srv6.ParseRecord("end.nat from 10.0.0.0 to 10.1.0.0")
	require.NoError(t, err)
	return NewNode(mapResolver{7: rec}, NewCounters(workers), opts...)
}

func TestNodeEgressTranslation(t *testing.T) {
	n := newTestNode(t, 1)
	p := newPacket(t, "10.0.5.7", "192.0.2.1", 7)
	q := newCollector()

	assert.Equal(t, 1, n.Process(0, Frame{p}, q))

	require.Len(t, q.out[NextIP6Lookup], 1)
	assert.Empty(t, q.out[NextErrorDrop])
	assert.Equal(t, NextIP6Lookup, p.Next)

	h := innerHeader(t, p)
	assert.Equal(t, "10.1.5.7", h.Src.String())
	assert.Equal(t, "192.0.2.1", h.Dst.String())
	assertChecksumsValid(t, p)

	assert.Equal(t, segC, netip.AddrFrom16([16]byte(p.Data()[24:40])))

	sc := n.Counters().Get(7)
	assert.Equal(t, Combined{Packets: 1, Bytes: uint64(len(p.Buffer))}, sc.Valid)
	assert.Zero(t, sc.Invalid)
	assert.Equal(t, uint64(1), n.Errors().Processed.Load())
	assert.Zero(t, n.Errors().NoSRH.Load())
}

func TestNodeIngressTranslation(t *testing.T) {
	n := newTestNode(t, 1)
	p := newPacket(t, "198.51.100.4", "10.1.9.2", 7)
	q := newCollector()

	n.Process(0, Frame{p}, q)

	require.Len(t, q.out[NextIP6Lookup], 1)
	h := innerHeader(t, p)
	assert.Equal(t, "198.51.100.4", h.Src.String())
	assert.Equal(t, "10.0.9.2", h.Dst.String())
	assertChecksumsValid(t, p)
	assert.Equal(t, uint64(1), n.Counters().Get(7).Valid.Packets)
}

func TestNodeRejectsUnmatched(t *testing.T) {
	n := newTestNode(t, 1)
	p := newPacket(t, "192.168.1.1", "8.8.8.8", 7)
	before := append([]byte(nil), innerOf(p)...)
	q := newCollector()

	n.Process(0, Frame{p}, q)

	require.Len(t, q.out[NextErrorDrop], 1)
	assert.Equal(t, NextErrorDrop, p.Next)
	assert.Equal(t, before, innerOf(p))
	// advancement happens regardless of the match
	assert.Equal(t, segC, netip.AddrFrom16([16]byte(p.Data()[24:40])))

	sc := n.Counters().Get(7)
	assert.Zero(t, sc.Valid)
	assert.Equal(t, Combined{Packets: 1, Bytes: uint64(len(p.Buffer))}, sc.Invalid)
	assert.Equal(t, uint64(1), n.Errors().NoSRH.Load())
}

func TestNodeUnknownSegment(t *testing.T) {
	n := newTestNode(t, 1)
	p := newPacket(t, "10.0.5.7", "192.0.2.1", 3)
	before := append([]byte(nil), p.Buffer...)
	q := newCollector()

	n.Process(0, Frame{p}, q)

	require.Len(t, q.out[NextErrorDrop], 1)
	assert.Equal(t, before, p.Buffer)
	assert.Empty(t, n.Counters().Snapshot())
	assert.Equal(t, uint64(1), n.Errors().NoSRH.Load())
}

func TestNodeMixedFrame(t *testing.T) {
	n := newTestNode(t, 2)
	bad := newPacket(t, "192.168.1.1", "8.8.8.8", 7)
	truncated := newPacket(t, "10.0.5.7", "192.0.2.1", 7)
	truncated.Buffer = truncated.Buffer[:50]
	frame := Frame{
		newPacket(t, "10.0.0.1", "192.0.2.1", 7),
		bad,
		truncated,
		newPacket(t, "192.0.2.1", "10.1.255.255", 7),
	}
	q := newCollector()

	assert.Equal(t, 4, n.Process(1, frame, q))
	assert.Len(t, q.out[NextIP6Lookup], 2)
	assert.Len(t, q.out[NextErrorDrop], 2)

	sc := n.Counters().Get(7)
	assert.Equal(t, uint64(2), sc.Valid.Packets)
	assert.Equal(t, uint64(2), sc.Invalid.Packets)
	assert.Equal(t, uint64(len(bad.Buffer)+50), sc.Invalid.Bytes)
}

func TestNodeOffsetView(t *testing.T) {
	n := newTestNode(t, 1)
	p := newPacket(t, "10.0.5.7", "192.0.2.1", 7)
	eth := make([]byte, 14)
	p.Buffer = append(eth, p.Buffer...)
	p.Offset = 14
	q := newCollector()

	n.Process(0, Frame{p}, q)

	assert.Equal(t, NextIP6Lookup, p.Next)
	assert.Equal(t, make([]byte, 14), p.Buffer[:14])
	assert.Equal(t, "10.1.5.7", innerHeader(t, p).Src.String())
	assert.Equal(t, uint64(len(p.Buffer)-14), n.Counters().Get(7).Valid.Bytes)
}

func TestNodeTrace(t *testing.T) {
	tb := NewTraceBuffer(1)
	n := newTestNode(t, 1, WithTracer(tb))

	p1 := newPacket(t, "10.0.5.7", "192.0.2.1", 7)
	p1.Traced, p1.Seq = true, 1
	p2 := newPacket(t, "10.0.5.8", "192.0.2.1", 7)
	p2.Traced, p2.Seq = true, 2
	p3 := newPacket(t, "10.0.5.9", "192.0.2.1", 7)

	n.Process(0, Frame{p1, p2, p3}, EnqueueFunc(func(*Packet, Next) {}))

	recs := tb.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, uint64(1), recs[0].Seq)
	assert.Equal(t, "srv6-nat-rewrite: localsid_index 7", recs[0].String())
}

type mockTracer struct {
	mock.Mock
}

func (m *mockTracer) AddTrace(p *Packet, index uint32) {
	m.Called(p, index)
}

func TestNodeTracesOnlyMarkedPackets(t *testing.T) {
	tr := new(mockTracer)
	n := newTestNode(t, 1, WithTracer(tr))

	traced := newPacket(t, "192.168.1.1", "8.8.8.8", 7)
	traced.Traced = true
	plain := newPacket(t, "10.0.5.7", "192.0.2.1", 7)
	tr.On("AddTrace", traced, uint32(7)).Once()

	n.Process(0, Frame{traced, plain}, newCollector())

	tr.AssertExpectations(t)
	tr.AssertNumberOfCalls(t, "AddTrace", 1)
}

func TestNextString(t *testing.T) {
	assert.Equal(t, "ip6-lookup", NextIP6Lookup.String())
	assert.Equal(t, "error-drop", NextErrorDrop.String())
	assert.Equal(t, "unknown", Next(9).String())
}
