// Package dataplane runs the End.NAT node over frames of packets. It
// models the pieces of a vector packet processor the node depends on:
// packets with an attached segment index, frames, next-stage enqueueing,
// combined counters and packet traces.
package dataplane

import (
	"time"

	"firestige.xyz/srv6nat/internal/srv6"
)

// NodeName is the name the End.NAT node is registered under.
const NodeName = "srv6-nat-rewrite"

// Next selects the stage a packet continues to after the node.
type Next uint8

const (
	NextErrorDrop Next = iota
	NextIP6Lookup
)

func (n Next) String() string {
	switch n {
	case NextIP6Lookup:
		return "ip6-lookup"
	case NextErrorDrop:
		return "error-drop"
	default:
		return "unknown"
	}
}

// Packet is one buffer travelling through the graph.
type Packet struct {
	// Buffer holds the whole captured frame; Offset is where the outer
	// IPv6 header starts (after any link-layer header).
	Buffer []byte
	Offset int
	// SegmentIndex is the forwarding decision made before the node: the
	// table index of the local SID the destination matched.
	SegmentIndex uint32
	Traced       bool
	Next         Next

	// Capture metadata, carried through unchanged.
	Timestamp time.Time
	WireLen   int
	Seq       uint64
}

// Data is the current view of the packet, positioned at the outer IPv6
// header. Writes go to the underlying buffer.
func (p *Packet) Data() []byte { return p.Buffer[p.Offset:] }

// Frame is a batch of packets handed to a node in one call.
type Frame []*Packet

// SegmentResolver maps a segment index to its translation record.
type SegmentResolver interface {
	Resolve(index uint32) (srv6.Record, bool)
}

// Enqueuer accepts packets leaving the node.
type Enqueuer interface {
	Enqueue(p *Packet, next Next)
}

// Tracer records which segment processed a traced packet.
type Tracer interface {
	AddTrace(p *Packet, index uint32)
}

// EnqueueFunc adapts a function to Enqueuer.
type EnqueueFunc func(p *Packet, next Next)

func (f EnqueueFunc) Enqueue(p *Packet, next Next) { f(p, next) }
