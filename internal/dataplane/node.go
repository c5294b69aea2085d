package dataplane

import (
	"fmt"

	"firestige.xyz/srv6nat/internal/core"
	"firestige.xyz/srv6nat/internal/log"
	"firestige.xyz/srv6nat/internal/srv6"
)

// Node is the End.NAT rewrite node. It is stateless across packets and
// safe to run on several workers at once as long as every worker passes
// its own worker number.
type Node struct {
	resolver SegmentResolver
	counters *Counters
	errors   NodeCounters
	tracer   Tracer
	logger   log.Logger
}

// NodeOption configures a Node.
type NodeOption func(*Node)

// WithTracer records traced packets into t.
func WithTracer(t Tracer) NodeOption {
	return func(n *Node) { n.tracer = t }
}

// WithNodeLogger overrides the package logger.
func WithNodeLogger(l log.Logger) NodeOption {
	return func(n *Node) { n.logger = l }
}

// NewNode returns a node resolving segments through r and counting into c.
func NewNode(r SegmentResolver, c *Counters, opts ...NodeOption) *Node {
	n := &Node{
		resolver: r,
		counters: c,
		logger:   log.GetLogger().WithField("node", NodeName),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Counters returns the per-segment counters the node increments.
func (n *Node) Counters() *Counters { return n.counters }

// Errors returns the node error counters.
func (n *Node) Errors() *NodeCounters { return &n.errors }

// Process runs every packet of frame through End.NAT and hands it to q
// with its next stage. A bad packet never affects the rest of the frame.
// It returns the number of packets processed.
func (n *Node) Process(worker int, frame Frame, q Enqueuer) int {
	for _, p := range frame {
		n.processOne(worker, p)
		q.Enqueue(p, p.Next)
	}
	return len(frame)
}

func (n *Node) processOne(worker int, p *Packet) {
	index := p.SegmentIndex
	rec, ok := n.resolver.Resolve(index)

	var res srv6.Result
	if ok {
		res = srv6.ProcessEndNAT(p.Data(), rec)
	} else {
		res = srv6.Result{Err: fmt.Errorf("%w: index %d", core.ErrUnknownSegment, index)}
	}

	p.Next = NextIP6Lookup
	if res.Outcome != srv6.OutcomeValid {
		p.Next = NextErrorDrop
	}

	if p.Traced && n.tracer != nil {
		n.tracer.AddTrace(p, index)
		if n.logger.IsDebugEnabled() {
			entry := n.logger.WithFields(map[string]interface{}{
				"seq":            p.Seq,
				"localsid_index": index,
				"outcome":        res.Outcome.String(),
				"next":           p.Next.String(),
			})
			if res.Err != nil {
				entry = entry.WithError(res.Err)
			}
			entry.Debug("traced packet")
		}
	}

	if ok {
		n.counters.Increment(worker, index, res.Outcome, len(p.Data()))
	}
	if p.Next == NextIP6Lookup {
		n.errors.Processed.Add(1)
	} else {
		n.errors.NoSRH.Add(1)
	}
}
