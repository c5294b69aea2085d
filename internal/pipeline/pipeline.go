// Package pipeline feeds captured packets through the End.NAT node. A
// reader classifies each packet against the local SID table, batches the
// matching ones into frames and hands the frames to a pool of workers;
// every packet ends up at the sink tagged with its next stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"firestige.xyz/srv6nat/internal/dataplane"
	"firestige.xyz/srv6nat/internal/log"
)

// Source yields packets until it returns io.EOF.
type Source interface {
	Next() (*dataplane.Packet, error)
}

// Sink receives every packet once, with the stage it continues to.
type Sink interface {
	Deliver(p *dataplane.Packet, next dataplane.Next) error
}

// Classifier is the forwarding decision taken before the node: the
// segment index of the local SID a destination matches.
type Classifier interface {
	Lookup(dst netip.Addr) (uint32, bool)
}

// Pipeline runs passes over packet sources. Stats describe the latest pass.
type Pipeline struct {
	workers    int
	frameSize  int
	trace      int
	classifier Classifier
	node       *dataplane.Node
	metrics    *Metrics
	logger     log.Logger
}

// Config contains pipeline configuration.
type Config struct {
	Workers    int
	FrameSize  int // packets per frame
	Trace      int // mark the first Trace packets for tracing
	Classifier Classifier
	Node       *dataplane.Node
	Logger     log.Logger
}

// New creates a new pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Classifier == nil || cfg.Node == nil {
		return nil, errors.New("pipeline requires a classifier and a node")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Workers > cfg.Node.Counters().Workers() {
		return nil, fmt.Errorf("%d workers but counters sized for %d", cfg.Workers, cfg.Node.Counters().Workers())
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = DefaultFrameSize
	}
	if cfg.Logger == nil {
		cfg.Logger = log.GetLogger().WithField("component", "pipeline")
	}
	return &Pipeline{
		workers:    cfg.Workers,
		frameSize:  cfg.FrameSize,
		trace:      cfg.Trace,
		classifier: cfg.Classifier,
		node:       cfg.Node,
		metrics:    &Metrics{},
		logger:     cfg.Logger,
	}, nil
}

// DefaultFrameSize matches the vector size of a typical packet graph.
const DefaultFrameSize = 256

type delivery struct {
	p    *dataplane.Packet
	next dataplane.Next
}

// Run reads src to the end, processing and delivering every packet. It
// returns early when ctx is cancelled or the source fails; sink errors
// are counted and the first one is returned once the run completes.
func (p *Pipeline) Run(ctx context.Context, src Source, sink Sink) error {
	start := time.Now()
	p.metrics.Reset()
	p.logger.WithFields(map[string]interface{}{
		"workers":    p.workers,
		"frame_size": p.frameSize,
	}).Info("pipeline starting")

	frames := make(chan dataplane.Frame, p.workers*2)
	out := make(chan delivery, p.frameSize*p.workers)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(frames)
		return p.readLoop(gctx, src, frames, out)
	})
	for w := 0; w < p.workers; w++ {
		worker := w
		g.Go(func() error {
			return p.workLoop(gctx, worker, frames, out)
		})
	}

	var sinkErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for d := range out {
			if err := sink.Deliver(d.p, d.next); err != nil {
				p.metrics.DeliverErrors.Add(1)
				if sinkErr == nil {
					sinkErr = err
				}
				continue
			}
			if d.next == dataplane.NextIP6Lookup {
				p.metrics.Forwarded.Add(1)
			} else {
				p.metrics.Dropped.Add(1)
			}
		}
	}()

	err := g.Wait()
	close(out)
	wg.Wait()

	stats := p.Stats()
	p.logger.WithFields(map[string]interface{}{
		"received":   stats.Received,
		"dispatched": stats.Dispatched,
		"bypassed":   stats.Bypassed,
		"forwarded":  stats.Forwarded,
		"dropped":    stats.Dropped,
		"elapsed":    time.Since(start).String(),
	}).Info("pipeline stopped")

	if err != nil {
		return err
	}
	if sinkErr != nil {
		return fmt.Errorf("deliver packet: %w", sinkErr)
	}
	return nil
}

// readLoop classifies packets and batches the ones addressed to a local
// SID. Everything else bypasses the node towards ip6-lookup untouched.
func (p *Pipeline) readLoop(ctx context.Context, src Source, frames chan<- dataplane.Frame, out chan<- delivery) error {
	frame := make(dataplane.Frame, 0, p.frameSize)
	flush := func() error {
		if len(frame) == 0 {
			return nil
		}
		select {
		case frames <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
		p.metrics.Frames.Add(1)
		frame = make(dataplane.Frame, 0, p.frameSize)
		return nil
	}

	var seq uint64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		pkt, err := src.Next()
		if errors.Is(err, io.EOF) {
			return flush()
		}
		if err != nil {
			return fmt.Errorf("read packet: %w", err)
		}

		seq++
		p.metrics.Received.Add(1)
		if pkt.Seq == 0 {
			pkt.Seq = seq
		}
		pkt.Traced = seq <= uint64(p.trace)

		index, ok := p.classify(pkt)
		if !ok {
			p.metrics.Bypassed.Add(1)
			pkt.Next = dataplane.NextIP6Lookup
			select {
			case out <- delivery{p: pkt, next: dataplane.NextIP6Lookup}:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		pkt.SegmentIndex = index
		p.metrics.Dispatched.Add(1)
		frame = append(frame, pkt)
		if len(frame) == p.frameSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
}

func (p *Pipeline) workLoop(ctx context.Context, worker int, frames <-chan dataplane.Frame, out chan<- delivery) error {
	enqueue := dataplane.EnqueueFunc(func(pkt *dataplane.Packet, next dataplane.Next) {
		out <- delivery{p: pkt, next: next}
	})
	for frame := range frames {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.node.Process(worker, frame, enqueue)
	}
	return nil
}

func (p *Pipeline) classify(pkt *dataplane.Packet) (uint32, bool) {
	dst, ok := outerDestination(pkt.Data())
	if !ok {
		return 0, false
	}
	return p.classifier.Lookup(dst)
}

// outerDestination reads the destination of an IPv6 header.
func outerDestination(b []byte) (netip.Addr, bool) {
	if len(b) < 40 || b[0]>>4 != 6 {
		return netip.Addr{}, false
	}
	return netip.AddrFrom16([16]byte(b[24:40])), true
}

// Stats returns pipeline statistics.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Received:      p.metrics.Received.Load(),
		Dispatched:    p.metrics.Dispatched.Load(),
		Bypassed:      p.metrics.Bypassed.Load(),
		Frames:        p.metrics.Frames.Load(),
		Forwarded:     p.metrics.Forwarded.Load(),
		Dropped:       p.metrics.Dropped.Load(),
		DeliverErrors: p.metrics.DeliverErrors.Load(),
	}
}

// Stats represents pipeline statistics.
type Stats struct {
	Received      uint64 `yaml:"received"`
	Dispatched    uint64 `yaml:"dispatched"`
	Bypassed      uint64 `yaml:"bypassed"`
	Frames        uint64 `yaml:"frames"`
	Forwarded     uint64 `yaml:"forwarded"`
	Dropped       uint64 `yaml:"dropped"`
	DeliverErrors uint64 `yaml:"deliver_errors"`
}
