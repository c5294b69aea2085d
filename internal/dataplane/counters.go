package dataplane

import (
	"sort"
	"sync"
	"sync/atomic"

	"firestige.xyz/srv6nat/internal/srv6"
)

// Combined is a packets/bytes counter pair.
type Combined struct {
	Packets uint64 `yaml:"packets" json:"packets"`
	Bytes   uint64 `yaml:"bytes" json:"bytes"`
}

func (c *Combined) add(packets, bytes uint64) {
	c.Packets += packets
	c.Bytes += bytes
}

// SegmentCounters holds the valid and invalid totals of one local SID.
type SegmentCounters struct {
	Index   uint32
	Valid   Combined
	Invalid Combined
}

type workerCounters struct {
	mu      sync.Mutex
	valid   []Combined
	invalid []Combined
}

// Counters are per-worker combined counters indexed by segment. Each
// worker only increments its own slot, so the per-worker lock is
// uncontended except while a snapshot is taken.
type Counters struct {
	workers []*workerCounters
}

// NewCounters allocates counters for the given number of workers.
func NewCounters(workers int) *Counters {
	if workers < 1 {
		workers = 1
	}
	c := &Counters{workers: make([]*workerCounters, workers)}
	for i := range c.workers {
		c.workers[i] = &workerCounters{}
	}
	return c
}

// Workers returns the number of worker slots.
func (c *Counters) Workers() int { return len(c.workers) }

// Increment adds one packet of the given length to the counter for index
// and outcome on worker.
func (c *Counters) Increment(worker int, index uint32, outcome srv6.Outcome, bytes int) {
	w := c.workers[worker]
	w.mu.Lock()
	if outcome == srv6.OutcomeValid {
		w.valid = grow(w.valid, index)
		w.valid[index].add(1, uint64(bytes))
	} else {
		w.invalid = grow(w.invalid, index)
		w.invalid[index].add(1, uint64(bytes))
	}
	w.mu.Unlock()
}

// Clear zeroes the counters of index on every worker, as done when an
// index is handed to a new local SID.
func (c *Counters) Clear(index uint32) {
	for _, w := range c.workers {
		w.mu.Lock()
		if int(index) < len(w.valid) {
			w.valid[index] = Combined{}
		}
		if int(index) < len(w.invalid) {
			w.invalid[index] = Combined{}
		}
		w.mu.Unlock()
	}
}

// Get returns the totals of index summed over all workers.
func (c *Counters) Get(index uint32) SegmentCounters {
	sc := SegmentCounters{Index: index}
	for _, w := range c.workers {
		w.mu.Lock()
		if int(index) < len(w.valid) {
			sc.Valid.add(w.valid[index].Packets, w.valid[index].Bytes)
		}
		if int(index) < len(w.invalid) {
			sc.Invalid.add(w.invalid[index].Packets, w.invalid[index].Bytes)
		}
		w.mu.Unlock()
	}
	return sc
}

// Snapshot returns the summed totals of every index that has counted at
// least one packet, ordered by index.
func (c *Counters) Snapshot() []SegmentCounters {
	sum := make(map[uint32]*SegmentCounters)
	at := func(i uint32) *SegmentCounters {
		sc, ok := sum[i]
		if !ok {
			sc = &SegmentCounters{Index: i}
			sum[i] = sc
		}
		return sc
	}
	for _, w := range c.workers {
		w.mu.Lock()
		for i, v := range w.valid {
			if v.Packets > 0 {
				at(uint32(i)).Valid.add(v.Packets, v.Bytes)
			}
		}
		for i, v := range w.invalid {
			if v.Packets > 0 {
				at(uint32(i)).Invalid.add(v.Packets, v.Bytes)
			}
		}
		w.mu.Unlock()
	}

	out := make([]SegmentCounters, 0, len(sum))
	for _, sc := range sum {
		out = append(out, *sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func grow(s []Combined, index uint32) []Combined {
	if int(index) < len(s) {
		return s
	}
	n := make([]Combined, int(index)+1)
	copy(n, s)
	return n
}

// NodeCounters are the node's error counters: Processed counts packets
// that left towards ip6-lookup, NoSRH those sent to error-drop.
type NodeCounters struct {
	Processed atomic.Uint64
	NoSRH     atomic.Uint64
}

// Node counter names, as shown next to their values.
const (
	CounterProcessed = "srv6-nat-rewrite processed packets"
	CounterNoSRH     = "(Error) No SRH."
)

// NodeCounterValue is a named node counter reading.
type NodeCounterValue struct {
	Name  string
	Value uint64
}

// Values returns the node counters in registration order.
func (n *NodeCounters) Values() []NodeCounterValue {
	return []NodeCounterValue{
		{Name: CounterProcessed, Value: n.Processed.Load()},
		{Name: CounterNoSRH, Value: n.NoSRH.Load()},
	}
}
