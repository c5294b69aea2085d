package pipeline

import (
	"sync/atomic"
)

// Metrics contains the pipeline counters.
type Metrics struct {
	Received      atomic.Uint64
	Dispatched    atomic.Uint64 // sent to the End.NAT node
	Bypassed      atomic.Uint64 // not addressed to a local SID
	Frames        atomic.Uint64
	Forwarded     atomic.Uint64 // delivered towards ip6-lookup
	Dropped       atomic.Uint64 // delivered towards error-drop
	DeliverErrors atomic.Uint64
}

// Reset resets all counters to zero.
func (m *Metrics) Reset() {
	m.Received.Store(0)
	m.Dispatched.Store(0)
	m.Bypassed.Store(0)
	m.Frames.Store(0)
	m.Forwarded.Store(0)
	m.Dropped.Store(0)
	m.DeliverErrors.Store(0)
}
