package dataplane

import (
	"fmt"
	"sync"
)

// TraceRecord is what the node stores for a traced packet.
type TraceRecord struct {
	Seq          uint64
	SegmentIndex uint32
}

func (r TraceRecord) String() string {
	return fmt.Sprintf("%s: localsid_index %d", NodeName, r.SegmentIndex)
}

// TraceBuffer keeps trace records for up to a fixed number of packets.
type TraceBuffer struct {
	mu      sync.Mutex
	limit   int
	records []TraceRecord
}

// NewTraceBuffer returns a buffer that accepts up to limit records.
func NewTraceBuffer(limit int) *TraceBuffer {
	return &TraceBuffer{limit: limit}
}

// AddTrace implements Tracer.
func (t *TraceBuffer) AddTrace(p *Packet, index uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.records) >= t.limit {
		return
	}
	t.records = append(t.records, TraceRecord{Seq: p.Seq, SegmentIndex: index})
}

// Records returns a copy of the stored records.
func (t *TraceBuffer) Records() []TraceRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TraceRecord(nil), t.records...)
}
