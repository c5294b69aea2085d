package localsid

import (
	"fmt"
	"net/netip"
	"sort"
	"sync"

	"firestige.xyz/srv6nat/internal/core"
	"firestige.xyz/srv6nat/internal/log"
	"firestige.xyz/srv6nat/internal/srv6"
)

// Entry is one instantiated End.NAT segment. The translation record is
// held by value: removing the entry removes the only copy the table hands
// out, and readers that resolved it earlier keep an immutable snapshot.
type Entry struct {
	Index    uint32
	Address  netip.Addr
	Behavior Behavior
	NAT      srv6.Record
}

// Table owns every End.NAT segment, keyed by a pool-style index that the
// classification step attaches to packets. Add and Remove are
// configuration-plane calls; Lookup and Resolve are safe to call from any
// number of data-plane workers concurrently.
type Table struct {
	mu       sync.RWMutex
	behavior Behavior
	entries  map[uint32]Entry
	byAddr   map[netip.Addr]uint32
	free     []uint32
	next     uint32
	limit    int
	onCreate func(Entry)
	logger   log.Logger
}

// Option configures a Table.
type Option func(*Table)

// WithLimit caps the number of segments; 0 means unlimited.
func WithLimit(n int) Option {
	return func(t *Table) { t.limit = n }
}

// WithCreateHook calls fn for every entry Add creates, before the entry
// becomes visible to Lookup. Per-index state such as counters is reset here.
func WithCreateHook(fn func(Entry)) Option {
	return func(t *Table) { t.onCreate = fn }
}

// WithLogger overrides the package logger.
func WithLogger(l log.Logger) Option {
	return func(t *Table) { t.logger = l }
}

// NewTable registers End.NAT with reg (reusing an earlier registration)
// and returns an empty table for it.
func NewTable(reg *Registry, opts ...Option) (*Table, error) {
	b, ok := reg.Get(EndNAT.Keyword)
	if !ok {
		var err error
		if b, err = reg.Register(EndNAT); err != nil {
			return nil, fmt.Errorf("register %s: %w", EndNAT.Name, err)
		}
	}

	t := &Table{
		behavior: b,
		entries:  make(map[uint32]Entry),
		byAddr:   make(map[netip.Addr]uint32),
		logger:   log.GetLogger().WithField("component", "localsid"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Behavior returns the registered End.NAT behavior.
func (t *Table) Behavior() Behavior { return t.behavior }

// Add instantiates addr with the End.NAT configuration in spec
// ("end.nat from <ipv4> to <ipv4>"). On error nothing is created.
func (t *Table) Add(addr netip.Addr, spec string) (Entry, error) {
	if !addr.Is6() || addr.Is4In6() {
		return Entry{}, fmt.Errorf("%w: localsid address %s is not IPv6", core.ErrConfigInvalid, addr)
	}
	rec, err := srv6.ParseRecord(spec)
	if err != nil {
		return Entry{}, fmt.Errorf("localsid %s: %w", addr, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.byAddr[addr]; exists {
		return Entry{}, fmt.Errorf("%w: %s", core.ErrSIDExists, addr)
	}
	if t.limit > 0 && len(t.entries) >= t.limit {
		return Entry{}, fmt.Errorf("%w: limit %d reached adding %s", core.ErrTableFull, t.limit, addr)
	}

	e := Entry{
		Index:    t.allocIndex(),
		Address:  addr,
		Behavior: t.behavior,
		NAT:      rec,
	}
	if t.onCreate != nil {
		t.onCreate(e)
	}
	t.entries[e.Index] = e
	t.byAddr[addr] = e.Index

	t.logger.WithFields(map[string]interface{}{
		"sid":   addr.String(),
		"index": e.Index,
		"from":  rec.FromAddr().String(),
		"to":    rec.ToAddr().String(),
	}).Info("localsid added")
	return e, nil
}

// Remove releases the segment bound to addr.
func (t *Table) Remove(addr netip.Addr) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx, ok := t.byAddr[addr]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrSIDNotFound, addr)
	}
	delete(t.byAddr, addr)
	delete(t.entries, idx)
	t.free = append(t.free, idx)

	t.logger.WithField("sid", addr.String()).WithField("index", idx).Info("localsid removed")
	return nil
}

// Lookup is the forwarding decision: the index of the segment whose
// address equals the packet's IPv6 destination.
func (t *Table) Lookup(dst netip.Addr) (uint32, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx, ok := t.byAddr[dst]
	return idx, ok
}

// Resolve returns the translation record of the segment at index.
func (t *Table) Resolve(index uint32) (srv6.Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[index]
	return e.NAT, ok
}

// Entry returns the segment at index.
func (t *Table) Entry(index uint32) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[index]
	return e, ok
}

// List returns all segments ordered by index.
func (t *Table) List() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Len returns the number of segments.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// allocIndex reuses the most recently freed index first. Caller holds mu.
func (t *Table) allocIndex() uint32 {
	if n := len(t.free); n > 0 {
		idx := t.free[n-1]
		t.free = t.free[:n-1]
		return idx
	}
	idx := t.next
	t.next++
	return idx
}

// String renders an entry the way `sid list` prints it.
func (e Entry) String() string {
	return fmt.Sprintf("Address: \t%s\nBehavior: \t%s\nIndex: \t%d\n\t%s", e.Address, e.Behavior.Keyword, e.Index, e.NAT)
}
