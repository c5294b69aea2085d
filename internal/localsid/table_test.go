package localsid

import (
	"net/netip"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/srv6nat/internal/core"
	"firestige.xyz/srv6nat/internal/dataplane"
	"firestige.xyz/srv6nat/internal/srv6"
)

var (
	sid1 = netip.MustParseAddr("fc00::1")
	sid2 = netip.MustParseAddr("fc00::2")
	sid3 = netip.MustParseAddr("fc00::3")
)

func newTestTable(t *testing.T, opts ...Option) *Table {
	t.Helper()
	tbl, err := NewTable(NewRegistry(), opts...)
	require.NoError(t, err)
	return tbl
}

func TestTableAdd(t *testing.T) {
	tbl := newTestTable(t)

	e, err := tbl.Add(sid1, "end.nat from 10.0.5.6 to 10.1.7.8")
	require.NoError(t, err)
	assert.Equal(t, uint32(0), e.Index)
	assert.Equal(t, sid1, e.Address)
	assert.Equal(t, uint32(0x0A000000), e.NAT.From)
	assert.Equal(t, uint32(0x0A010000), e.NAT.To)
	assert.Equal(t, uint32(0xFFFF0000), e.NAT.Mask)

	idx, ok := tbl.Lookup(sid1)
	require.True(t, ok)
	assert.Equal(t, e.Index, idx)

	rec, ok := tbl.Resolve(idx)
	require.True(t, ok)
	assert.Equal(t, e.NAT, rec)

	got, ok := tbl.Entry(idx)
	require.True(t, ok)
	assert.Equal(t, e, got)
	assert.Equal(t, 1, tbl.Len())
}

func TestTableAddRejects(t *testing.T) {
	tests := []struct {
		name string
		addr netip.Addr
		spec string
		err  error
	}{
		{"ipv4 address", netip.MustParseAddr("10.0.0.1"), "end.nat from 10.0.0.0 to 10.1.0.0", core.ErrConfigInvalid},
		{"mapped address", netip.MustParseAddr("::ffff:10.0.0.1"), "end.nat from 10.0.0.0 to 10.1.0.0", core.ErrConfigInvalid},
		{"missing to", sid1, "end.nat from 10.0.0.0", core.ErrParse},
		{"ipv6 prefix", sid1, "end.nat from fc00::1 to 10.1.0.0", core.ErrParse},
		{"wrong keyword", sid1, "end.dx4 from 10.0.0.0 to 10.1.0.0", core.ErrParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := newTestTable(t)
			_, err := tbl.Add(tt.addr, tt.spec)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, 0, tbl.Len())
		})
	}
}

func TestTableDuplicate(t *testing.T) {
	tbl := newTestTable(t)
	_, err := tbl.Add(sid1, "end.nat from 10.0.0.0 to 10.1.0.0")
	require.NoError(t, err)

	_, err = tbl.Add(sid1, "end.nat from 10.2.0.0 to 10.3.0.0")
	assert.ErrorIs(t, err, core.ErrSIDExists)

	idx, _ := tbl.Lookup(sid1)
	rec, _ := tbl.Resolve(idx)
	assert.Equal(t, uint32(0x0A000000), rec.From)
}

func TestTableLimit(t *testing.T) {
	tbl := newTestTable(t, WithLimit(1))
	_, err := tbl.Add(sid1, "end.nat from 10.0.0.0 to 10.1.0.0")
	require.NoError(t, err)

	_, err = tbl.Add(sid2, "end.nat from 10.2.0.0 to 10.3.0.0")
	assert.ErrorIs(t, err, core.ErrTableFull)

	require.NoError(t, tbl.Remove(sid1))
	_, err = tbl.Add(sid2, "end.nat from 10.2.0.0 to 10.3.0.0")
	assert.NoError(t, err)
}

func TestTableRemoveAndIndexReuse(t *testing.T) {
	tbl := newTestTable(t)
	e1, _ := tbl.Add(sid1, "end.nat from 10.0.0.0 to 10.1.0.0")
	e2, _ := tbl.Add(sid2, "end.nat from 10.2.0.0 to 10.3.0.0")
	assert.Equal(t, uint32(1), e2.Index)

	require.NoError(t, tbl.Remove(sid1))
	assert.ErrorIs(t, tbl.Remove(sid1), core.ErrSIDNotFound)

	_, ok := tbl.Lookup(sid1)
	assert.False(t, ok)
	_, ok = tbl.Resolve(e1.Index)
	assert.False(t, ok)

	e3, err := tbl.Add(sid3, "end.nat from 10.4.0.0 to 10.5.0.0")
	require.NoError(t, err)
	assert.Equal(t, e1.Index, e3.Index)

	rec, ok := tbl.Resolve(e3.Index)
	require.True(t, ok)
	assert.Equal(t, uint32(0x0A040000), rec.From)

	e4, _ := tbl.Add(sid1, "end.nat from 10.6.0.0 to 10.7.0.0")
	assert.Equal(t, uint32(2), e4.Index)
}

func TestTableReusedIndexStartsWithZeroCounters(t *testing.T) {
	counters := dataplane.NewCounters(2)
	var created []uint32
	tbl := newTestTable(t, WithCreateHook(func(e Entry) {
		created = append(created, e.Index)
		counters.Clear(e.Index)
	}))

	e1, err := tbl.Add(sid1, "end.nat from 10.0.0.0 to 10.1.0.0")
	require.NoError(t, err)
	counters.Increment(0, e1.Index, srv6.OutcomeValid, 100)
	counters.Increment(1, e1.Index, srv6.OutcomeInvalid, 60)
	require.Equal(t, uint64(1), counters.Get(e1.Index).Valid.Packets)

	require.NoError(t, tbl.Remove(sid1))
	e2, err := tbl.Add(sid2, "end.nat from 10.2.0.0 to 10.3.0.0")
	require.NoError(t, err)
	require.Equal(t, e1.Index, e2.Index)

	assert.Equal(t, []uint32{e1.Index, e2.Index}, created)
	assert.Equal(t, dataplane.SegmentCounters{Index: e2.Index}, counters.Get(e2.Index))
}

func TestTableList(t *testing.T) {
	tbl := newTestTable(t)
	_, _ = tbl.Add(sid2, "end.nat from 10.2.0.0 to 10.3.0.0")
	_, _ = tbl.Add(sid1, "end.nat from 10.0.0.0 to 10.1.0.0")

	list := tbl.List()
	require.Len(t, list, 2)
	assert.Equal(t, sid2, list[0].Address)
	assert.Equal(t, sid1, list[1].Address)
}

func TestEntryString(t *testing.T) {
	tbl := newTestTable(t)
	e, err := tbl.Add(sid1, "end.nat from 10.0.5.6 to 10.1.7.8")
	require.NoError(t, err)

	assert.Equal(t,
		"Address: \tfc00::1\nBehavior: \tend.nat\nIndex: \t0\n\tFrom: 10.0.0.0\n\tTo: 10.1.0.0\n\tMask: 255.255.0.0",
		e.String())
}

func TestTableConcurrentReaders(t *testing.T) {
	tbl := newTestTable(t)
	_, err := tbl.Add(sid1, "end.nat from 10.0.0.0 to 10.1.0.0")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if idx, ok := tbl.Lookup(sid1); ok {
					tbl.Resolve(idx)
				}
			}
		}()
	}
	for j := 0; j < 100; j++ {
		_ = tbl.Remove(sid1)
		_, _ = tbl.Add(sid1, "end.nat from 10.0.0.0 to 10.1.0.0")
	}
	wg.Wait()
}
