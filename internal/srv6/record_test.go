package srv6

import (
	"errors"
	"math/rand"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/srv6nat/internal/core"
)

func TestParseRecord(t *testing.T) {
	rec, err := ParseRecord("end.nat from 10.0.0.0 to 10.1.0.0")
	require.NoError(t, err)

	assert.Equal(t, uint32(0x0A000000), rec.From)
	assert.Equal(t, uint32(0x0A010000), rec.To)
	assert.Equal(t, uint32(0xFFFF0000), rec.Mask)
	assert.Equal(t, netip.MustParseAddr("255.255.0.0"), rec.MaskAddr())
}

func TestParseRecord_MasksHostBits(t *testing.T) {
	rec, err := ParseRecord("end.nat from 172.16.33.44 to 192.168.255.1")
	require.NoError(t, err)

	assert.Equal(t, netip.MustParseAddr("172.16.0.0"), rec.FromAddr())
	assert.Equal(t, netip.MustParseAddr("192.168.0.0"), rec.ToAddr())
}

func TestParseRecord_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"missing keyword", "from 10.0.0.0 to 10.1.0.0"},
		{"wrong keyword", "end.dx4 from 10.0.0.0 to 10.1.0.0"},
		{"missing to", "end.nat from 10.0.0.0"},
		{"swapped words", "end.nat to 10.0.0.0 from 10.1.0.0"},
		{"trailing garbage", "end.nat from 10.0.0.0 to 10.1.0.0 extra"},
		{"bad from", "end.nat from 10.0.0 to 10.1.0.0"},
		{"bad to", "end.nat from 10.0.0.0 to ten"},
		{"ipv6 prefix", "end.nat from 2001:db8:: to 10.1.0.0"},
		{"upper case keyword", "END.NAT from 10.0.0.0 to 10.1.0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRecord(tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrParse), "got %v", err)
		})
	}
}

func TestRecord_PrefixInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		from := uint32ToAddr(rng.Uint32())
		to := uint32ToAddr(rng.Uint32())

		rec, err := NewRecord(from, to)
		require.NoError(t, err)
		assert.Equal(t, rec.From, rec.From&rec.Mask)
		assert.Equal(t, rec.To, rec.To&rec.Mask)
		assert.Equal(t, PrefixMask, rec.Mask)
	}
}

func TestRecord_String(t *testing.T) {
	rec, err := ParseRecord("end.nat from 10.0.0.0 to 10.1.0.0")
	require.NoError(t, err)

	assert.Equal(t, "From: 10.0.0.0\n\tTo: 10.1.0.0\n\tMask: 255.255.0.0", rec.String())
}

func TestRecord_SpecRoundTrip(t *testing.T) {
	rec, err := ParseRecord("end.nat   from 10.20.30.40   to 10.21.0.9")
	require.NoError(t, err)

	again, err := ParseRecord(rec.Spec())
	require.NoError(t, err)
	assert.Equal(t, rec, again)
	assert.Equal(t, "end.nat from 10.20.0.0 to 10.21.0.0", rec.Spec())
}
