package snapshot

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/crtree/internal/geom"
	"github.com/hupe1980/crtree/testutil"
)

func entries(items []testutil.Item) []Entry {
	out := make([]Entry, len(items))
	for i, it := range items {
		out[i] = Entry{Rect: it.Rect, Payload: it.Payload}
	}
	return out
}

func TestEncodeDecode(t *testing.T) {
	want := entries(testutil.Diagonal(1, 500))

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			data, err := Encode(want, func(o *Options) { o.Compression = c })
			require.NoError(t, err)

			h, err := ReadHeader(data)
			require.NoError(t, err)
			assert.Equal(t, uint64(len(want)), h.Count)
			assert.Equal(t, uint16(geom.Dims), h.Dims)
			assert.Equal(t, c, h.Compression, "diagonal points compress well")

			got, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestEncode_Empty(t *testing.T) {
	data, err := Encode(nil)
	require.NoError(t, err)
	assert.Len(t, data, HeaderSize)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEncode_FallsBackToNone(t *testing.T) {
	// Random coordinates and payloads barely compress.
	rng := testutil.NewRNG(7)
	want := make([]Entry, 200)
	for i := range want {
		want[i] = Entry{Rect: rng.Rect(1e6, 1e3), Payload: uint64(rng.Intn(1 << 62))}
	}

	data, err := Encode(want, func(o *Options) { o.Compression = CompressionLZ4 })
	require.NoError(t, err)

	h, err := ReadHeader(data)
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, h.Compression)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecode_Errors(t *testing.T) {
	valid, err := Encode(entries(testutil.Diagonal(1, 50)), func(o *Options) { o.Compression = CompressionNone })
	require.NoError(t, err)

	mutate := func(fn func(b []byte)) []byte {
		b := append([]byte(nil), valid...)
		fn(b)
		return b
	}

	t.Run("short", func(t *testing.T) {
		_, err := Decode(valid[:10])
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("magic", func(t *testing.T) {
		_, err := Decode(mutate(func(b []byte) { b[0] = 'X' }))
		assert.ErrorIs(t, err, ErrInvalidMagic)
	})

	t.Run("version", func(t *testing.T) {
		_, err := Decode(mutate(func(b []byte) { binary.LittleEndian.PutUint16(b[4:], Version+1) }))
		assert.ErrorIs(t, err, ErrInvalidVersion)
	})

	t.Run("dims", func(t *testing.T) {
		_, err := Decode(mutate(func(b []byte) { binary.LittleEndian.PutUint16(b[6:], 2) }))
		var dm *ErrDimensionMismatch
		require.ErrorAs(t, err, &dm)
		assert.Equal(t, 2, dm.Actual)
	})

	t.Run("checksum", func(t *testing.T) {
		_, err := Decode(mutate(func(b []byte) { b[HeaderSize+3] ^= 0xff }))
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("truncated body", func(t *testing.T) {
		_, err := Decode(valid[:len(valid)-1])
		assert.ErrorIs(t, err, ErrCorrupt)
	})
}

func TestDecode_ForgedSize(t *testing.T) {
	valid, err := Encode(entries(testutil.Diagonal(1, 50)), func(o *Options) { o.Compression = CompressionNone })
	require.NoError(t, err)

	forge := func(c Compression, count uint64) []byte {
		b := append([]byte(nil), valid...)
		b[8] = byte(c)
		binary.LittleEndian.PutUint64(b[16:], count)
		binary.LittleEndian.PutUint64(b[24:], count*EntrySize)
		return b
	}

	tests := []struct {
		name  string
		c     Compression
		count uint64
	}{
		{"none", CompressionNone, 1 << 40},
		{"lz4", CompressionLZ4, 1 << 40},
		{"zstd", CompressionZSTD, 1 << 40},
		{"zstd within ratio", CompressionZSTD, 1 << 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := forge(tt.c, tt.count)

			h, err := ReadHeader(data)
			require.NoError(t, err)
			assert.Equal(t, tt.count, h.Count)

			_, err = Decode(data)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestDecode_ZSTDFrameSize(t *testing.T) {
	want := entries(testutil.Diagonal(1, 500))
	data, err := Encode(want, func(o *Options) { o.Compression = CompressionZSTD })
	require.NoError(t, err)

	h, err := ReadHeader(data)
	require.NoError(t, err)
	if h.Compression != CompressionZSTD {
		t.Skip("body did not compress")
	}

	// Declare twice the entries the frame holds.
	binary.LittleEndian.PutUint64(data[16:], 2*h.Count)
	binary.LittleEndian.PutUint64(data[24:], 2*h.Size)

	_, err = Decode(data)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestDecode_RejectsInvalidRects(t *testing.T) {
	inf := math.Inf(1)

	tests := []struct {
		name string
		rect geom.Rect
	}{
		{"unbounded", geom.Rect{Min: [geom.Dims]float64{0, 0, 0}, Max: [geom.Dims]float64{inf, 1, 1}}},
		{"inverted", geom.Rect{Min: [geom.Dims]float64{2, 0, 0}, Max: [geom.Dims]float64{1, 1, 1}}},
		{"nan", geom.Rect{Min: [geom.Dims]float64{math.NaN(), 0, 0}, Max: [geom.Dims]float64{1, 1, 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := append(entries(testutil.Diagonal(1, 3)), Entry{Rect: tt.rect, Payload: 99})
			data, err := Encode(in)
			require.NoError(t, err)

			_, err = Decode(data)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestParseCompression(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		got, err := ParseCompression(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := ParseCompression("brotli")
	assert.Error(t, err)
}
