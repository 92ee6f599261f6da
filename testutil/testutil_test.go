package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/crtree/internal/geom"
)

func TestRNG_Deterministic(t *testing.T) {
	a := NewRNG(7).Items(20, 100, 5)
	b := NewRNG(7).Items(20, 100, 5)
	assert.Equal(t, a, b)

	r := NewRNG(7)
	first := r.Rect(100, 5)
	r.Reset()
	assert.Equal(t, first, r.Rect(100, 5))
	assert.Equal(t, int64(7), r.Seed())
}

func TestRNG_RectBounds(t *testing.T) {
	r := NewRNG(1)
	for range 100 {
		b := r.Rect(10, 2)
		assert.NoError(t, b.Validate())
		for i := 0; i < geom.Dims; i++ {
			assert.GreaterOrEqual(t, b.Min[i], 0.0)
			assert.Less(t, b.Min[i], 10.0)
			assert.LessOrEqual(t, b.Max[i]-b.Min[i], 2.0)
		}
	}

	p := r.Point(5)
	assert.Equal(t, p.Min, p.Max)
}

func TestOverlapping(t *testing.T) {
	items := Diagonal(1, 30)
	q := geom.Rect{Min: [geom.Dims]float64{2, 2, 2}, Max: [geom.Dims]float64{5, 5, 5}}
	assert.Equal(t, []uint64{2, 3, 4, 5}, Overlapping(items, q))

	miss := geom.Rect{Min: [geom.Dims]float64{50, 50, 50}, Max: [geom.Dims]float64{60, 60, 60}}
	assert.Equal(t, []uint64{}, Overlapping(items, miss), "no match is empty, not nil")
}
