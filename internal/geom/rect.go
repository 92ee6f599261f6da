// Package geom provides the axis-aligned rectangle primitives used by the
// R-tree: overlap and containment tests, union, hyper-volume and enlargement.
//
// All functions are pure. Rect is a value type and is safe to copy.
package geom

import (
	"errors"
	"fmt"
	"math"
)

// Dims is the number of dimensions of every rectangle in the index.
const Dims = 3

// ErrInvalidRect is returned by Validate when min > max in some dimension or
// a coordinate is NaN.
var ErrInvalidRect = errors.New("invalid rectangle")

// Rect is an axis-aligned bounding box. A zero-volume rectangle (Min == Max)
// represents a point and is legal.
type Rect struct {
	Min [Dims]float64
	Max [Dims]float64
}

// Point returns the degenerate rectangle covering exactly p.
func Point(p [Dims]float64) Rect {
	return Rect{Min: p, Max: p}
}

// FromSlices builds a rectangle from caller-supplied coordinate slices.
// The slices must have exactly Dims elements.
func FromSlices(minCoords, maxCoords []float64) (Rect, error) {
	if len(minCoords) != Dims || len(maxCoords) != Dims {
		return Rect{}, fmt.Errorf("%w: want %d coordinates, got min=%d max=%d",
			ErrInvalidRect, Dims, len(minCoords), len(maxCoords))
	}
	var r Rect
	copy(r.Min[:], minCoords)
	copy(r.Max[:], maxCoords)
	return r, r.Validate()
}

// Validate reports whether r satisfies Min[i] <= Max[i] for every dimension.
func (r Rect) Validate() error {
	for i := 0; i < Dims; i++ {
		if math.IsNaN(r.Min[i]) || math.IsNaN(r.Max[i]) {
			return fmt.Errorf("%w: NaN coordinate in dimension %d", ErrInvalidRect, i)
		}
		if r.Min[i] > r.Max[i] {
			return fmt.Errorf("%w: min %g > max %g in dimension %d", ErrInvalidRect, r.Min[i], r.Max[i], i)
		}
	}
	return nil
}

// Finite reports whether every coordinate of r is a finite number.
// Stored rectangles must be finite; query rectangles may be unbounded.
func (r Rect) Finite() bool {
	for i := 0; i < Dims; i++ {
		if math.IsInf(r.Min[i], 0) || math.IsInf(r.Max[i], 0) {
			return false
		}
	}
	return true
}

// Overlaps reports whether r and o share at least one point. Touching edges
// count as overlap.
func (r Rect) Overlaps(o Rect) bool {
	for i := 0; i < Dims; i++ {
		if r.Min[i] > o.Max[i] || o.Min[i] > r.Max[i] {
			return false
		}
	}
	return true
}

// Contains reports whether o lies completely inside r.
func (r Rect) Contains(o Rect) bool {
	for i := 0; i < Dims; i++ {
		if o.Min[i] < r.Min[i] || o.Max[i] > r.Max[i] {
			return false
		}
	}
	return true
}

// Union returns the smallest rectangle containing both r and o.
func (r Rect) Union(o Rect) Rect {
	var u Rect
	for i := 0; i < Dims; i++ {
		u.Min[i] = math.Min(r.Min[i], o.Min[i])
		u.Max[i] = math.Max(r.Max[i], o.Max[i])
	}
	return u
}

// Volume returns the hyper-volume of r. Degenerate rectangles have volume 0.
func (r Rect) Volume() float64 {
	v := 1.0
	for i := 0; i < Dims; i++ {
		v *= r.Max[i] - r.Min[i]
	}
	return v
}

// Enlargement returns how much r's volume grows when extended to cover o.
func (r Rect) Enlargement(o Rect) float64 {
	return r.Union(o).Volume() - r.Volume()
}

// Waste is the volume of the union of a and b not covered by either one.
// It drives seed selection when a node is split.
func Waste(a, b Rect) float64 {
	return a.Union(b).Volume() - a.Volume() - b.Volume()
}

// String formats r as [(min0, max0)(min1, max1)...].
func (r Rect) String() string {
	s := "["
	for i := 0; i < Dims; i++ {
		s += fmt.Sprintf("(%g, %g)", r.Min[i], r.Max[i])
	}
	return s + "]"
}

// Infinite returns a rectangle covering the whole coordinate space.
func Infinite() Rect {
	var r Rect
	for i := 0; i < Dims; i++ {
		r.Min[i] = math.Inf(-1)
		r.Max[i] = math.Inf(1)
	}
	return r
}
