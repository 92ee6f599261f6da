package testutil

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/hupe1980/crtree/internal/geom"
)

// Item is a rectangle together with the payload it was inserted with.
type Item struct {
	Rect    geom.Rect
	Payload uint64
}

// RNG wraps a seeded generator. It is safe for concurrent use.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset restarts the sequence from the initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// Point returns a random point inside [0, span) in every dimension.
func (r *RNG) Point(span float64) geom.Rect {
	r.mu.Lock()
	defer r.mu.Unlock()

	var p [geom.Dims]float64
	for i := range p {
		p[i] = r.rand.Float64() * span
	}
	return geom.Point(p)
}

// Rect returns a random box with its lower corner in [0, span) and an
// extent of up to maxExtent per dimension.
func (r *RNG) Rect(span, maxExtent float64) geom.Rect {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b geom.Rect
	for i := 0; i < geom.Dims; i++ {
		b.Min[i] = r.rand.Float64() * span
		b.Max[i] = b.Min[i] + r.rand.Float64()*maxExtent
	}
	return b
}

// Items returns n random boxes with payloads 1..n.
func (r *RNG) Items(n int, span, maxExtent float64) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{Rect: r.Rect(span, maxExtent), Payload: uint64(i + 1)}
	}
	return items
}

// Diagonal returns the points (i, i, i) for i in [from, to] with payload i.
func Diagonal(from, to int) []Item {
	items := make([]Item, 0, to-from+1)
	for i := from; i <= to; i++ {
		v := float64(i)
		items = append(items, Item{Rect: geom.Point([geom.Dims]float64{v, v, v}), Payload: uint64(i)})
	}
	return items
}

// Overlapping returns the sorted payloads of every item overlapping q.
// It is the brute-force ground truth for search tests.
func Overlapping(items []Item, q geom.Rect) []uint64 {
	out := []uint64{}
	for _, it := range items {
		if it.Rect.Overlaps(q) {
			out = append(out, it.Payload)
		}
	}
	SortPayloads(out)
	return out
}

// SortPayloads sorts payloads ascending in place.
func SortPayloads(p []uint64) {
	sort.Slice(p, func(i, j int) bool { return p[i] < p[j] })
}
