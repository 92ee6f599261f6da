package rtree

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// dirtySet tracks nodes modified since the last Save.
type dirtySet struct {
	mu sync.Mutex
	rb *roaring.Bitmap
}

func newDirtySet() *dirtySet {
	return &dirtySet{rb: roaring.New()}
}

func (d *dirtySet) add(ids ...nodeID) {
	d.mu.Lock()
	for _, id := range ids {
		d.rb.Add(uint32(id))
	}
	d.mu.Unlock()
}

func (d *dirtySet) contains(id nodeID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rb.Contains(uint32(id))
}

func (d *dirtySet) count() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rb.GetCardinality()
}

func (d *dirtySet) clear() {
	d.mu.Lock()
	d.rb.Clear()
	d.mu.Unlock()
}
