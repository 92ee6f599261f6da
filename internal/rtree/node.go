package rtree

import (
	"sync"
	"sync/atomic"

	"github.com/hupe1980/crtree/internal/geom"
)

// nodeID addresses a node in the node table. The zero value is the nil link.
type nodeID uint32

const nilNode nodeID = 0

const (
	nodeSegmentBits = 12
	nodeSegmentSize = 1 << nodeSegmentBits
	nodeSegmentMask = nodeSegmentSize - 1
)

// Payload is the opaque handle stored with every leaf record.
// 0 means no payload.
type Payload uint64

// record is one slot of a node. For internal nodes child/version/offset
// describe the child; for leaves payload is meaningful. The owning node's
// level decides which half is used.
type record struct {
	rect    geom.Rect
	child   nodeID
	version uint64
	offset  int64
	payload Payload
}

// node is a fixed-capacity tree node. level is immutable after allocation;
// every other field is guarded by mu.
type node struct {
	mu sync.RWMutex

	id    nodeID
	level int

	records []record
	version uint64
	parent  nodeID // may be stale; the true parent is on its sibling chain
	sibling nodeID
	offset  int64
}

func (n *node) isLeaf() bool { return n.level == 0 }

// lock takes the lock a traversal needs at this node: exclusive when
// excl is set, shared otherwise.
func (n *node) lock(excl bool) {
	if excl {
		n.mu.Lock()
		return
	}
	n.mu.RLock()
}

func (n *node) unlock(excl bool) {
	if excl {
		n.mu.Unlock()
		return
	}
	n.mu.RUnlock()
}

// cover returns the union of the node's record rectangles. An empty node has
// no cover.
func (n *node) cover() (geom.Rect, bool) {
	if len(n.records) == 0 {
		return geom.Rect{}, false
	}
	c := n.records[0].rect
	for _, r := range n.records[1:] {
		c = c.Union(r.rect)
	}
	return c, true
}

// indexOf returns the slot holding child, or -1.
func (n *node) indexOf(child nodeID) int {
	for i := range n.records {
		if n.records[i].child == child {
			return i
		}
	}
	return -1
}

// chooseSubtree picks the record needing the least enlargement to cover r.
// Ties go to the smaller rectangle, then to the first slot.
func (n *node) chooseSubtree(r geom.Rect) int {
	best := 0
	bestGrow := n.records[0].rect.Enlargement(r)
	bestVol := n.records[0].rect.Volume()
	for i := 1; i < len(n.records); i++ {
		grow := n.records[i].rect.Enlargement(r)
		vol := n.records[i].rect.Volume()
		if grow < bestGrow || (grow == bestGrow && vol < bestVol) {
			best, bestGrow, bestVol = i, grow, vol
		}
	}
	return best
}

// removeOverlapping deletes every record overlapping r using swap-with-last
// and returns how many were removed.
func (n *node) removeOverlapping(r geom.Rect) int {
	removed := 0
	for i := 0; i < len(n.records); {
		if !n.records[i].rect.Overlaps(r) {
			i++
			continue
		}
		last := len(n.records) - 1
		n.records[i] = n.records[last]
		n.records[last] = record{}
		n.records = n.records[:last]
		removed++
	}
	return removed
}

// nodeSegment is a fixed-size block of node slots.
type nodeSegment [nodeSegmentSize]atomic.Pointer[node]

// nodeTable is the arena that owns every node of a tree. Ids are handed out
// monotonically and never reused; the table only grows.
type nodeTable struct {
	segments atomic.Pointer[[]*nodeSegment]
	growMu   sync.Mutex
	last     atomic.Uint32
}

func newNodeTable() *nodeTable {
	t := &nodeTable{}
	segs := make([]*nodeSegment, 0, 4)
	t.segments.Store(&segs)
	return t
}

// alloc creates an empty node at the given level and publishes it.
func (t *nodeTable) alloc(level, capacity int) (*node, error) {
	id := t.last.Add(1)
	if id == uint32(nilNode) {
		return nil, ErrTooManyNodes
	}

	n := &node{
		id:      nodeID(id),
		level:   level,
		records: make([]record, 0, capacity),
		offset:  -1,
	}

	t.grow(nodeID(id))
	segs := *t.segments.Load()
	segs[id>>nodeSegmentBits][id&nodeSegmentMask].Store(n)

	return n, nil
}

// get returns the node with the given id, or nil.
func (t *nodeTable) get(id nodeID) *node {
	segs := *t.segments.Load()
	idx := int(id >> nodeSegmentBits)
	if idx >= len(segs) {
		return nil
	}
	return segs[idx][id&nodeSegmentMask].Load()
}

// len returns the number of allocated nodes.
func (t *nodeTable) len() int {
	return int(t.last.Load())
}

func (t *nodeTable) grow(id nodeID) {
	idx := int(id >> nodeSegmentBits)

	if segs := *t.segments.Load(); idx < len(segs) {
		return
	}

	t.growMu.Lock()
	defer t.growMu.Unlock()

	segs := *t.segments.Load()
	if idx < len(segs) {
		return
	}

	grown := make([]*nodeSegment, len(segs), idx+1)
	copy(grown, segs)
	for len(grown) <= idx {
		grown = append(grown, new(nodeSegment))
	}
	t.segments.Store(&grown)
}
