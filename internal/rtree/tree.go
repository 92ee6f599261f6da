package rtree

import (
	"fmt"
	"sync/atomic"

	"github.com/hupe1980/crtree/internal/geom"
)

const (
	// DefaultMaxRecords is the default node fan-out.
	DefaultMaxRecords = 6

	// minMaxRecords is the smallest fan-out the quadratic split can serve.
	minMaxRecords = 2

	// maxMaxRecords bounds the fan-out so a node fits a single store page.
	maxMaxRecords = 255
)

// Options configures a Tree.
type Options struct {
	// MaxRecords is the node capacity. MinRecords is MaxRecords/2.
	MaxRecords int
}

// DefaultOptions contains the default options for a Tree.
var DefaultOptions = Options{
	MaxRecords: DefaultMaxRecords,
}

// rootRef is the published root reference. It is immutable and replaced
// wholesale when the root splits.
type rootRef struct {
	id      nodeID
	version uint64
}

// Entry is a leaf record as seen by callers.
type Entry struct {
	Rect    geom.Rect
	Payload Payload
}

// Tree is a concurrent R-tree. Insert, Delete, DeleteRange, Search and
// SearchFirst may be called from any number of goroutines. Dump, Verify and
// Save expect a quiescent tree.
type Tree struct {
	opts       Options
	maxRecords int
	minRecords int

	nodes *nodeTable
	clock clock
	root  atomic.Pointer[rootRef]
	dirty *dirtySet

	size       atomic.Int64
	splits     atomic.Uint64
	rootSplits atomic.Uint64
}

// New creates an empty tree consisting of a single leaf root.
func New(optFns ...func(o *Options)) (*Tree, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	t, err := newTree(opts)
	if err != nil {
		return nil, err
	}

	root, err := t.nodes.alloc(0, t.maxRecords)
	if err != nil {
		return nil, err
	}
	root.version = t.clock.next()
	t.root.Store(&rootRef{id: root.id, version: root.version})
	t.dirty.add(root.id)

	return t, nil
}

func newTree(opts Options) (*Tree, error) {
	if opts.MaxRecords < minMaxRecords || opts.MaxRecords > maxMaxRecords {
		return nil, &ErrInvalidMaxRecords{MaxRecords: opts.MaxRecords}
	}

	return &Tree{
		opts:       opts,
		maxRecords: opts.MaxRecords,
		minRecords: opts.MaxRecords / 2,
		nodes:      newNodeTable(),
		dirty:      newDirtySet(),
	}, nil
}

// ErrInvalidMaxRecords is returned by New for an unusable fan-out.
type ErrInvalidMaxRecords struct {
	MaxRecords int
}

func (e *ErrInvalidMaxRecords) Error() string {
	return fmt.Sprintf("rtree: max records %d out of range [%d, %d]", e.MaxRecords, minMaxRecords, maxMaxRecords)
}

// MaxRecords returns the node capacity.
func (t *Tree) MaxRecords() int { return t.maxRecords }

// MinRecords returns the split fill bound.
func (t *Tree) MinRecords() int { return t.minRecords }

// Len returns the number of leaf records.
func (t *Tree) Len() int { return int(t.size.Load()) }

// Height returns the number of levels, a single leaf root being height 1.
func (t *Tree) Height() int {
	ref := t.root.Load()
	return t.nodes.get(ref.id).level + 1
}

// Stats is a point-in-time summary of a tree.
type Stats struct {
	Records    int64
	Nodes      int
	Height     int
	Splits     uint64
	RootSplits uint64
	Clock      uint64
	Dirty      uint64
}

// Stats returns counters describing the tree.
func (t *Tree) Stats() Stats {
	return Stats{
		Records:    t.size.Load(),
		Nodes:      t.nodes.len(),
		Height:     t.Height(),
		Splits:     t.splits.Load(),
		RootSplits: t.rootSplits.Load(),
		Clock:      t.clock.current(),
		Dirty:      t.dirty.count(),
	}
}

// findLeaf descends from the root to the leaf on the insertion path for r
// and returns it write-locked. Internal nodes are read-locked one at a time.
func (t *Tree) findLeaf(r geom.Rect) (*node, error) {
	ref := t.root.Load()
	id, expected := ref.id, ref.version

	for {
		n, err := t.lockVersion(id, expected)
		if err != nil {
			return nil, err
		}
		if n.isLeaf() {
			return n, nil
		}
		if len(n.records) == 0 {
			n.mu.RUnlock()
			return nil, corrupt(n.id, "internal node without records")
		}

		i := n.chooseSubtree(r)
		id, expected = n.records[i].child, n.records[i].version
		n.mu.RUnlock()
	}
}

// lockVersion locks the node carrying the expected version, following the
// sibling chain from id. Leaves are locked exclusively, internal nodes shared.
func (t *Tree) lockVersion(id nodeID, expected uint64) (*node, error) {
	for {
		n := t.nodes.get(id)
		if n == nil {
			return nil, corrupt(id, "dangling node reference")
		}

		excl := n.isLeaf()
		n.lock(excl)
		if n.version == expected {
			return n, nil
		}

		next := n.sibling
		n.unlock(excl)
		if next == nilNode {
			return nil, corrupt(id, "sibling chain ends before version %d", expected)
		}
		id = next
	}
}

// lockParent write-locks the node holding the record for child, starting at
// the possibly stale parent id start and walking right along its siblings.
// Records only ever move rightward on a split, so the walk is complete.
func (t *Tree) lockParent(start, child nodeID) (*node, int, error) {
	for id := start; id != nilNode; {
		n := t.nodes.get(id)
		if n == nil {
			return nil, -1, corrupt(id, "dangling parent reference")
		}

		n.mu.Lock()
		if i := n.indexOf(child); i >= 0 {
			return n, i, nil
		}

		next := n.sibling
		n.mu.Unlock()
		id = next
	}

	return nil, -1, corrupt(child, "no parent record found from node %d", start)
}
