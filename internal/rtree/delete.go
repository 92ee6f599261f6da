package rtree

import (
	"github.com/hupe1980/crtree/internal/geom"
)

// Delete removes every record overlapping r from the leaf on r's lookup
// path and returns how many were removed. Records of other leaves are not
// touched; use DeleteRange for an exhaustive delete. Underfull or empty
// leaves are left in place.
func (t *Tree) Delete(r geom.Rect) (int, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}

	leaf, err := t.findLeaf(r)
	if err != nil {
		return 0, err
	}

	return t.removeFromLeaf(leaf, r)
}

// removeFromLeaf deletes the records of the write-locked leaf that overlap r
// and releases the leaf, propagating a shrunken cover.
func (t *Tree) removeFromLeaf(leaf *node, r geom.Rect) (int, error) {
	before, had := leaf.cover()

	removed := leaf.removeOverlapping(r)
	if removed == 0 {
		leaf.mu.Unlock()
		return 0, nil
	}
	t.size.Add(int64(-removed))
	t.dirty.add(leaf.id)

	if coverChanged(leaf, before, had) {
		return removed, t.adjustCover(leaf)
	}
	leaf.mu.Unlock()
	return removed, nil
}

// DeleteRange removes every record overlapping r from every leaf of the tree
// and returns how many were removed. Leaves are visited one at a time, each
// under its exclusive lock.
func (t *Tree) DeleteRange(r geom.Rect) (int, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}

	ref := t.root.Load()
	stack := []visit{{id: ref.id, version: ref.version}}
	total := 0

	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := t.nodes.get(v.id)
		if n == nil {
			return total, corrupt(v.id, "dangling node reference")
		}

		excl := n.isLeaf()
		n.lock(excl)

		if n.version != v.version {
			if n.sibling == nilNode {
				n.unlock(excl)
				return total, corrupt(n.id, "sibling chain ends before version %d", v.version)
			}
			stack = append(stack, visit{id: n.sibling, version: v.version})
		}

		if !excl {
			stack = pushOverlapping(stack, n, r)
			n.mu.RUnlock()
			continue
		}

		removed, err := t.removeFromLeaf(n, r)
		total += removed
		if err != nil {
			return total, err
		}
	}

	return total, nil
}
