package rtree

import (
	"github.com/hupe1980/crtree/internal/geom"
)

// Insert adds a leaf record for r. The rectangle must be valid.
func (t *Tree) Insert(r geom.Rect, p Payload) error {
	if err := r.Validate(); err != nil {
		return err
	}

	leaf, err := t.findLeaf(r)
	if err != nil {
		return err
	}

	rec := record{rect: r, payload: p, offset: -1}

	if len(leaf.records) < t.maxRecords {
		before, had := leaf.cover()
		leaf.records = append(leaf.records, rec)
		t.size.Add(1)
		t.dirty.add(leaf.id)

		if coverChanged(leaf, before, had) {
			return t.adjustCover(leaf)
		}
		leaf.mu.Unlock()
		return nil
	}

	sib, err := t.splitNode(leaf, rec)
	if err != nil {
		leaf.mu.Unlock()
		return err
	}
	t.size.Add(1)

	return t.propagateSplit(leaf, sib)
}

// coverChanged reports whether n's cover differs from a previously observed
// one. A node that became empty has no cover and reports no change.
func coverChanged(n *node, before geom.Rect, had bool) bool {
	after, ok := n.cover()
	if !ok {
		return false
	}
	return !had || after != before
}

// recordFor builds the parent record describing the locked, non-empty child.
func recordFor(child *node) record {
	c, _ := child.cover()
	return record{rect: c, child: child.id, version: child.version, offset: child.offset}
}

// propagateSplit installs q, freshly split off p, one level up. Both are
// write-locked on entry. Locks are taken bottom-up: the parent is locked
// while p and q are still held, and the children are released once the
// parent records are updated. All locks are released on return.
func (t *Tree) propagateSplit(p, q *node) error {
	for {
		if p.parent == nilNode {
			return t.growRoot(p, q)
		}

		parent, idx, err := t.lockParent(p.parent, p.id)
		if err != nil {
			q.mu.Unlock()
			p.mu.Unlock()
			return err
		}

		before, _ := parent.cover()
		parent.records[idx] = recordFor(p)
		p.parent = parent.id
		t.dirty.add(parent.id)

		rec := recordFor(q)

		if len(parent.records) < t.maxRecords {
			parent.records = append(parent.records, rec)
			q.parent = parent.id
			q.mu.Unlock()
			p.mu.Unlock()

			if after, _ := parent.cover(); after != before {
				return t.adjustCover(parent)
			}
			parent.mu.Unlock()
			return nil
		}

		psib, err := t.splitNode(parent, rec)
		if err != nil {
			q.mu.Unlock()
			p.mu.Unlock()
			parent.mu.Unlock()
			return err
		}

		for _, c := range [2]*node{p, q} {
			if psib.indexOf(c.id) >= 0 {
				c.parent = psib.id
			} else {
				c.parent = parent.id
			}
		}
		q.mu.Unlock()
		p.mu.Unlock()

		p, q = parent, psib
	}
}

// growRoot creates a new root above the split root p and its new sibling q
// and publishes it while both are still locked.
func (t *Tree) growRoot(p, q *node) error {
	root, err := t.nodes.alloc(p.level+1, t.maxRecords)
	if err != nil {
		q.mu.Unlock()
		p.mu.Unlock()
		return err
	}

	root.mu.Lock()
	root.version = t.clock.next()
	root.records = append(root.records, recordFor(p), recordFor(q))
	p.parent = root.id
	q.parent = root.id

	t.root.Store(&rootRef{id: root.id, version: root.version})
	t.rootSplits.Add(1)
	t.dirty.add(root.id)

	root.mu.Unlock()
	q.mu.Unlock()
	p.mu.Unlock()

	return nil
}

// adjustCover pushes the cover of the write-locked node n up the tree until
// an ancestor's cover is unchanged or the root is reached. n is released on
// return.
func (t *Tree) adjustCover(n *node) error {
	for {
		if n.parent == nilNode {
			n.mu.Unlock()
			return nil
		}

		parent, idx, err := t.lockParent(n.parent, n.id)
		if err != nil {
			n.mu.Unlock()
			return err
		}
		n.parent = parent.id

		before, _ := parent.cover()
		if c, ok := n.cover(); ok {
			parent.records[idx].rect = c
		}
		parent.records[idx].version = n.version
		t.dirty.add(parent.id)
		n.mu.Unlock()

		if after, _ := parent.cover(); after == before {
			parent.mu.Unlock()
			return nil
		}
		n = parent
	}
}
