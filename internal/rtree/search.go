package rtree

import (
	"github.com/hupe1980/crtree/internal/geom"
)

// visit is a pending work item: a node id and the version the referencing
// record expected it to carry.
type visit struct {
	id      nodeID
	version uint64
}

// Search returns every leaf record overlapping r. Records inserted or
// deleted concurrently may or may not be observed.
func (t *Tree) Search(r geom.Rect) ([]Entry, error) {
	var out []Entry
	err := t.Scan(r, func(e Entry) bool {
		out = append(out, e)
		return true
	})
	return out, err
}

// SearchFirst returns the first leaf record found overlapping r.
func (t *Tree) SearchFirst(r geom.Rect) (Entry, bool, error) {
	var (
		first Entry
		found bool
	)
	err := t.Scan(r, func(e Entry) bool {
		first, found = e, true
		return false
	})
	return first, found, err
}

// Scan calls fn for each leaf record overlapping r until fn returns false.
// fn runs without any node lock held.
func (t *Tree) Scan(r geom.Rect, fn func(Entry) bool) error {
	ref := t.root.Load()
	stack := []visit{{id: ref.id, version: ref.version}}

	var matches []Entry

	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := t.nodes.get(v.id)
		if n == nil {
			return corrupt(v.id, "dangling node reference")
		}

		n.mu.RLock()

		if n.version != v.version {
			if n.sibling == nilNode {
				n.mu.RUnlock()
				return corrupt(n.id, "sibling chain ends before version %d", v.version)
			}
			stack = append(stack, visit{id: n.sibling, version: v.version})
		}

		if !n.isLeaf() {
			stack = pushOverlapping(stack, n, r)
			n.mu.RUnlock()
			continue
		}

		matches = matches[:0]
		for i := range n.records {
			if n.records[i].rect.Overlaps(r) {
				matches = append(matches, Entry{Rect: n.records[i].rect, Payload: n.records[i].payload})
			}
		}
		n.mu.RUnlock()

		for _, e := range matches {
			if !fn(e) {
				return nil
			}
		}
	}

	return nil
}

// pushOverlapping queues the children of the locked internal node n whose
// rectangles overlap r, each with the version stored in its record.
func pushOverlapping(stack []visit, n *node, r geom.Rect) []visit {
	for i := range n.records {
		if n.records[i].rect.Overlaps(r) {
			stack = append(stack, visit{id: n.records[i].child, version: n.records[i].version})
		}
	}
	return stack
}
