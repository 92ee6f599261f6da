package rtree

import (
	"bufio"
	"fmt"
	"io"
)

// Dump writes every node level by level, root first. Each node is printed
// with its level, version, parent and records. Intended for a quiescent
// tree.
func (t *Tree) Dump(w io.Writer) error {
	bw := bufio.NewWriter(w)

	level := []nodeID{t.root.Load().id}
	for len(level) > 0 {
		var next []nodeID
		for _, id := range level {
			n := t.nodes.get(id)
			if n == nil {
				return corrupt(id, "dangling node reference")
			}

			n.mu.RLock()
			fmt.Fprintf(bw, "node %d level=%d version=%d parent=%d sibling=%d count=%d\n",
				n.id, n.level, n.version, n.parent, n.sibling, len(n.records))
			for i, rec := range n.records {
				if n.isLeaf() {
					fmt.Fprintf(bw, "  %d: %s payload=%d\n", i, rec.rect, rec.payload)
					continue
				}
				fmt.Fprintf(bw, "  %d: %s child=%d version=%d\n", i, rec.rect, rec.child, rec.version)
				next = append(next, rec.child)
			}
			n.mu.RUnlock()
		}
		fmt.Fprintln(bw)
		level = next
	}

	return bw.Flush()
}
