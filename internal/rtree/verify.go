package rtree

// Verify checks the structural invariants of a quiescent tree: child levels,
// record counts, cover and version agreement between parents and children,
// version uniqueness, parent reachability and the record count. The first
// violation is returned as a *CorruptError.
func (t *Tree) Verify() error {
	ref := t.root.Load()
	root := t.nodes.get(ref.id)
	if root == nil {
		return corrupt(ref.id, "dangling root reference")
	}

	root.mu.RLock()
	rootVersion, rootParent := root.version, root.parent
	root.mu.RUnlock()

	if rootVersion != ref.version {
		return corrupt(root.id, "root version %d, published %d", rootVersion, ref.version)
	}
	if rootParent != nilNode {
		return corrupt(root.id, "root has parent %d", rootParent)
	}

	var (
		seen    = make(map[uint64]nodeID)
		records int64
		clk     = t.clock.current()
		queue   = []nodeID{root.id}
	)

	for len(queue) > 0 {
		n := t.nodes.get(queue[0])
		queue = queue[1:]

		if err := t.verifyNode(n, seen, clk, &queue, &records); err != nil {
			return err
		}
	}

	if size := t.size.Load(); size != records {
		return corrupt(ref.id, "size counter %d, leaves hold %d", size, records)
	}

	return nil
}

func (t *Tree) verifyNode(n *node, seen map[uint64]nodeID, clk uint64, queue *[]nodeID, records *int64) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.version > clk {
		return corrupt(n.id, "version %d ahead of clock %d", n.version, clk)
	}
	if other, dup := seen[n.version]; dup {
		return corrupt(n.id, "version %d shared with node %d", n.version, other)
	}
	seen[n.version] = n.id

	if len(n.records) > t.maxRecords {
		return corrupt(n.id, "%d records exceed capacity %d", len(n.records), t.maxRecords)
	}

	if n.isLeaf() {
		*records += int64(len(n.records))
		return nil
	}

	if len(n.records) == 0 {
		return corrupt(n.id, "internal node without records")
	}

	for i, rec := range n.records {
		c := t.nodes.get(rec.child)
		if c == nil {
			return corrupt(n.id, "record %d references missing node %d", i, rec.child)
		}

		c.mu.RLock()
		level, version, parent := c.level, c.version, c.parent
		cover, ok := c.cover()
		c.mu.RUnlock()

		if level != n.level-1 {
			return corrupt(n.id, "child %d at level %d under level %d", c.id, level, n.level)
		}
		if version != rec.version {
			return corrupt(n.id, "record %d version %d, child %d has %d", i, rec.version, c.id, version)
		}
		if ok && cover != rec.rect {
			return corrupt(n.id, "record %d rect %s, child %d covers %s", i, rec.rect, c.id, cover)
		}
		if !t.reachable(parent, n.id) {
			return corrupt(c.id, "holder %d not reachable from parent %d", n.id, parent)
		}

		*queue = append(*queue, rec.child)
	}

	return nil
}

// reachable reports whether target lies on the sibling chain starting at id.
func (t *Tree) reachable(id, target nodeID) bool {
	for id != nilNode {
		if id == target {
			return true
		}
		n := t.nodes.get(id)
		if n == nil {
			return false
		}
		id = n.siblingID()
	}
	return false
}

func (n *node) siblingID() nodeID {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.sibling
}
