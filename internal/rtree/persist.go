package rtree

import (
	"context"
	"fmt"

	"github.com/hupe1980/crtree/internal/nodestore"
)

// Store persists node pages. See nodestore.FileStore.
type Store interface {
	Load(ctx context.Context, offset int64) (*nodestore.Page, error)
	Save(ctx context.Context, page *nodestore.Page) (int64, error)
}

// Save writes the tree to s in post-order, so every child offset is known
// before its parent page is written. Only nodes modified since the previous
// Save, nodes never saved and nodes whose child offsets moved are written.
// The root always lands at offset 0. Save returns the number of pages
// written and expects a quiescent tree.
func (t *Tree) Save(ctx context.Context, s Store) (int, error) {
	ref := t.root.Load()

	written := 0
	if _, err := t.saveNode(ctx, s, ref.id, true, &written); err != nil {
		return written, err
	}

	t.dirty.clear()
	return written, nil
}

func (t *Tree) saveNode(ctx context.Context, s Store, id nodeID, isRoot bool, written *int) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n := t.nodes.get(id)
	if n == nil {
		return 0, corrupt(id, "dangling node reference")
	}

	var offsets map[nodeID]int64
	if !n.isLeaf() {
		n.mu.RLock()
		children := make([]nodeID, len(n.records))
		for i := range n.records {
			children[i] = n.records[i].child
		}
		n.mu.RUnlock()

		offsets = make(map[nodeID]int64, len(children))
		for _, c := range children {
			off, err := t.saveNode(ctx, s, c, false, written)
			if err != nil {
				return 0, err
			}
			offsets[c] = off
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	moved := false
	for i := range n.records {
		if off, ok := offsets[n.records[i].child]; ok && n.records[i].offset != off {
			n.records[i].offset = off
			moved = true
		}
	}

	wasRoot := n.offset == 0
	if !moved && !t.dirty.contains(n.id) && n.offset >= 0 && wasRoot == isRoot {
		return n.offset, nil
	}

	page := n.page(isRoot)
	if !isRoot && wasRoot {
		// The old root slot now belongs to the new root.
		page.Offset = -1
	}

	off, err := s.Save(ctx, page)
	if err != nil {
		return 0, fmt.Errorf("rtree: save node %d: %w", n.id, err)
	}
	n.offset = off
	*written++

	return off, nil
}

// page renders the locked node as a store page.
func (n *node) page(isRoot bool) *nodestore.Page {
	p := &nodestore.Page{
		Offset:  n.offset,
		Level:   n.level,
		Version: n.version,
		Root:    isRoot,
		Records: make([]nodestore.PageRecord, len(n.records)),
	}
	for i, rec := range n.records {
		p.Records[i] = nodestore.PageRecord{
			Rect:    rec.rect,
			Offset:  rec.offset,
			Version: rec.version,
			Payload: uint64(rec.payload),
		}
	}
	return p
}

// Load rebuilds a tree from the pages in s, breadth first from the root at
// offset 0. The version clock restarts above the highest loaded version.
func Load(ctx context.Context, s Store, optFns ...func(o *Options)) (*Tree, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	t, err := newTree(opts)
	if err != nil {
		return nil, err
	}

	rootPage, err := s.Load(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("rtree: load root: %w", err)
	}
	if !rootPage.Root {
		return nil, fmt.Errorf("%w: page at offset 0 is not a root", ErrCorruptIndex)
	}

	root, err := t.fromPage(rootPage, nilNode)
	if err != nil {
		return nil, err
	}

	var (
		maxVersion = root.version
		size       int64
		queue      = []*node{root}
	)

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n := queue[0]
		queue = queue[1:]

		if n.isLeaf() {
			size += int64(len(n.records))
			continue
		}

		for i := range n.records {
			page, err := s.Load(ctx, n.records[i].offset)
			if err != nil {
				return nil, fmt.Errorf("rtree: load child of node %d: %w", n.id, err)
			}
			if page.Level != n.level-1 {
				return nil, corrupt(n.id, "child page at %d has level %d under level %d", page.Offset, page.Level, n.level)
			}

			child, err := t.fromPage(page, n.id)
			if err != nil {
				return nil, err
			}
			n.records[i].child = child.id
			maxVersion = max(maxVersion, child.version)
			queue = append(queue, child)
		}
	}

	t.clock.reset(maxVersion)
	t.size.Store(size)
	t.root.Store(&rootRef{id: root.id, version: root.version})

	return t, nil
}

func (t *Tree) fromPage(p *nodestore.Page, parent nodeID) (*node, error) {
	if len(p.Records) > t.maxRecords {
		return nil, fmt.Errorf("%w: page at %d holds %d records, capacity %d",
			ErrCorruptIndex, p.Offset, len(p.Records), t.maxRecords)
	}
	if p.Level < 0 {
		return nil, fmt.Errorf("%w: page at %d has level %d", ErrCorruptIndex, p.Offset, p.Level)
	}

	n, err := t.nodes.alloc(p.Level, t.maxRecords)
	if err != nil {
		return nil, err
	}

	n.version = p.Version
	n.parent = parent
	n.offset = p.Offset
	for _, r := range p.Records {
		n.records = append(n.records, record{
			rect:    r.Rect,
			version: r.Version,
			offset:  r.Offset,
			payload: Payload(r.Payload),
		})
	}

	return n, nil
}
