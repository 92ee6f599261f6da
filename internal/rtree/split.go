package rtree

import (
	"math"

	"github.com/hupe1980/crtree/internal/geom"
)

// partition assigns MaxRecords+1 rectangles to two groups using the
// quadratic-cost heuristic.
type partition struct {
	rects   []geom.Rect
	group   []int
	count   [2]int
	cover   [2]geom.Rect
	volume  [2]float64
	minFill int
}

// quadraticSplit returns the group (0 or 1) of every rectangle. Each group
// receives at least minFill entries.
func quadraticSplit(rects []geom.Rect, minFill int) []int {
	p := &partition{
		rects:   rects,
		group:   make([]int, len(rects)),
		minFill: minFill,
	}
	for i := range p.group {
		p.group[i] = -1
	}

	s0, s1 := p.pickSeeds()
	p.classify(s0, 0)
	p.classify(s1, 1)

	total := len(rects)
	limit := total - minFill

	for p.count[0]+p.count[1] < total && p.count[0] < limit && p.count[1] < limit {
		i, g := p.pickNext()
		p.classify(i, g)
	}

	if p.count[0]+p.count[1] < total {
		rest := 0
		if p.count[0] >= limit {
			rest = 1
		}
		for i := range rects {
			if p.group[i] < 0 {
				p.classify(i, rest)
			}
		}
	}

	return p.group
}

// pickSeeds returns the pair wasting the most volume when covered together.
// Ties keep the first pair in index order.
func (p *partition) pickSeeds() (int, int) {
	s0, s1 := 0, 1
	worst := math.Inf(-1)
	for a := 0; a < len(p.rects)-1; a++ {
		for b := a + 1; b < len(p.rects); b++ {
			if w := geom.Waste(p.rects[a], p.rects[b]); w > worst {
				worst, s0, s1 = w, a, b
			}
		}
	}
	return s0, s1
}

// pickNext selects the unassigned rectangle with the strongest preference
// for one group and that group.
func (p *partition) pickNext() (int, int) {
	chosen, chosenGroup := -1, 0
	biggest := -1.0

	for i, r := range p.rects {
		if p.group[i] >= 0 {
			continue
		}

		g0 := p.cover[0].Union(r).Volume() - p.volume[0]
		g1 := p.cover[1].Union(r).Volume() - p.volume[1]

		g := 0
		switch {
		case g1 < g0:
			g = 1
		case g0 == g1 && p.count[1] < p.count[0]:
			g = 1
		}

		diff := math.Abs(g1 - g0)
		if diff > biggest || (diff == biggest && p.count[g] < p.count[chosenGroup]) {
			chosen, chosenGroup, biggest = i, g, diff
		}
	}

	if chosen < 0 {
		// Growth was not comparable (overflowing volumes); take the first
		// unassigned entry for the smaller group.
		for i := range p.group {
			if p.group[i] < 0 {
				chosen = i
				break
			}
		}
		if p.count[1] < p.count[0] {
			chosenGroup = 1
		}
	}

	return chosen, chosenGroup
}

func (p *partition) classify(i, g int) {
	p.group[i] = g
	if p.count[g] == 0 {
		p.cover[g] = p.rects[i]
	} else {
		p.cover[g] = p.cover[g].Union(p.rects[i])
	}
	p.volume[g] = p.cover[g].Volume()
	p.count[g]++
}

// splitNode splits the write-locked node n, which is full, after adding
// extra. n keeps group 0 under a fresh version; the returned sibling takes
// group 1 and inherits n's previous version, so a reader holding the old
// version follows n.sibling to the moved records. The sibling is returned
// write-locked.
func (t *Tree) splitNode(n *node, extra record) (*node, error) {
	sib, err := t.nodes.alloc(n.level, t.maxRecords)
	if err != nil {
		return nil, err
	}
	sib.mu.Lock()

	all := make([]record, 0, len(n.records)+1)
	all = append(all, n.records...)
	all = append(all, extra)

	rects := make([]geom.Rect, len(all))
	for i := range all {
		rects[i] = all[i].rect
	}
	groups := quadraticSplit(rects, t.minRecords)

	clear(n.records)
	n.records = n.records[:0]
	for i, g := range groups {
		if g == 0 {
			n.records = append(n.records, all[i])
		} else {
			sib.records = append(sib.records, all[i])
		}
	}

	sib.version = n.version
	n.version = t.clock.next()
	sib.sibling = n.sibling
	n.sibling = sib.id
	sib.parent = n.parent

	t.splits.Add(1)
	t.dirty.add(n.id, sib.id)

	return sib, nil
}
