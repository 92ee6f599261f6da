package rtree

import "sync/atomic"

// clock hands out version stamps. Stamps are strictly increasing and never
// reused for the lifetime of a tree.
type clock struct {
	v atomic.Uint64
}

func (c *clock) next() uint64 { return c.v.Add(1) }

func (c *clock) current() uint64 { return c.v.Load() }

// reset restarts the clock so the next stamp is above v.
func (c *clock) reset(v uint64) { c.v.Store(v) }
