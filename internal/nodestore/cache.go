package nodestore

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/crtree/internal/resource"
)

// pageCache is an LRU of decoded pages keyed by page id (offset / PageSize).
// Every entry is charged pageSize bytes against the capacity and, when set,
// against the resource controller's memory budget.
type pageCache struct {
	mu        sync.Mutex
	capacity  int64
	size      int64
	pageSize  int64
	items     map[uint64]*list.Element
	evictList *list.List
	rc        *resource.Controller

	hits   atomic.Int64
	misses atomic.Int64
}

type cacheEntry struct {
	id   uint64
	page *Page
}

func newPageCache(capacity int64, pageSize int, rc *resource.Controller) *pageCache {
	return &pageCache{
		capacity:  capacity,
		pageSize:  int64(pageSize),
		items:     make(map[uint64]*list.Element),
		evictList: list.New(),
		rc:        rc,
	}
}

func (c *pageCache) get(id uint64) (*Page, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[id]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(ent)
		return ent.Value.(*cacheEntry).page, true
	}
	c.misses.Add(1)
	return nil, false
}

func (c *pageCache) set(id uint64, p *Page) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[id]; ok {
		c.evictList.MoveToFront(ent)
		ent.Value.(*cacheEntry).page = p
		return
	}

	if c.pageSize > c.capacity {
		return
	}

	for c.size+c.pageSize > c.capacity {
		ent := c.evictList.Back()
		if ent == nil {
			break
		}
		c.removeElement(ent)
	}

	// A full global budget means the page is simply not cached.
	if c.rc != nil && c.rc.AcquireMemory(c.pageSize) != nil {
		return
	}

	c.items[id] = c.evictList.PushFront(&cacheEntry{id: id, page: p})
	c.size += c.pageSize
}

func (c *pageCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.evictList.Len() > 0 {
		c.removeElement(c.evictList.Back())
	}
}

func (c *pageCache) removeElement(e *list.Element) {
	c.evictList.Remove(e)
	delete(c.items, e.Value.(*cacheEntry).id)
	c.size -= c.pageSize
	if c.rc != nil {
		c.rc.ReleaseMemory(c.pageSize)
	}
}

func (c *pageCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

func (c *pageCache) stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
