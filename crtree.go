package crtree

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/crtree/blobstore"
	"github.com/hupe1980/crtree/internal/geom"
	"github.com/hupe1980/crtree/internal/nodestore"
	"github.com/hupe1980/crtree/internal/resource"
	"github.com/hupe1980/crtree/internal/rtree"
	"github.com/hupe1980/crtree/snapshot"
)

// Dims is the number of coordinates of every rectangle.
const Dims = geom.Dims

// Entry is a stored rectangle and its payload.
type Entry struct {
	Min     [Dims]float64
	Max     [Dims]float64
	Payload uint64
}

// Stats describes the current state of an Index.
type Stats struct {
	Records    int64
	Nodes      int
	Height     int
	Splits     uint64
	RootSplits uint64
	Clock      uint64
	DirtyNodes uint64

	PageCacheHits   int64
	PageCacheMisses int64
	MemoryUsage     int64
}

// Index is a concurrent spatial index.
//
// Insert, Delete, DeleteRange, Search and SearchFirst run concurrently with
// each other. Save, Load, Restore, Backup, Dump and Verify wait for them to
// drain and block them while running.
type Index struct {
	// mu quiesces the tree for whole-tree operations. Point operations only
	// take it shared; the tree synchronizes them itself.
	mu     sync.RWMutex
	tree   *rtree.Tree
	store  *nodestore.FileStore
	rc     *resource.Controller
	closed bool

	poisoned atomic.Bool

	opts    options
	metrics MetricsCollector
	logger  *Logger
}

// New creates an empty index.
func New(optFns ...Option) (*Index, error) {
	opts := applyOptions(optFns)

	tree, err := rtree.New(func(o *rtree.Options) { o.MaxRecords = opts.maxRecords })
	if err != nil {
		return nil, translateError(err)
	}

	idx := &Index{
		tree:    tree,
		opts:    opts,
		metrics: opts.metricsCollector,
		logger:  opts.logger,
	}

	if l := opts.limits; l != nil {
		workers := l.MaxWorkers
		if workers <= 0 {
			workers = runtime.GOMAXPROCS(0)
		}
		idx.rc = resource.NewController(resource.Config{
			MemoryLimitBytes:   l.MemoryBytes,
			MaxWorkers:         int64(workers),
			IOLimitBytesPerSec: l.IOBytesPerSec,
		})
	}

	if opts.storePath != "" {
		store, err := nodestore.Open(opts.storePath, func(o *nodestore.Options) {
			o.MaxRecords = opts.maxRecords
			o.CacheBytes = opts.cacheBytes
			o.FS = opts.fsys
			o.ResourceController = idx.rc
		})
		if err != nil {
			return nil, fmt.Errorf("crtree: open node store: %w", err)
		}
		idx.store = store
		idx.logger = idx.logger.WithStore(opts.storePath)
	}

	return idx, nil
}

// Open creates an index backed by the page file at path and loads the tree
// saved there. A new or empty file yields an empty index.
func Open(ctx context.Context, path string, optFns ...Option) (*Index, error) {
	idx, err := New(append(optFns, WithStorePath(path))...)
	if err != nil {
		return nil, err
	}
	if idx.store.Empty() {
		return idx, nil
	}
	if err := idx.Load(ctx); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return idx, nil
}

func toRect(minCoords, maxCoords []float64) (geom.Rect, error) {
	for _, c := range [][]float64{minCoords, maxCoords} {
		if len(c) != Dims {
			return geom.Rect{}, &ErrDimensionMismatch{Expected: Dims, Actual: len(c)}
		}
	}
	r, err := geom.FromSlices(minCoords, maxCoords)
	if err != nil {
		return geom.Rect{}, translateError(err)
	}
	return r, nil
}

func toEntry(e rtree.Entry) Entry {
	return Entry{Min: e.Rect.Min, Max: e.Rect.Max, Payload: uint64(e.Payload)}
}

// acquire takes the shared lock for a point operation.
func (idx *Index) acquire(mutating bool) error {
	idx.mu.RLock()
	if idx.closed {
		idx.mu.RUnlock()
		return ErrClosed
	}
	if mutating && idx.poisoned.Load() {
		idx.mu.RUnlock()
		return ErrCorruptIndex
	}
	return nil
}

// fail translates err and poisons the index on corruption.
func (idx *Index) fail(err error) error {
	err = translateError(err)
	if errors.Is(err, ErrCorruptIndex) {
		idx.poisoned.Store(true)
	}
	return err
}

// Insert adds the rectangle [min, max] with payload. Coordinates must be
// finite and min[i] <= max[i].
func (idx *Index) Insert(ctx context.Context, minCoords, maxCoords []float64, payload uint64) error {
	start := time.Now()
	err := idx.insert(minCoords, maxCoords, payload)
	idx.metrics.RecordInsert(time.Since(start), err)
	idx.logger.LogInsert(ctx, payload, err)
	return err
}

func (idx *Index) insert(minCoords, maxCoords []float64, payload uint64) error {
	r, err := toRect(minCoords, maxCoords)
	if err != nil {
		return err
	}
	if !r.Finite() {
		return fmt.Errorf("%w: stored rectangles must be finite", ErrInvalidRect)
	}

	if err := idx.acquire(true); err != nil {
		return err
	}
	defer idx.mu.RUnlock()

	if err := idx.tree.Insert(r, rtree.Payload(payload)); err != nil {
		return idx.fail(err)
	}
	return nil
}

// Delete removes the records overlapping [min, max] from the leaf an insert
// of that rectangle would choose. Use DeleteRange to remove every
// overlapping record.
func (idx *Index) Delete(ctx context.Context, minCoords, maxCoords []float64) (int, error) {
	return idx.delete(ctx, minCoords, maxCoords, (*rtree.Tree).Delete)
}

// DeleteRange removes every record overlapping [min, max].
func (idx *Index) DeleteRange(ctx context.Context, minCoords, maxCoords []float64) (int, error) {
	return idx.delete(ctx, minCoords, maxCoords, (*rtree.Tree).DeleteRange)
}

func (idx *Index) delete(ctx context.Context, minCoords, maxCoords []float64, fn func(*rtree.Tree, geom.Rect) (int, error)) (removed int, err error) {
	start := time.Now()
	defer func() {
		idx.metrics.RecordDelete(removed, time.Since(start), err)
		idx.logger.LogDelete(ctx, removed, err)
	}()

	r, err := toRect(minCoords, maxCoords)
	if err != nil {
		return 0, err
	}
	if err := idx.acquire(true); err != nil {
		return 0, err
	}
	defer idx.mu.RUnlock()

	removed, err = fn(idx.tree, r)
	if err != nil {
		return removed, idx.fail(err)
	}
	return removed, nil
}

// Search returns every record overlapping [min, max]. Coordinates may be
// infinite, so math.Inf(-1) and math.Inf(1) select the whole space.
func (idx *Index) Search(ctx context.Context, minCoords, maxCoords []float64) ([]Entry, error) {
	start := time.Now()
	results, err := idx.search(minCoords, maxCoords)
	idx.metrics.RecordSearch(len(results), time.Since(start), err)
	idx.logger.LogSearch(ctx, len(results), err)
	return results, err
}

func (idx *Index) search(minCoords, maxCoords []float64) ([]Entry, error) {
	r, err := toRect(minCoords, maxCoords)
	if err != nil {
		return nil, err
	}
	if err := idx.acquire(false); err != nil {
		return nil, err
	}
	defer idx.mu.RUnlock()

	var out []Entry
	err = idx.tree.Scan(r, func(e rtree.Entry) bool {
		out = append(out, toEntry(e))
		return true
	})
	if err != nil {
		return nil, idx.fail(err)
	}
	return out, nil
}

// SearchFirst returns one record overlapping [min, max], if any.
func (idx *Index) SearchFirst(ctx context.Context, minCoords, maxCoords []float64) (Entry, bool, error) {
	start := time.Now()
	e, found, err := idx.searchFirst(minCoords, maxCoords)

	n := 0
	if found {
		n = 1
	}
	idx.metrics.RecordSearch(n, time.Since(start), err)
	idx.logger.LogSearch(ctx, n, err)
	return e, found, err
}

func (idx *Index) searchFirst(minCoords, maxCoords []float64) (Entry, bool, error) {
	r, err := toRect(minCoords, maxCoords)
	if err != nil {
		return Entry{}, false, err
	}
	if err := idx.acquire(false); err != nil {
		return Entry{}, false, err
	}
	defer idx.mu.RUnlock()

	e, found, err := idx.tree.SearchFirst(r)
	if err != nil {
		return Entry{}, false, idx.fail(err)
	}
	return toEntry(e), found, nil
}

// exclusive takes the quiescing lock.
func (idx *Index) exclusive() error {
	idx.mu.Lock()
	if idx.closed {
		idx.mu.Unlock()
		return ErrClosed
	}
	return nil
}

// Dump writes every node level by level to w.
func (idx *Index) Dump(w io.Writer) error {
	if err := idx.exclusive(); err != nil {
		return err
	}
	defer idx.mu.Unlock()

	return idx.tree.Dump(w)
}

// Verify checks the structural invariants of the tree.
func (idx *Index) Verify() error {
	if err := idx.exclusive(); err != nil {
		return err
	}
	defer idx.mu.Unlock()

	if err := idx.tree.Verify(); err != nil {
		return idx.fail(err)
	}
	return nil
}

// Stats returns counters describing the index.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	ts := idx.tree.Stats()
	s := Stats{
		Records:     ts.Records,
		Nodes:       ts.Nodes,
		Height:      ts.Height,
		Splits:      ts.Splits,
		RootSplits:  ts.RootSplits,
		Clock:       ts.Clock,
		DirtyNodes:  ts.Dirty,
		MemoryUsage: idx.rc.MemoryUsage(),
	}
	if idx.store != nil && !idx.closed {
		s.PageCacheHits, s.PageCacheMisses = idx.store.Stats()
	}
	return s
}

// Save writes every node changed since the last Save or Load to the node
// store and syncs it. It returns the number of pages written.
func (idx *Index) Save(ctx context.Context) (pages int, err error) {
	start := time.Now()
	defer func() {
		idx.metrics.RecordSave(pages, time.Since(start), err)
		idx.logger.LogSave(ctx, pages, err)
	}()

	if err := idx.exclusive(); err != nil {
		return 0, err
	}
	defer idx.mu.Unlock()

	if idx.store == nil {
		return 0, ErrNoStore
	}

	pages, err = idx.tree.Save(ctx, idx.store)
	if err != nil {
		return pages, translateError(err)
	}
	if err := idx.store.Sync(); err != nil {
		return pages, fmt.Errorf("crtree: sync node store: %w", err)
	}
	return pages, nil
}

// Load replaces the in-memory tree with the one saved in the node store.
func (idx *Index) Load(ctx context.Context) (err error) {
	start := time.Now()
	records := 0
	defer func() {
		idx.metrics.RecordLoad(records, time.Since(start), err)
		idx.logger.LogLoad(ctx, records, err)
	}()

	if err := idx.exclusive(); err != nil {
		return err
	}
	defer idx.mu.Unlock()

	if idx.store == nil {
		return ErrNoStore
	}

	tree, err := rtree.Load(ctx, idx.store, func(o *rtree.Options) { o.MaxRecords = idx.opts.maxRecords })
	if err != nil {
		return translateError(err)
	}

	idx.tree = tree
	idx.poisoned.Store(false)
	records = tree.Len()
	return nil
}

// Backup writes a compressed snapshot of every record to store under name.
func (idx *Index) Backup(ctx context.Context, store blobstore.Store, name string) (err error) {
	records := 0
	defer func() { idx.logger.LogBackup(ctx, name, records, err) }()

	if err := idx.exclusive(); err != nil {
		return err
	}
	entries := make([]snapshot.Entry, 0, idx.tree.Len())
	err = idx.tree.Scan(geom.Infinite(), func(e rtree.Entry) bool {
		entries = append(entries, snapshot.Entry{Rect: e.Rect, Payload: uint64(e.Payload)})
		return true
	})
	if err != nil {
		err = idx.fail(err)
	}
	idx.mu.Unlock()
	if err != nil {
		return err
	}

	data, err := snapshot.Encode(entries, func(o *snapshot.Options) { o.Compression = idx.opts.compression })
	if err != nil {
		return err
	}
	if err := store.Put(ctx, name, data); err != nil {
		return fmt.Errorf("crtree: put snapshot %s: %w", name, err)
	}

	records = len(entries)
	return nil
}

// Restore replaces the contents of the index with the snapshot name from
// store. Records are re-inserted in parallel. On failure the index keeps
// its previous contents.
func (idx *Index) Restore(ctx context.Context, store blobstore.Store, name string) (err error) {
	start := time.Now()
	records := 0
	defer func() {
		idx.metrics.RecordLoad(records, time.Since(start), err)
		idx.logger.LogRestore(ctx, name, records, err)
	}()

	entries, err := readSnapshot(ctx, store, name)
	if err != nil {
		return translateError(err)
	}

	if err := idx.exclusive(); err != nil {
		return err
	}
	defer idx.mu.Unlock()

	tree, err := rtree.New(func(o *rtree.Options) { o.MaxRecords = idx.opts.maxRecords })
	if err != nil {
		return translateError(err)
	}

	if err := idx.reinsert(ctx, tree, entries); err != nil {
		return translateError(err)
	}

	idx.tree = tree
	idx.poisoned.Store(false)
	records = len(entries)
	return nil
}

func readSnapshot(ctx context.Context, store blobstore.Store, name string) ([]snapshot.Entry, error) {
	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("crtree: open snapshot %s: %w", name, err)
	}
	defer func() { _ = blob.Close() }()

	data, err := blobstore.ReadAll(blob)
	if err != nil {
		return nil, err
	}
	return snapshot.Decode(data)
}

func (idx *Index) reinsert(ctx context.Context, tree *rtree.Tree, entries []snapshot.Entry) error {
	workers := idx.opts.restoreWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if idx.rc != nil {
		workers = min(workers, idx.rc.MaxWorkers())
	}

	chunk := (len(entries) + workers - 1) / workers
	if chunk == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for lo := 0; lo < len(entries); lo += chunk {
		part := entries[lo:min(lo+chunk, len(entries))]
		g.Go(func() error {
			if err := idx.rc.AcquireWorker(ctx); err != nil {
				return err
			}
			defer idx.rc.ReleaseWorker()

			for i, e := range part {
				if i%1024 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				if err := tree.Insert(e.Rect, rtree.Payload(e.Payload)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Close releases the node store. Further calls return ErrClosed.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return nil
	}
	idx.closed = true

	if idx.store != nil {
		return idx.store.Close()
	}
	return nil
}
