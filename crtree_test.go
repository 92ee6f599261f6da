package crtree

import (
	"bytes"
	"context"
	"log/slog"
	"math"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/crtree/blobstore"
	"github.com/hupe1980/crtree/internal/fs"
	"github.com/hupe1980/crtree/internal/geom"
	"github.com/hupe1980/crtree/internal/rtree"
	"github.com/hupe1980/crtree/snapshot"
	"github.com/hupe1980/crtree/testutil"
)

func pt(v float64) []float64 { return []float64{v, v, v} }

func everything() ([]float64, []float64) {
	inf := math.Inf(1)
	return []float64{-inf, -inf, -inf}, []float64{inf, inf, inf}
}

func newTestIndex(t *testing.T, optFns ...Option) *Index {
	t.Helper()
	idx, err := New(optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func insertItems(t *testing.T, idx *Index, items []testutil.Item) {
	t.Helper()
	ctx := context.Background()
	for _, it := range items {
		require.NoError(t, idx.Insert(ctx, it.Rect.Min[:], it.Rect.Max[:], it.Payload))
	}
}

func payloads(entries []Entry) []uint64 {
	out := make([]uint64, len(entries))
	for i, e := range entries {
		out[i] = e.Payload
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func searchAll(t *testing.T, idx *Index) []uint64 {
	t.Helper()
	lo, hi := everything()
	got, err := idx.Search(context.Background(), lo, hi)
	require.NoError(t, err)
	return payloads(got)
}

func TestNew_InvalidMaxRecords(t *testing.T) {
	for _, n := range []int{0, 1, 256} {
		_, err := New(WithMaxRecords(n))
		var mr *ErrInvalidMaxRecords
		require.ErrorAs(t, err, &mr)
		assert.Equal(t, n, mr.MaxRecords)
	}
}

func TestIndex_DiagonalScenario(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, WithMaxRecords(6))
	insertItems(t, idx, testutil.Diagonal(1, 30))

	got, err := idx.Search(ctx, pt(2), pt(5))
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 3, 4, 5}, payloads(got))

	first, found, err := idx.SearchFirst(ctx, pt(2), pt(5))
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, []uint64{2, 3, 4, 5}, first.Payload)
	assert.Equal(t, first.Min, first.Max)

	_, found, err = idx.SearchFirst(ctx, pt(100), pt(200))
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, idx.Verify())
	s := idx.Stats()
	assert.Equal(t, int64(30), s.Records)
	assert.Greater(t, s.Height, 1)
	assert.Positive(t, s.Splits)
}

func TestIndex_RandomBoxes(t *testing.T) {
	ctx := context.Background()
	items := testutil.NewRNG(99).Items(2000, 1000, 30)

	idx := newTestIndex(t)
	insertItems(t, idx, items)

	rng := testutil.NewRNG(100)
	for range 25 {
		q := rng.Rect(1000, 200)
		got, err := idx.Search(ctx, q.Min[:], q.Max[:])
		require.NoError(t, err)
		assert.Equal(t, testutil.Overlapping(items, q), payloads(got))
	}
}

func TestIndex_Validation(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	var dm *ErrDimensionMismatch
	err := idx.Insert(ctx, []float64{0, 0}, pt(1), 1)
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, Dims, dm.Expected)
	assert.Equal(t, 2, dm.Actual)

	_, err = idx.Search(ctx, pt(0), []float64{1, 1, 1, 1})
	assert.ErrorAs(t, err, &dm)

	assert.ErrorIs(t, idx.Insert(ctx, pt(2), pt(1), 1), ErrInvalidRect)
	assert.ErrorIs(t, idx.Insert(ctx, []float64{math.NaN(), 0, 0}, pt(1), 1), ErrInvalidRect)

	lo, hi := everything()
	assert.ErrorIs(t, idx.Insert(ctx, lo, hi, 1), ErrInvalidRect, "stored boxes must be finite")

	_, err = idx.Delete(ctx, pt(2), pt(1))
	assert.ErrorIs(t, err, ErrInvalidRect)

	assert.Zero(t, idx.Stats().Records)
}

func TestIndex_Delete(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	insertItems(t, idx, testutil.Diagonal(1, 5))

	removed, err := idx.Delete(ctx, pt(3), pt(3))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = idx.Delete(ctx, pt(500), pt(600))
	require.NoError(t, err)
	assert.Zero(t, removed, "not found is not an error")

	assert.Equal(t, []uint64{1, 2, 4, 5}, searchAll(t, idx))
}

func TestIndex_DeleteRange(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, WithMaxRecords(4))
	insertItems(t, idx, testutil.Diagonal(1, 100))

	removed, err := idx.DeleteRange(ctx, pt(10), pt(29))
	require.NoError(t, err)
	assert.Equal(t, 20, removed)

	got, err := idx.Search(ctx, pt(10), pt(29))
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.Len(t, searchAll(t, idx), 80)
	require.NoError(t, idx.Verify())
}

func TestIndex_Concurrent(t *testing.T) {
	const (
		workers   = 8
		perWorker = 300
	)
	ctx := context.Background()
	idx := newTestIndex(t, WithMaxRecords(4))

	var g errgroup.Group
	for w := range workers {
		g.Go(func() error {
			for _, it := range testutil.Diagonal(w*perWorker+1, (w+1)*perWorker) {
				if err := idx.Insert(ctx, it.Rect.Min[:], it.Rect.Max[:], it.Payload); err != nil {
					return err
				}
			}
			return nil
		})
	}
	for range 3 {
		g.Go(func() error {
			for range 100 {
				if _, err := idx.Search(ctx, pt(50), pt(900)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	got := searchAll(t, idx)
	require.Len(t, got, workers*perWorker)
	for i, p := range got {
		assert.Equal(t, uint64(i+1), p)
	}
	require.NoError(t, idx.Verify())
}

func TestIndex_SaveOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")
	items := testutil.NewRNG(3).Items(800, 500, 10)

	idx, err := Open(ctx, path, WithMaxRecords(8))
	require.NoError(t, err)
	assert.Zero(t, idx.Stats().Records, "a new file opens empty")

	insertItems(t, idx, items)
	pages, err := idx.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, idx.Stats().Nodes, pages)

	pages, err = idx.Save(ctx)
	require.NoError(t, err)
	assert.Zero(t, pages)
	require.NoError(t, idx.Close())

	re, err := Open(ctx, path, WithMaxRecords(8))
	require.NoError(t, err)
	defer re.Close()

	require.NoError(t, re.Verify())
	assert.Equal(t, int64(len(items)), re.Stats().Records)

	q := testutil.NewRNG(4).Rect(500, 100)
	got, err := re.Search(ctx, q.Min[:], q.Max[:])
	require.NoError(t, err)
	assert.Equal(t, testutil.Overlapping(items, q), payloads(got))
}

func TestIndex_LoadDiscardsUnsavedChanges(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, WithStorePath(filepath.Join(t.TempDir(), "index.db")))

	insertItems(t, idx, testutil.Diagonal(1, 20))
	_, err := idx.Save(ctx)
	require.NoError(t, err)

	insertItems(t, idx, testutil.Diagonal(21, 40))
	require.NoError(t, idx.Load(ctx))
	assert.Len(t, searchAll(t, idx), 20)
}

func TestIndex_NoStore(t *testing.T) {
	idx := newTestIndex(t)

	_, err := idx.Save(context.Background())
	assert.ErrorIs(t, err, ErrNoStore)
	assert.ErrorIs(t, idx.Load(context.Background()), ErrNoStore)
}

func TestIndex_SaveSyncFault(t *testing.T) {
	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule("index.db", fs.Fault{FailAfterBytes: -1, FailOnSync: true})

	idx := newTestIndex(t,
		WithStorePath(filepath.Join(t.TempDir(), "index.db")),
		func(o *options) { o.fsys = ffs },
	)
	insertItems(t, idx, testutil.Diagonal(1, 10))

	_, err := idx.Save(context.Background())
	assert.ErrorIs(t, err, fs.ErrInjected)
}

func TestIndex_BackupRestore(t *testing.T) {
	ctx := context.Background()
	items := testutil.NewRNG(11).Items(1500, 800, 20)

	stores := map[string]blobstore.Store{
		"memory": blobstore.NewMemoryStore(),
		"local":  blobstore.NewLocalStore(t.TempDir()),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			src := newTestIndex(t, WithCompression(snapshot.CompressionZSTD))
			insertItems(t, src, items)
			require.NoError(t, src.Backup(ctx, store, "backup.rts"))

			// A different fan-out restores the same records.
			dst := newTestIndex(t, WithMaxRecords(12), WithRestoreWorkers(4))
			insertItems(t, dst, testutil.Diagonal(5000, 5010))
			require.NoError(t, dst.Restore(ctx, store, "backup.rts"))

			require.NoError(t, dst.Verify())
			assert.Equal(t, searchAll(t, src), searchAll(t, dst))
		})
	}
}

func TestIndex_RestoreErrors(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	idx := newTestIndex(t)
	insertItems(t, idx, testutil.Diagonal(1, 5))

	err := idx.Restore(ctx, store, "missing.rts")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	require.NoError(t, store.Put(ctx, "garbage.rts", []byte("definitely not a snapshot, just some bytes")))
	err = idx.Restore(ctx, store, "garbage.rts")
	assert.ErrorIs(t, err, snapshot.ErrInvalidMagic)

	lo, hi := everything()
	var unbounded geom.Rect
	copy(unbounded.Min[:], lo)
	copy(unbounded.Max[:], hi)
	data, err := snapshot.Encode([]snapshot.Entry{{Rect: unbounded, Payload: 7}})
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "unbounded.rts", data))
	err = idx.Restore(ctx, store, "unbounded.rts")
	assert.ErrorIs(t, err, ErrCorruptIndex)
	assert.ErrorIs(t, idx.Insert(ctx, lo, hi, 7), ErrInvalidRect)

	assert.Len(t, searchAll(t, idx), 5, "failed restores keep the contents")
}

func TestIndex_ResourceLimits(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	src := newTestIndex(t)
	insertItems(t, src, testutil.Diagonal(1, 300))
	require.NoError(t, src.Backup(ctx, store, "snap"))

	dst := newTestIndex(t,
		WithStorePath(filepath.Join(t.TempDir(), "index.db")),
		WithResourceLimits(ResourceLimits{MemoryBytes: 1 << 20, MaxWorkers: 2}),
		WithRestoreWorkers(16),
	)
	require.NoError(t, dst.Restore(ctx, store, "snap"))
	_, err := dst.Save(ctx)
	require.NoError(t, err)
	require.NoError(t, dst.Load(ctx))

	assert.Len(t, searchAll(t, dst), 300)
	s := dst.Stats()
	assert.LessOrEqual(t, s.MemoryUsage, int64(1<<20))
}

func TestIndex_Poisoned(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	insertItems(t, idx, testutil.Diagonal(1, 5))

	err := idx.fail(&rtree.CorruptError{Node: 1, Reason: "broken sibling chain"})
	assert.ErrorIs(t, err, ErrCorruptIndex)
	assert.ErrorIs(t, err, rtree.ErrCorruptIndex)

	assert.ErrorIs(t, idx.Insert(ctx, pt(9), pt(9), 9), ErrCorruptIndex)
	_, err = idx.DeleteRange(ctx, pt(1), pt(5))
	assert.ErrorIs(t, err, ErrCorruptIndex)

	// Reads still work.
	assert.Len(t, searchAll(t, idx), 5)

	// Restoring a snapshot replaces the tree and clears the state.
	store := blobstore.NewMemoryStore()
	require.NoError(t, idx.Backup(ctx, store, "snap"))
	require.NoError(t, idx.Restore(ctx, store, "snap"))
	assert.NoError(t, idx.Insert(ctx, pt(9), pt(9), 9))
}

func TestIndex_Closed(t *testing.T) {
	ctx := context.Background()
	idx, err := New(WithStorePath(filepath.Join(t.TempDir(), "index.db")))
	require.NoError(t, err)
	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())

	assert.ErrorIs(t, idx.Insert(ctx, pt(1), pt(1), 1), ErrClosed)
	_, err = idx.Search(ctx, pt(1), pt(1))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = idx.Save(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, idx.Verify(), ErrClosed)
	assert.ErrorIs(t, idx.Backup(ctx, blobstore.NewMemoryStore(), "x"), ErrClosed)
}

func TestIndex_Dump(t *testing.T) {
	idx := newTestIndex(t, WithMaxRecords(4))
	insertItems(t, idx, testutil.Diagonal(1, 10))

	var buf bytes.Buffer
	require.NoError(t, idx.Dump(&buf))
	assert.Contains(t, buf.String(), "level=1")
	assert.Contains(t, buf.String(), "payload=10")
}

func TestIndex_MetricsAndLogging(t *testing.T) {
	ctx := context.Background()
	metrics := &BasicMetricsCollector{}
	var logs bytes.Buffer
	logger := NewLogger(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	idx := newTestIndex(t, WithMetricsCollector(metrics), WithLogger(logger))
	insertItems(t, idx, testutil.Diagonal(1, 10))
	_ = idx.Insert(ctx, pt(2), pt(1), 11)

	_, err := idx.Search(ctx, pt(1), pt(3))
	require.NoError(t, err)
	_, err = idx.DeleteRange(ctx, pt(1), pt(2))
	require.NoError(t, err)

	stats := metrics.GetStats()
	assert.Equal(t, int64(11), stats.InsertCount)
	assert.Equal(t, int64(1), stats.InsertErrors)
	assert.Equal(t, int64(1), stats.SearchCount)
	assert.Equal(t, int64(3), stats.SearchResults)
	assert.Equal(t, int64(2), stats.DeletedRecords)

	out := logs.String()
	assert.Contains(t, out, `"msg":"insert completed"`)
	assert.Contains(t, out, `"msg":"insert failed"`)
	assert.Contains(t, out, `"results":3`)
}
