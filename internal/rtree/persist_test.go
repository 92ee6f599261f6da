package rtree

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/crtree/internal/geom"
	"github.com/hupe1980/crtree/internal/nodestore"
	"github.com/hupe1980/crtree/testutil"
)

func openStore(t *testing.T, path string, maxRecords int) *nodestore.FileStore {
	t.Helper()
	s, err := nodestore.Open(path, func(o *nodestore.Options) { o.MaxRecords = maxRecords })
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tree.db")
	store := openStore(t, path, 6)

	items := testutil.NewRNG(5).Items(1500, 200, 4)
	tr := newTestTree(t, 6)
	insertItems(t, tr, items)

	written, err := tr.Save(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, tr.Stats().Nodes, written)
	assert.Zero(t, tr.Stats().Dirty)
	require.NoError(t, store.Sync())

	reopened := openStore(t, path, 6)
	loaded, err := Load(ctx, reopened, func(o *Options) { o.MaxRecords = 6 })
	require.NoError(t, err)
	require.NoError(t, loaded.Verify())

	assert.Equal(t, tr.Len(), loaded.Len())
	assert.Equal(t, tr.Height(), loaded.Height())
	assert.Equal(t, tr.clock.current(), loaded.clock.current())

	q := cube(50, 120)
	got, err := loaded.Search(q)
	require.NoError(t, err)
	assert.Equal(t, testutil.Overlapping(items, q), payloads(got))

	// The loaded tree stays writable and its clock moves on.
	require.NoError(t, loaded.Insert(cube(500, 501), 99999))
	require.NoError(t, loaded.Verify())
}

func TestSave_Incremental(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, filepath.Join(t.TempDir(), "tree.db"), 4)

	tr := newTestTree(t, 4)
	insertItems(t, tr, testutil.Diagonal(1, 200))

	full, err := tr.Save(ctx, store)
	require.NoError(t, err)

	again, err := tr.Save(ctx, store)
	require.NoError(t, err)
	assert.Zero(t, again, "clean tree writes nothing")

	require.NoError(t, tr.Insert(cube(7.5, 7.5), 1000))
	partial, err := tr.Save(ctx, store)
	require.NoError(t, err)
	assert.Positive(t, partial)
	assert.Less(t, partial, full)

	loaded, err := Load(ctx, store, func(o *Options) { o.MaxRecords = 4 })
	require.NoError(t, err)
	require.NoError(t, loaded.Verify())
	assert.Equal(t, 201, loaded.Len())
}

func TestSave_RootMoves(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, filepath.Join(t.TempDir(), "tree.db"), 4)

	tr := newTestTree(t, 4)
	insertItems(t, tr, testutil.Diagonal(1, 3))
	_, err := tr.Save(ctx, store)
	require.NoError(t, err)

	// Grow the tree so the saved root becomes an inner node.
	insertItems(t, tr, testutil.Diagonal(4, 100))
	_, err = tr.Save(ctx, store)
	require.NoError(t, err)

	loaded, err := Load(ctx, store, func(o *Options) { o.MaxRecords = 4 })
	require.NoError(t, err)
	require.NoError(t, loaded.Verify())

	got, err := loaded.Search(geom.Infinite())
	require.NoError(t, err)
	assert.Len(t, got, 100)
}

func TestLoad_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("empty store", func(t *testing.T) {
		store := openStore(t, filepath.Join(t.TempDir(), "empty.db"), 6)
		_, err := Load(ctx, store)
		assert.Error(t, err)
	})

	t.Run("capacity mismatch", func(t *testing.T) {
		store := openStore(t, filepath.Join(t.TempDir(), "tree.db"), 8)
		tr := newTestTree(t, 8)
		insertItems(t, tr, testutil.Diagonal(1, 8))
		_, err := tr.Save(ctx, store)
		require.NoError(t, err)

		_, err = Load(ctx, store, func(o *Options) { o.MaxRecords = 4 })
		assert.ErrorIs(t, err, ErrCorruptIndex)
	})

	t.Run("root slot never written", func(t *testing.T) {
		store := openStore(t, filepath.Join(t.TempDir(), "tree.db"), 6)
		off, err := store.Save(ctx, &nodestore.Page{Offset: -1})
		require.NoError(t, err)
		assert.Equal(t, int64(store.PageSize()), off)

		_, err = Load(ctx, store)
		var mismatch *nodestore.ChecksumMismatchError
		assert.ErrorAs(t, err, &mismatch)
	})
}
