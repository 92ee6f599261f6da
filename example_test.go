package crtree_test

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"

	"github.com/hupe1980/crtree"
	"github.com/hupe1980/crtree/blobstore"
	"github.com/hupe1980/crtree/snapshot"
)

// Example demonstrates inserting boxes and querying them.
func Example() {
	ctx := context.Background()

	idx, err := crtree.New()
	if err != nil {
		log.Fatal(err)
	}
	defer idx.Close()

	for i := 1; i <= 30; i++ {
		v := float64(i)
		p := []float64{v, v, v}
		if err := idx.Insert(ctx, p, p, uint64(i)); err != nil {
			log.Fatal(err)
		}
	}

	hits, err := idx.Search(ctx, []float64{2, 2, 2}, []float64{5, 5, 5})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("hits:", len(hits))
	// Output: hits: 4
}

// Example_unbounded demonstrates a query that is open in one dimension.
func Example_unbounded() {
	ctx := context.Background()

	idx, _ := crtree.New()
	defer idx.Close()

	_ = idx.Insert(ctx, []float64{0, 0, 0}, []float64{1, 1, 1}, 1)
	_ = idx.Insert(ctx, []float64{0, 0, 100}, []float64{1, 1, 101}, 2)

	hits, _ := idx.Search(ctx, []float64{0, 0, math.Inf(-1)}, []float64{1, 1, math.Inf(1)})
	fmt.Println("hits:", len(hits))
	// Output: hits: 2
}

// Example_persistence demonstrates saving to and reopening a page file.
func Example_persistence() {
	ctx := context.Background()

	dir, err := os.MkdirTemp("", "crtree-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "index.db")

	idx, err := crtree.Open(ctx, path)
	if err != nil {
		log.Fatal(err)
	}
	_ = idx.Insert(ctx, []float64{1, 2, 3}, []float64{4, 5, 6}, 7)
	if _, err := idx.Save(ctx); err != nil {
		log.Fatal(err)
	}
	_ = idx.Close()

	reopened, err := crtree.Open(ctx, path)
	if err != nil {
		log.Fatal(err)
	}
	defer reopened.Close()

	e, found, _ := reopened.SearchFirst(ctx, []float64{2, 2, 2}, []float64{2, 2, 4})
	fmt.Println(found, e.Payload)
	// Output: true 7
}

// Example_backup demonstrates moving a snapshot through a blob store.
func Example_backup() {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	src, _ := crtree.New(crtree.WithCompression(snapshot.CompressionZSTD))
	defer src.Close()
	for i := 1; i <= 100; i++ {
		v := float64(i)
		_ = src.Insert(ctx, []float64{v, v, v}, []float64{v + 1, v + 1, v + 1}, uint64(i))
	}
	if err := src.Backup(ctx, store, "nightly.rts"); err != nil {
		log.Fatal(err)
	}

	dst, _ := crtree.New(crtree.WithMaxRecords(16))
	defer dst.Close()
	if err := dst.Restore(ctx, store, "nightly.rts"); err != nil {
		log.Fatal(err)
	}

	fmt.Println("records:", dst.Stats().Records)
	// Output: records: 100
}
