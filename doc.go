// Package crtree provides a concurrent, disk-backable R-tree for Go.
//
// An Index stores axis-aligned boxes in Dims dimensions, each with an opaque
// uint64 payload, and answers overlap queries. Any number of goroutines may
// insert, delete and search at the same time: there is no tree-wide lock.
// Nodes carry their own reader/writer locks, a version stamp and a sibling
// link, so a traversal that races with a node split still finds every
// record.
//
// # Quick Start
//
//	ctx := context.Background()
//	idx, _ := crtree.New()
//	defer idx.Close()
//
//	_ = idx.Insert(ctx, []float64{0, 0, 0}, []float64{1, 1, 1}, 42)
//	hits, _ := idx.Search(ctx, []float64{0.5, 0.5, 0.5}, []float64{2, 2, 2})
//
// Search returns every overlapping record; SearchFirst stops at the first.
// Query boxes may use math.Inf to leave a dimension unbounded.
//
// # Deletion
//
// Delete removes the overlapping records of the single leaf an insert of the
// same box would pick, which is cheap and exact for point data inserted with
// the same box. DeleteRange removes every overlapping record in the tree.
// Nodes are never merged: deletion only shrinks bounding boxes.
//
// # Persistence
//
// With WithStorePath the tree can be saved to and loaded from a page file:
//
//	idx, _ := crtree.Open(ctx, "./data/index.db")
//	// ... mutations ...
//	pages, _ := idx.Save(ctx) // writes only nodes changed since the last Save
//
// Independently, Backup and Restore move a compressed snapshot of all
// records through a blobstore.Store (local disk, memory, S3 or MinIO).
//
// # Errors
//
// A violated structural invariant surfaces as ErrCorruptIndex. After that
// the index refuses mutations until Load or Restore replaces the tree.
package crtree
