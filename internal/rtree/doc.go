// Package rtree implements a concurrent R-tree over axis-aligned rectangles.
//
// # Concurrency
//
// There is no tree-wide lock. Every node carries a sync.RWMutex, a version
// stamp taken from the tree's clock and a sibling link:
//
//   - When a node splits, it keeps part of its records under a fresh version
//     and moves the rest to a new node that inherits the old version and is
//     spliced in as its sibling.
//   - Parent records remember the version of their child. A traversal that
//     finds a node whose version differs from the expected one follows the
//     sibling chain until the expected version shows up, so records moved by
//     a concurrent split are never lost.
//   - Descents hold one lock at a time. Upward propagation (split
//     installation and cover adjustment) locks the parent while the child is
//     still held, always bottom-up, which rules out lock cycles.
//
// Parent ids may be stale after a split of the parent level; the holder of a
// child's record is always found on the sibling chain starting at the stored
// parent.
//
// # Storage
//
// Nodes live in a segmented node table and link to each other by nodeID.
// Save and Load move the tree through a page Store (see internal/nodestore);
// a roaring bitmap of dirty nodes keeps Save incremental.
//
// Deletion only shrinks rectangles. Nodes are never merged and empty leaves
// stay in place.
package rtree
