// Package snapshot encodes the leaf records of an index into a single
// compressed, checksummed blob.
//
// A snapshot is independent of the tree shape: it stores entries, not nodes,
// so it can be restored into an index with a different node capacity.
// Compression falls back to none when it saves less than ten percent.
package snapshot
