// Package nodestore stores R-tree nodes as fixed-size pages in a single
// file.
//
// Every page is PageSize(maxRecords) bytes long and protected by a CRC32
// checksum. The root page always occupies offset 0; other pages are appended
// on first save and overwritten in place afterwards.
//
// Decoded pages are kept in an LRU cache keyed by page id (offset divided by
// the page size). Concurrent loads of one page are collapsed into a single
// read. Page IO is throttled and cache memory accounted through an optional
// resource.Controller.
package nodestore
