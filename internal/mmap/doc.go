// Package mmap provides read-only memory-mapped file access.
//
// The local blob store maps snapshot files so they can be decoded without an
// intermediate copy:
//
//	m, err := mmap.Open("snapshots/index.rts")
//	if err != nil { ... }
//	defer m.Close()
//	_ = m.Advise(mmap.AccessSequential)
//	data := m.Bytes()
//
// Unix platforms use mmap(2) and madvise(2) through golang.org/x/sys/unix.
// Other platforms read the file into memory behind the same API.
//
// Bytes must not be used after Close returns.
package mmap
