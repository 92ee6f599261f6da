// Package fs provides the file system abstraction used by the node store and
// the local blob store.
//
//   - [LocalFS]: production implementation on top of package os
//   - [FaultyFS]: test wrapper that injects write, read and sync failures
//
// Production code uses fs.Default. Tests inject a FaultyFS:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("pages", fs.Fault{FailAfterBytes: 4096})
//
// Operations take no context.Context; local file IO is not interruptible at
// the syscall level. Slow remote storage goes through blobstore instead.
package fs
