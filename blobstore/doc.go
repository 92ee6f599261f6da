// Package blobstore abstracts where index snapshots are kept.
//
// A [Store] holds named, immutable blobs. Implementations must be safe for
// concurrent use.
//
//   - [MemoryStore]: in-process, for tests
//   - [LocalStore]: files below a directory, atomic writes, mmap reads
//   - s3.Store: Amazon S3 (package blobstore/s3)
//   - minio.Store: MinIO and other S3-compatible services (package blobstore/minio)
//
// Custom backends implement:
//
//	type Store interface {
//	    Open(ctx, name) (Blob, error)
//	    Put(ctx, name, data) error
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
package blobstore
