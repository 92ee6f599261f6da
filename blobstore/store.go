package blobstore

import (
	"context"
	"fmt"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist. It matches
// os.ErrNotExist under errors.Is.
var ErrNotFound = os.ErrNotExist

// Store holds named, immutable blobs such as index snapshots.
// Implementations must be safe for concurrent use.
type Store interface {
	// Open opens a blob for reading. Reads on the returned blob use ctx.
	Open(ctx context.Context, name string) (Blob, error)
	// Put writes a whole blob. Readers never observe a partial blob.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a stored blob.
type Blob interface {
	io.ReaderAt
	io.Closer
	// Size returns the size of the blob in bytes.
	Size() int64
}

// Mappable is implemented by blobs whose contents are directly addressable.
type Mappable interface {
	// Bytes returns the blob contents, valid until the blob is closed.
	Bytes() ([]byte, error)
}

// ReadAll returns the whole contents of b. Mappable blobs are returned
// without copying; the result is then only valid until b is closed.
func ReadAll(b Blob) ([]byte, error) {
	if m, ok := b.(Mappable); ok {
		return m.Bytes()
	}

	buf := make([]byte, b.Size())
	n, err := b.ReadAt(buf, 0)
	if err != nil && !(err == io.EOF && int64(n) == b.Size()) {
		return nil, fmt.Errorf("blobstore: read %d of %d bytes: %w", n, b.Size(), err)
	}
	return buf, nil
}
