package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hupe1980/crtree/internal/fs"
	"github.com/hupe1980/crtree/internal/mmap"
)

// LocalStore keeps blobs as files below a root directory. Writes go to a
// temporary file that is synced and renamed into place; reads are served
// from a read-only memory mapping.
type LocalStore struct {
	root string
	fsys fs.FileSystem
}

// NewLocalStore creates a store rooted at dir.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{root: dir, fsys: fs.Default}
}

// NewLocalStoreFS creates a store rooted at dir that writes through fsys.
func NewLocalStoreFS(dir string, fsys fs.FileSystem) *LocalStore {
	return &LocalStore{root: dir, fsys: fsys}
}

func (s *LocalStore) path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

// Open maps the blob read-only.
func (s *LocalStore) Open(_ context.Context, name string) (Blob, error) {
	m, err := mmap.Open(s.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	_ = m.Advise(mmap.AccessSequential)
	return &localBlob{m: m}, nil
}

// Put writes data atomically.
func (s *LocalStore) Put(_ context.Context, name string, data []byte) (err error) {
	dst := s.path(name)
	if err := s.fsys.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	tmp := dst + ".tmp"
	f, err := s.fsys.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = s.fsys.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		return fmt.Errorf("blobstore: write %s: %w", name, err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("blobstore: sync %s: %w", name, err)
	}
	if err = f.Close(); err != nil {
		return err
	}

	return s.fsys.Rename(tmp, dst)
}

// Delete removes a blob.
func (s *LocalStore) Delete(_ context.Context, name string) error {
	if err := s.fsys.Remove(s.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// List returns the sorted names starting with prefix, using forward slashes.
func (s *LocalStore) List(_ context.Context, prefix string) ([]string, error) {
	var names []string
	if err := s.walk("", func(name string) {
		if strings.HasPrefix(name, prefix) && !strings.HasSuffix(name, ".tmp") {
			names = append(names, name)
		}
	}); err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (s *LocalStore) walk(dir string, fn func(name string)) error {
	entries, err := s.fsys.ReadDir(s.path(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if dir != "" {
			name = dir + "/" + name
		}
		if e.IsDir() {
			if err := s.walk(name, fn); err != nil {
				return err
			}
			continue
		}
		fn(name)
	}
	return nil
}

type localBlob struct {
	m *mmap.Mapping
}

func (b *localBlob) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := b.m.ReadAt(p, off)
	if errors.Is(err, mmap.ErrInvalidOffset) {
		return n, io.EOF
	}
	return n, err
}

func (b *localBlob) Close() error           { return b.m.Close() }
func (b *localBlob) Size() int64            { return int64(b.m.Size()) }
func (b *localBlob) Bytes() ([]byte, error) { return b.m.Bytes(), nil }
