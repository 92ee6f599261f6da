package nodestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/crtree/internal/fs"
	"github.com/hupe1980/crtree/internal/resource"
)

const (
	// DefaultMaxRecords matches the tree's default fan-out.
	DefaultMaxRecords = 6

	// DefaultCacheBytes is the default page cache capacity.
	DefaultCacheBytes = 8 << 20
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("nodestore: closed")

// Options configures a FileStore.
type Options struct {
	// MaxRecords fixes the page size; it must match the tree's fan-out.
	MaxRecords int

	// CacheBytes bounds the page cache. 0 disables caching.
	CacheBytes int64

	// FS is the file system used to open the store file.
	FS fs.FileSystem

	// ResourceController throttles page IO and accounts cache memory.
	ResourceController *resource.Controller
}

// DefaultOptions contains the default options for a FileStore.
var DefaultOptions = Options{
	MaxRecords: DefaultMaxRecords,
	CacheBytes: DefaultCacheBytes,
	FS:         fs.Default,
}

// FileStore keeps fixed-size node pages in a single file. Slot 0 holds the
// root; every other page lives at a multiple of the page size.
type FileStore struct {
	opts     Options
	pageSize int
	file     fs.File
	cache    *pageCache
	group    singleflight.Group

	mu      sync.Mutex
	end     int64
	hasRoot bool
	closed  bool
}

// Open opens or creates the store file at path.
func Open(path string, optFns ...func(o *Options)) (*FileStore, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxRecords <= 0 {
		return nil, fmt.Errorf("nodestore: invalid max records %d", opts.MaxRecords)
	}
	if opts.FS == nil {
		opts.FS = fs.Default
	}

	f, err := opts.FS.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("nodestore: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("nodestore: stat %s: %w", path, err)
	}

	pageSize := PageSize(opts.MaxRecords)
	end := int64(pageSize)
	if size := info.Size(); size > end {
		end = (size + int64(pageSize) - 1) / int64(pageSize) * int64(pageSize)
	}

	return &FileStore{
		opts:     opts,
		pageSize: pageSize,
		file:     f,
		cache:    newPageCache(opts.CacheBytes, pageSize, opts.ResourceController),
		end:      end,
		hasRoot:  info.Size() > 0,
	}, nil
}

// PageSize returns the size of every page in bytes.
func (s *FileStore) PageSize() int { return s.pageSize }

// Load returns the page stored at offset. Concurrent loads of the same
// offset share one read.
func (s *FileStore) Load(ctx context.Context, offset int64) (*Page, error) {
	if offset < 0 || offset%int64(s.pageSize) != 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOffset, offset)
	}
	if s.isClosed() {
		return nil, ErrClosed
	}

	id := uint64(offset) / uint64(s.pageSize)
	if p, ok := s.cache.get(id); ok {
		return p, nil
	}

	v, err, _ := s.group.Do(strconv.FormatUint(id, 10), func() (any, error) {
		if p, ok := s.cache.get(id); ok {
			return p, nil
		}

		if err := s.opts.ResourceController.AcquireIO(ctx, s.pageSize); err != nil {
			return nil, err
		}

		buf := make([]byte, s.pageSize)
		if _, err := s.file.ReadAt(buf, offset); err != nil {
			return nil, fmt.Errorf("nodestore: read page at %d: %w", offset, err)
		}

		p, err := DecodePage(buf, offset)
		if err != nil {
			return nil, err
		}
		s.cache.set(id, p)

		return p, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Page), nil
}

// Save writes p and returns its offset. Root pages go to offset 0, pages
// without an offset are appended, all others are overwritten in place.
// The chosen offset is recorded in p, which must not be modified afterwards.
func (s *FileStore) Save(ctx context.Context, p *Page) (int64, error) {
	offset, err := s.place(p)
	if err != nil {
		return 0, err
	}

	buf := make([]byte, s.pageSize)
	if err := p.Encode(buf); err != nil {
		return 0, err
	}

	if err := s.opts.ResourceController.AcquireIO(ctx, s.pageSize); err != nil {
		return 0, err
	}

	if _, err := s.file.WriteAt(buf, offset); err != nil {
		return 0, fmt.Errorf("nodestore: write page at %d: %w", offset, err)
	}

	p.Offset = offset
	s.cache.set(uint64(offset)/uint64(s.pageSize), p)

	if p.Root {
		s.mu.Lock()
		s.hasRoot = true
		s.mu.Unlock()
	}

	return offset, nil
}

func (s *FileStore) place(p *Page) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	switch {
	case p.Root:
		return 0, nil
	case p.Offset <= 0:
		off := s.end
		s.end += int64(s.pageSize)
		return off, nil
	case p.Offset%int64(s.pageSize) != 0:
		return 0, fmt.Errorf("%w: %d", ErrInvalidOffset, p.Offset)
	default:
		if p.Offset >= s.end {
			s.end = p.Offset + int64(s.pageSize)
		}
		return p.Offset, nil
	}
}

// Empty reports whether no root page has been written yet.
func (s *FileStore) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.hasRoot
}

// Sync flushes written pages to stable storage.
func (s *FileStore) Sync() error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.file.Sync()
}

// Stats returns page cache hits and misses.
func (s *FileStore) Stats() (hits, misses int64) {
	return s.cache.stats()
}

// Close releases the file and drops the cache.
func (s *FileStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cache.purge()
	return s.file.Close()
}

func (s *FileStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
