package crtree

import (
	"log/slog"

	"github.com/hupe1980/crtree/internal/fs"
	"github.com/hupe1980/crtree/internal/rtree"
	"github.com/hupe1980/crtree/snapshot"
)

type options struct {
	maxRecords       int
	storePath        string
	cacheBytes       int64
	fsys             fs.FileSystem
	compression      snapshot.Compression
	restoreWorkers   int
	limits           *ResourceLimits
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures an Index.
type Option func(*options)

// ResourceLimits bounds what an Index may consume. Zero values mean
// unlimited.
type ResourceLimits struct {
	// MemoryBytes bounds the node store page cache.
	MemoryBytes int64
	// MaxWorkers bounds the goroutines used by Restore.
	MaxWorkers int
	// IOBytesPerSec throttles node store reads and writes.
	IOBytesPerSec int64
}

// WithMaxRecords sets the node capacity (fan-out). Valid values are 2..255;
// MinRecords is half of it. A store opened with WithStorePath must always be
// used with the same value.
func WithMaxRecords(n int) Option {
	return func(o *options) {
		o.maxRecords = n
	}
}

// WithStorePath enables Save and Load through a page file at path.
//
// Example:
//
//	idx, _ := crtree.New(crtree.WithStorePath("./data/index.db"))
//	defer idx.Close()
//	// ... inserts ...
//	pages, _ := idx.Save(ctx)
func WithStorePath(path string) Option {
	return func(o *options) {
		o.storePath = path
	}
}

// WithPageCacheBytes bounds the node store page cache. 0 disables it.
func WithPageCacheBytes(n int64) Option {
	return func(o *options) {
		o.cacheBytes = n
	}
}

// WithCompression selects the algorithm used by Backup.
func WithCompression(c snapshot.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithRestoreWorkers sets how many goroutines re-insert records on Restore.
func WithRestoreWorkers(n int) Option {
	return func(o *options) {
		o.restoreWorkers = n
	}
}

// WithResourceLimits bounds memory, workers and IO bandwidth.
func WithResourceLimits(limits ResourceLimits) Option {
	return func(o *options) {
		o.limits = &limits
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &crtree.BasicMetricsCollector{}
//	idx, _ := crtree.New(crtree.WithMetricsCollector(metrics))
//	// ... use idx ...
//	stats := metrics.GetStats()
//	fmt.Printf("Inserts: %d, Avg latency: %dns\n", stats.InsertCount, stats.InsertAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := crtree.NewJSONLogger(slog.LevelInfo)
//	idx, _ := crtree.New(crtree.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		maxRecords:       rtree.DefaultMaxRecords,
		cacheBytes:       8 << 20,
		fsys:             fs.Default,
		compression:      snapshot.DefaultOptions.Compression,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}
