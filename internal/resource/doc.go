// Package resource implements the budgets shared by the index components.
//
// A Controller governs three resources:
//
//   - Memory: page caches reserve bytes without blocking and skip caching
//     when the budget is exhausted.
//   - Workers: bulk jobs such as snapshot restore take a worker slot per
//     goroutine.
//   - IO: node store page reads and writes pass through a token bucket.
//
// Usage:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes:   64 << 20,
//	    MaxWorkers:         4,
//	    IOLimitBytesPerSec: 100 << 20,
//	})
//
// All methods are safe for concurrent use and a nil *Controller is a valid
// controller without limits.
package resource
