package crtree

import (
	"errors"
	"fmt"

	"github.com/hupe1980/crtree/internal/geom"
	"github.com/hupe1980/crtree/internal/nodestore"
	"github.com/hupe1980/crtree/internal/rtree"
	"github.com/hupe1980/crtree/snapshot"
)

var (
	// ErrCorruptIndex is returned when a structural invariant of the tree is
	// violated. Once seen, the index rejects all further mutations.
	ErrCorruptIndex = errors.New("crtree: corrupt index")

	// ErrInvalidRect is returned for rectangles with min > max, NaN
	// coordinates, or infinite coordinates on insert.
	ErrInvalidRect = errors.New("crtree: invalid rectangle")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("crtree: index closed")

	// ErrNoStore is returned by Save and Load when no node store is configured.
	ErrNoStore = errors.New("crtree: no node store configured")
)

// ErrDimensionMismatch indicates a coordinate count other than Dims.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrInvalidMaxRecords indicates a node capacity outside the supported range.
type ErrInvalidMaxRecords struct {
	MaxRecords int
	cause      error
}

func (e *ErrInvalidMaxRecords) Error() string {
	return fmt.Sprintf("invalid max records: %d", e.MaxRecords)
}

func (e *ErrInvalidMaxRecords) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, rtree.ErrCorruptIndex) || errors.Is(err, snapshot.ErrCorrupt) {
		return fmt.Errorf("%w: %w", ErrCorruptIndex, err)
	}
	var cm *nodestore.ChecksumMismatchError
	if errors.As(err, &cm) {
		return fmt.Errorf("%w: %w", ErrCorruptIndex, err)
	}
	if errors.Is(err, geom.ErrInvalidRect) {
		return fmt.Errorf("%w: %w", ErrInvalidRect, err)
	}
	if errors.Is(err, nodestore.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}

	var dm *snapshot.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}
	var mr *rtree.ErrInvalidMaxRecords
	if errors.As(err, &mr) {
		return &ErrInvalidMaxRecords{MaxRecords: mr.MaxRecords, cause: err}
	}

	return err
}
