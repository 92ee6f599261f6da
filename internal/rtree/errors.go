package rtree

import (
	"errors"
	"fmt"
)

var (
	// ErrCorruptIndex reports a violated structural invariant: a sibling
	// chain that ends before the expected version, or a parent without a
	// record for its child.
	ErrCorruptIndex = errors.New("rtree: corrupt index")

	// ErrTooManyNodes is returned when the node table runs out of ids.
	ErrTooManyNodes = errors.New("rtree: node table exhausted")
)

// CorruptError carries the node at which corruption was detected.
type CorruptError struct {
	Node   uint32
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("rtree: corrupt index at node %d: %s", e.Node, e.Reason)
}

func (e *CorruptError) Unwrap() error { return ErrCorruptIndex }

func corrupt(id nodeID, format string, args ...any) error {
	return &CorruptError{Node: uint32(id), Reason: fmt.Sprintf(format, args...)}
}
