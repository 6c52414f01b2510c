package graph

import (
	"errors"
	"fmt"
)

// InvariantError reports a broken structural invariant of a graph.
//
// Invariant errors include:
//   - Symmetry: an edge without its mirror on the dual side
//   - Layout cycle: a struct that contains itself by value
//   - Unexpected edge: an edge kind a pass does not accept
//   - Missing node: a lookup or merge on a removed node
//   - PNI mismatch: a number node with pointer edges
//
// They are returned, not panicked, so the driver can report the function
// and continue with the rest of the program.
type InvariantError struct {
	// Code identifies the error category.
	Code InvariantCode

	// Message is a human-readable description.
	Message string

	// Graph names the affected graph.
	Graph string

	// Node is the key of the offending node.
	Node string

	// Details contains additional context.
	Details map[string]string
}

// InvariantCode categorizes invariant errors.
type InvariantCode string

const (
	// ErrCodeSymmetryBroken indicates an edge lacks its dual mirror.
	ErrCodeSymmetryBroken InvariantCode = "SYMMETRY_BROKEN"

	// ErrCodeLayoutCycle indicates a type contains itself by value.
	ErrCodeLayoutCycle InvariantCode = "LAYOUT_CYCLE"

	// ErrCodeUnexpectedEdge indicates an edge a pass cannot handle.
	ErrCodeUnexpectedEdge InvariantCode = "UNEXPECTED_EDGE"

	// ErrCodeMissingNode indicates a reference to a removed node.
	ErrCodeMissingNode InvariantCode = "MISSING_NODE"

	// ErrCodeDuplicateNode indicates a second node with an existing key.
	ErrCodeDuplicateNode InvariantCode = "DUPLICATE_NODE"

	// ErrCodePNIMismatch indicates lattice cells contradicting the edges.
	ErrCodePNIMismatch InvariantCode = "PNI_MISMATCH"
)

// Error implements the error interface.
func (e *InvariantError) Error() string {
	switch {
	case e.Graph != "" && e.Node != "":
		return fmt.Sprintf("%s: %s (graph=%s, node=%s)", e.Code, e.Message, e.Graph, e.Node)
	case e.Node != "":
		return fmt.Sprintf("%s: %s (node=%s)", e.Code, e.Message, e.Node)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsInvariantError returns true if err wraps an InvariantError.
func IsInvariantError(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}

// HasCode returns true if err wraps an InvariantError with the given code.
func HasCode(err error, code InvariantCode) bool {
	var ie *InvariantError
	if errors.As(err, &ie) {
		return ie.Code == code
	}
	return false
}
