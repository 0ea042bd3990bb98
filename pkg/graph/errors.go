package graph

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	ErrForeignNode      = errors.New("node does not resolve in this graph")
	ErrSelfLoop         = errors.New("self-loops are not allowed")
	ErrInvalidID        = errors.New("invalid node identifier")
	ErrEdgeNotFound     = errors.New("edge not found")
	ErrProbabilityRange = errors.New("probability outside [0,1]")
	ErrNotEmpty         = errors.New("graph is not empty")
	ErrDuplicate        = errors.New("already exists")
)

// AnomalyKind classifies a recoverable graph consistency anomaly.
type AnomalyKind string

const (
	AnomalyDuplicateNode AnomalyKind = "duplicate_node"
	AnomalyDuplicateEdge AnomalyKind = "duplicate_edge"
	AnomalyForeignNode   AnomalyKind = "foreign_node"
	AnomalySelfLoop      AnomalyKind = "self_loop"
	AnomalyInvalidID     AnomalyKind = "invalid_id"
)

// ConsistencyError describes an operation that was refused or degraded to a
// no-op because it would have broken graph invariants.
type ConsistencyError struct {
	Op      string // operation, e.g. "CreateEdge"
	Graph   string // graph name
	Subject string // node id or edge key involved
	Cause   error
}

// Error implements the error interface.
func (e *ConsistencyError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("%s on graph %q (%s): %v", e.Op, e.Graph, e.Subject, e.Cause)
	}
	return fmt.Sprintf("%s on graph %q: %v", e.Op, e.Graph, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ConsistencyError) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches the cause.
func (e *ConsistencyError) Is(target error) bool {
	if target == nil {
		return false
	}
	return errors.Is(e.Cause, target)
}

func consistencyError(op string, g *Graph, subject string, cause error) error {
	return &ConsistencyError{Op: op, Graph: g.name, Subject: subject, Cause: cause}
}

// IsConsistencyError reports whether err is, or wraps, a ConsistencyError.
func IsConsistencyError(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}
