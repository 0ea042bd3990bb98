package workflow

import (
	"errors"
	"fmt"
)

// ReplicateError carries the first failing replicate of a sweep point up to
// the caller. The point is reported as unevaluated.
type ReplicateError struct {
	Point     int
	Variables string // "id=value;..." of the failed point
	Replicate string
	Cause     error
}

func (e *ReplicateError) Error() string {
	if e.Variables != "" {
		return fmt.Sprintf("sweep point %d (%s): replicate %s failed: %v", e.Point, e.Variables, e.Replicate, e.Cause)
	}
	return fmt.Sprintf("sweep point %d: replicate %s failed: %v", e.Point, e.Replicate, e.Cause)
}

func (e *ReplicateError) Unwrap() error { return e.Cause }

// IsReplicateError reports whether err came from a failed replicate.
func IsReplicateError(err error) bool {
	var re *ReplicateError
	return errors.As(err, &re)
}
