package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrRunNotFound indicates no archived run exists for the given identifier.
	ErrRunNotFound = errors.New("run not found")

	// ErrInvalidRun indicates a run summary that cannot be archived.
	ErrInvalidRun = errors.New("invalid run")
)

// RunError wraps run archive errors with additional context.
type RunError struct {
	Op       string // Operation being performed (e.g., "RunByID", "SaveRun")
	RunID    string
	CanvasID string
	Err      error
}

func (e *RunError) Error() string {
	target := e.RunID
	if target == "" {
		target = "canvas " + e.CanvasID
	}

	return fmt.Sprintf("%s operation failed for run %s: %v", e.Op, target, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for run errors.
func (e *RunError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRunError creates a new run error for a single run.
func NewRunError(op, runID string, err error) *RunError {
	return &RunError{
		Op:    op,
		RunID: runID,
		Err:   err,
	}
}

// NewCanvasRunError creates a new run error for canvas-wide operations.
func NewCanvasRunError(op, canvasID string, err error) *RunError {
	return &RunError{
		Op:       op,
		CanvasID: canvasID,
		Err:      err,
	}
}

// IsRunNotFound checks if an error indicates a run was not found.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}
