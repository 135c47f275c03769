package polling

import (
	"errors"
	"fmt"

	"github.com/dukex/runwatch/pkg/remote"
)

var (
	// ErrEmptyCanvasID indicates a run request without a canvas.
	ErrEmptyCanvasID = errors.New("canvas id is required")

	// ErrClosed indicates a Start after Close.
	ErrClosed = errors.New("coordinator closed")

	// ErrSuperseded is the cancellation cause of a run replaced by a newer run of the same canvas.
	ErrSuperseded = errors.New("run superseded by a newer run")

	// ErrCanceled is the cancellation cause of a run stopped through Cancel or Close.
	ErrCanceled = errors.New("run canceled")
)

// StartRunError reports that the remote executor did not start a run. The
// remote error is kept unchanged so remote.IsUnauthorized and friends still
// match through errors.Is and errors.As.
type StartRunError struct {
	CanvasID string
	Err      error
}

func (e *StartRunError) Error() string {
	return fmt.Sprintf("failed to start run of canvas %s: %v", e.CanvasID, e.Err)
}

func (e *StartRunError) Unwrap() error {
	return e.Err
}

// IsStartRunError checks if an error came from a failed start request.
func IsStartRunError(err error) bool {
	var startErr *StartRunError

	return errors.As(err, &startErr)
}

// startFailureReason labels a start failure for metrics.
func startFailureReason(err error) string {
	switch {
	case remote.IsUnauthorized(err):
		return "unauthorized"
	case remote.IsInvalidParams(err):
		return "invalid_params"
	case remote.IsRejected(err):
		return "rejected"
	default:
		return "other"
	}
}
