// Package remote talks to the workflow backend that executes canvases.
package remote

import (
	"context"

	"github.com/dukex/runwatch/pkg/models"
)

// Client starts canvas runs and fetches their traces.
type Client interface {
	// StartRun begins executing the canvas with params and returns the serial id
	// of the run.
	StartRun(ctx context.Context, canvasID string, params map[string]any) (string, error)
	// FetchTrace returns the current snapshot of a run. It is an idempotent read.
	FetchTrace(ctx context.Context, canvasID, serialID string) (*models.TraceSnapshot, error)
}
