// Package persistence provides the run archive abstraction for finished runs.
package persistence

import (
	"context"
	"sort"

	"github.com/dukex/runwatch/pkg/models"
)

// DefaultHistoryLimit bounds RunsByCanvas when no limit is given.
const DefaultHistoryLimit = 50

type Persistence interface {
	SaveRun(ctx context.Context, run *models.RunSummary) error
	RunByID(ctx context.Context, id string) (*models.RunSummary, error)
	// RunsByCanvas returns the most recently finished runs of a canvas, newest first.
	RunsByCanvas(ctx context.Context, canvasID string, limit int) ([]*models.RunSummary, error)
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}

// NormalizeLimit maps non-positive limits to DefaultHistoryLimit.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}

	return limit
}

// SortNewestFirst orders runs by finish time descending, breaking ties by ID.
func SortNewestFirst(runs []*models.RunSummary) {
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].FinishedAt.Equal(runs[j].FinishedAt) {
			return runs[i].ID > runs[j].ID
		}

		return runs[i].FinishedAt.After(runs[j].FinishedAt)
	})
}

// ValidateRun checks the fields every backend needs to index a run.
func ValidateRun(op string, run *models.RunSummary) error {
	if run == nil {
		return NewRunError(op, "", ErrInvalidRun)
	}

	if run.ID == "" || run.CanvasID == "" {
		return &RunError{Op: op, RunID: run.ID, CanvasID: run.CanvasID, Err: ErrInvalidRun}
	}

	return nil
}
