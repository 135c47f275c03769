package persistence_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dukex/runwatch/pkg/models"
	"github.com/dukex/runwatch/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		err := persistence.NewRunError("RunByID", "run-123", persistence.ErrRunNotFound)

		assert.True(t, persistence.IsRunNotFound(err))
		assert.True(t, errors.Is(err, persistence.ErrRunNotFound))
		assert.True(t, persistence.IsRunNotFound(fmt.Errorf("api: %w", err)))
		assert.False(t, persistence.IsRunNotFound(errors.New("other")))
	})

	t.Run("run error contains context", func(t *testing.T) {
		err := persistence.NewRunError("RunByID", "run-123", persistence.ErrRunNotFound)

		assert.Contains(t, err.Error(), "RunByID")
		assert.Contains(t, err.Error(), "run-123")
		assert.Contains(t, err.Error(), "run not found")
	})

	t.Run("canvas run error names the canvas", func(t *testing.T) {
		err := persistence.NewCanvasRunError("RunsByCanvas", "canvas-9", errors.New("boom"))

		assert.Contains(t, err.Error(), "canvas canvas-9")
	})
}

func TestValidateRun(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, persistence.ValidateRun("SaveRun", nil), persistence.ErrInvalidRun)
	require.ErrorIs(t, persistence.ValidateRun("SaveRun", &models.RunSummary{ID: "r1"}), persistence.ErrInvalidRun)
	require.NoError(t, persistence.ValidateRun("SaveRun", &models.RunSummary{ID: "r1", CanvasID: "c1"}))
}

func TestNormalizeLimit(t *testing.T) {
	t.Parallel()

	assert.Equal(t, persistence.DefaultHistoryLimit, persistence.NormalizeLimit(0))
	assert.Equal(t, persistence.DefaultHistoryLimit, persistence.NormalizeLimit(-4))
	assert.Equal(t, 3, persistence.NormalizeLimit(3))
}

func TestSortNewestFirst(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	runs := []*models.RunSummary{
		{ID: "a", FinishedAt: base},
		{ID: "c", FinishedAt: base.Add(time.Minute)},
		{ID: "b", FinishedAt: base},
	}

	persistence.SortNewestFirst(runs)

	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
	assert.Equal(t, "a", runs[2].ID)
}
