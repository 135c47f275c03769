package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukex/runwatch/pkg/models"
	"github.com/dukex/runwatch/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRun(id, canvasID string, finishedAt time.Time) *models.RunSummary {
	return &models.RunSummary{
		ID:         id,
		CanvasID:   canvasID,
		SerialID:   "serial-" + id,
		Params:     map[string]any{"region": "eu"},
		Status:     models.StatusSuccess,
		Outcome:    models.OutcomeCompleted,
		Attempts:   3,
		StartedAt:  finishedAt.Add(-time.Minute),
		FinishedAt: finishedAt,
		Records: []models.ExecutionRecord{
			{NodeID: "n1", SubIndex: models.NoSubIndex, Status: models.StatusSuccess},
		},
	}
}

func TestNewPersistence(t *testing.T) {
	p := NewPersistence("/tmp/test")
	assert.Equal(t, "/tmp/test", p.root)

	p = NewPersistence("file:///tmp/test")
	assert.Equal(t, "/tmp/test", p.root)
}

func TestPersistence_HealthCheck(t *testing.T) {
	p := NewPersistence(t.TempDir())
	require.NoError(t, p.HealthCheck(t.Context()))
	require.NoError(t, p.Close(t.Context()))

	root := filepath.Join(t.TempDir(), "archive")
	require.NoError(t, NewPersistence(root).HealthCheck(t.Context()))
	assert.DirExists(t, root)

	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	require.Error(t, NewPersistence(filepath.Join(blocker, "archive")).HealthCheck(t.Context()))
}

func TestPersistence_SaveAndGetRun(t *testing.T) {
	testDir := t.TempDir()
	p := NewPersistence(testDir)

	run := testRun("run-1", "canvas-1", time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))

	require.NoError(t, p.SaveRun(t.Context(), run))
	assert.FileExists(t, filepath.Join(testDir, "runs", "run-1.json"))

	got, err := p.RunByID(t.Context(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.SerialID, got.SerialID)
	assert.Equal(t, models.OutcomeCompleted, got.Outcome)
	assert.Equal(t, "eu", got.Params["region"])
	require.Len(t, got.Records, 1)
	assert.Equal(t, models.NoSubIndex, got.Records[0].SubIndex)
	assert.True(t, run.FinishedAt.Equal(got.FinishedAt))
}

func TestPersistence_RunByID_NotFound(t *testing.T) {
	p := NewPersistence(t.TempDir())

	_, err := p.RunByID(t.Context(), "nope")
	require.Error(t, err)
	assert.True(t, persistence.IsRunNotFound(err))

	_, err = p.RunByID(t.Context(), "../etc/passwd")
	assert.True(t, persistence.IsRunNotFound(err))
}

func TestPersistence_SaveRun_Invalid(t *testing.T) {
	p := NewPersistence(t.TempDir())

	err := p.SaveRun(t.Context(), &models.RunSummary{ID: "a/b", CanvasID: "c"})
	require.ErrorIs(t, err, persistence.ErrInvalidRun)

	err = p.SaveRun(t.Context(), &models.RunSummary{ID: "r"})
	require.ErrorIs(t, err, persistence.ErrInvalidRun)
}

func TestPersistence_RunsByCanvas(t *testing.T) {
	p := NewPersistence(t.TempDir())
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	runs, err := p.RunsByCanvas(t.Context(), "canvas-1", 10)
	require.NoError(t, err)
	assert.Empty(t, runs)

	require.NoError(t, p.SaveRun(t.Context(), testRun("r1", "canvas-1", base)))
	require.NoError(t, p.SaveRun(t.Context(), testRun("r2", "canvas-1", base.Add(2*time.Minute))))
	require.NoError(t, p.SaveRun(t.Context(), testRun("r3", "canvas-1", base.Add(time.Minute))))
	require.NoError(t, p.SaveRun(t.Context(), testRun("other", "canvas-2", base.Add(time.Hour))))

	runs, err = p.RunsByCanvas(t.Context(), "canvas-1", 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "r2", runs[0].ID)
	assert.Equal(t, "r3", runs[1].ID)
	assert.Equal(t, "r1", runs[2].ID)

	runs, err = p.RunsByCanvas(t.Context(), "canvas-1", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r2", runs[0].ID)
}

func TestPersistence_SaveRun_Overwrites(t *testing.T) {
	p := NewPersistence(t.TempDir())
	run := testRun("r1", "canvas-1", time.Now().UTC())

	require.NoError(t, p.SaveRun(t.Context(), run))

	run.Outcome = models.OutcomeTimeout
	require.NoError(t, p.SaveRun(t.Context(), run))

	got, err := p.RunByID(t.Context(), "r1")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeTimeout, got.Outcome)

	runs, err := p.RunsByCanvas(t.Context(), "canvas-1", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
