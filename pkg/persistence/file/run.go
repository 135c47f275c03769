package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/runwatch/pkg/models"
	"github.com/dukex/runwatch/pkg/persistence"
)

// RunRepository stores one JSON file per archived run.
type RunRepository struct {
	root string
	mu   sync.RWMutex
}

// NewRunRepository creates a new run repository.
func NewRunRepository(root string) *RunRepository {
	return &RunRepository{root: root}
}

func (rr *RunRepository) dir() string {
	return filepath.Join(rr.root, "runs")
}

// validateRunID rejects ids that would escape the runs directory.
func validateRunID(runID string) error {
	if runID == "" {
		return errors.New("run ID cannot be empty")
	}

	if strings.Contains(runID, "..") || strings.ContainsAny(runID, `/\`) {
		return errors.New("run ID contains invalid characters")
	}

	return nil
}

// Save writes a run summary, replacing any previous file with the same ID.
func (rr *RunRepository) Save(_ context.Context, run *models.RunSummary) error {
	err := persistence.ValidateRun("SaveRun", run)
	if err != nil {
		return err
	}

	err = validateRunID(run.ID)
	if err != nil {
		return persistence.NewRunError("SaveRun", run.ID, errors.Join(persistence.ErrInvalidRun, err))
	}

	rr.mu.Lock()
	defer rr.mu.Unlock()

	err = os.MkdirAll(rr.dir(), 0750)
	if err != nil {
		return fmt.Errorf("failed to create runs directory: %w", err)
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run %s: %w", run.ID, err)
	}

	// Write then rename so readers never see a partial file.
	tmp := filepath.Join(rr.dir(), "."+run.ID+".tmp")

	err = os.WriteFile(tmp, data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write run %s: %w", run.ID, err)
	}

	err = os.Rename(tmp, filepath.Join(rr.dir(), run.ID+".json"))
	if err != nil {
		return fmt.Errorf("failed to store run %s: %w", run.ID, err)
	}

	return nil
}

// GetByID reads a run summary by ID.
func (rr *RunRepository) GetByID(_ context.Context, runID string) (*models.RunSummary, error) {
	err := validateRunID(runID)
	if err != nil {
		return nil, persistence.NewRunError("RunByID", runID, persistence.ErrRunNotFound)
	}

	rr.mu.RLock()
	defer rr.mu.RUnlock()

	return rr.read(runID + ".json")
}

func (rr *RunRepository) read(name string) (*models.RunSummary, error) {
	runID := strings.TrimSuffix(name, ".json")

	body, err := os.ReadFile(filepath.Join(rr.dir(), name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewRunError("RunByID", runID, persistence.ErrRunNotFound)
		}

		return nil, fmt.Errorf("failed to fetch run %s: %w", runID, err)
	}

	var run models.RunSummary

	err = json.Unmarshal(body, &run)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", runID, err)
	}

	return &run, nil
}

// GetByCanvas scans the archive for runs of one canvas, newest first.
func (rr *RunRepository) GetByCanvas(_ context.Context, canvasID string, limit int) ([]*models.RunSummary, error) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	runs := make([]*models.RunSummary, 0)

	jsonFiles, err := fs.Glob(os.DirFS(rr.dir()), "*.json")
	if err != nil {
		return nil, persistence.NewCanvasRunError("RunsByCanvas", canvasID, err)
	}

	for _, name := range jsonFiles {
		run, err := rr.read(name)
		if err != nil {
			return nil, persistence.NewCanvasRunError("RunsByCanvas", canvasID, err)
		}

		if run.CanvasID == canvasID {
			runs = append(runs, run)
		}
	}

	persistence.SortNewestFirst(runs)

	limit = persistence.NormalizeLimit(limit)
	if len(runs) > limit {
		runs = runs[:limit]
	}

	return runs, nil
}
