// Package file provides file-based persistence of the run archive.
package file

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dukex/runwatch/pkg/models"
	"github.com/dukex/runwatch/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root    string
	runRepo *RunRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:    cleanRoot,
		runRepo: NewRunRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck reports whether the archive directory exists or can be created.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	err := os.MkdirAll(fp.root, 0o755)
	if err != nil {
		return fmt.Errorf("archive root %s: %w", fp.root, err)
	}

	return nil
}

func (fp *Persistence) SaveRun(ctx context.Context, run *models.RunSummary) error {
	return fp.runRepo.Save(ctx, run)
}

func (fp *Persistence) RunByID(ctx context.Context, id string) (*models.RunSummary, error) {
	return fp.runRepo.GetByID(ctx, id)
}

func (fp *Persistence) RunsByCanvas(ctx context.Context, canvasID string, limit int) ([]*models.RunSummary, error) {
	return fp.runRepo.GetByCanvas(ctx, canvasID, limit)
}

var _ persistence.Persistence = (*Persistence)(nil)
