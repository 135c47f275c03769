// Package projector turns the record store into per-canvas status views and
// hands them to whatever renders them.
package projector

import (
	"context"

	"github.com/dukex/runwatch/pkg/models"
	"github.com/dukex/runwatch/pkg/store"
)

// UnknownStatusBanner is shown when polling stopped without a terminal status.
const UnknownStatusBanner = "execution status unknown, stopped polling"

// View is everything a projector needs to render one canvas.
type View struct {
	CanvasID string              `json:"canvas_id"`
	Nodes    []models.NodeStatus `json:"nodes"`
	Run      *models.RunContext  `json:"run,omitempty"`
	Banner   string              `json:"banner,omitempty"`
}

// StatusOf returns the status of a node's own record, idle when never observed.
func (v View) StatusOf(nodeID string) models.Status {
	for _, node := range v.Nodes {
		if node.NodeID == nodeID && node.SubIndex == models.NoSubIndex {
			return node.Status
		}
	}

	return models.StatusIdle
}

type Projector interface {
	Project(ctx context.Context, view View) error
}

// Func adapts a function to Projector.
type Func func(ctx context.Context, view View) error

func (f Func) Project(ctx context.Context, view View) error {
	return f(ctx, view)
}

// RunSource exposes the state of the latest run of a canvas.
type RunSource interface {
	RunContext(canvasID string) (models.RunContext, bool)
}

// BannerFor returns the banner text for a run outcome.
func BannerFor(outcome models.RunOutcome) string {
	if outcome.IsInconclusive() {
		return UnknownStatusBanner
	}

	return ""
}

// BuildView reads the current node statuses and run state of a canvas.
func BuildView(recordStore *store.Store, runs RunSource, canvasID string) View {
	view := View{
		CanvasID: canvasID,
		Nodes:    recordStore.Statuses(canvasID),
	}

	if runs == nil {
		return view
	}

	if run, ok := runs.RunContext(canvasID); ok {
		view.Run = &run
		view.Banner = BannerFor(run.Outcome)
	}

	return view
}
