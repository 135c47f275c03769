package projector

import (
	"context"
	"log/slog"

	"github.com/dukex/runwatch/pkg/models"
)

// LogProjector writes each view as one structured log line.
type LogProjector struct {
	logger *slog.Logger
}

func NewLogProjector(logger *slog.Logger) *LogProjector {
	return &LogProjector{logger: logger.With("module", "projector")}
}

func (p *LogProjector) Project(ctx context.Context, view View) error {
	counts := make(map[models.Status]int)
	for _, node := range view.Nodes {
		counts[node.Status]++
	}

	attrs := []any{"canvas_id", view.CanvasID, "nodes", len(view.Nodes)}

	for status, count := range counts {
		attrs = append(attrs, string(status), count)
	}

	if view.Run != nil {
		attrs = append(attrs, "outcome", view.Run.Outcome, "attempts", view.Run.Attempts)
	}

	if view.Banner != "" {
		p.logger.WarnContext(ctx, view.Banner, attrs...)

		return nil
	}

	p.logger.InfoContext(ctx, "Canvas status", attrs...)

	return nil
}
