package projector

import (
	"context"
	"log/slog"

	"github.com/dukex/runwatch/pkg/eventbus"
	"github.com/dukex/runwatch/pkg/events"
	"github.com/dukex/runwatch/pkg/store"
)

// Relay publishes every store change as a records event until the returned
// function is called.
func Relay(ctx context.Context, recordStore *store.Store, publisher eventbus.EventPublisher, logger *slog.Logger) func() {
	logger = logger.With("module", "projector_relay")

	return recordStore.Subscribe(func(change store.Change) {
		var event eventbus.Event

		switch change.Kind {
		case store.ChangeReconciled:
			event = events.RecordsReconciled{
				BaseEvent: events.NewBaseEvent(events.RecordsReconciledEvent, change.CanvasID),
				Count:     change.Count,
			}
		case store.ChangeCleared:
			event = events.RecordsCleared{
				BaseEvent: events.NewBaseEvent(events.RecordsClearedEvent, change.CanvasID),
				Count:     change.Count,
			}
		default:
			return
		}

		err := publisher.Publish(ctx, change.CanvasID, event)
		if err != nil {
			logger.WarnContext(ctx, "Failed to publish store change", "canvas_id", change.CanvasID, "kind", change.Kind, "error", err)
		}
	})
}
