package projector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/runwatch/pkg/eventbus"
	"github.com/dukex/runwatch/pkg/events"
	"github.com/dukex/runwatch/pkg/store"
)

// canvasEvent is implemented by every event through events.BaseEvent.
type canvasEvent interface {
	Canvas() string
}

// Dispatcher rebuilds the view of a canvas whenever an event about it arrives
// and passes it to the projector.
type Dispatcher struct {
	store     *store.Store
	runs      RunSource
	projector Projector
	logger    *slog.Logger
}

func NewDispatcher(recordStore *store.Store, runs RunSource, projector Projector, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:     recordStore,
		runs:      runs,
		projector: projector,
		logger:    logger.With("module", "projector_dispatcher"),
	}
}

// Register handles every run and records event of the bus.
func (d *Dispatcher) Register(subscriber eventbus.EventSubscriber) error {
	for _, eventType := range []events.EventType{
		events.RunStartedEvent,
		events.RunStartFailedEvent,
		events.RunFinishedEvent,
		events.RecordsReconciledEvent,
		events.RecordsClearedEvent,
	} {
		err := subscriber.Handle(eventType, d.Handle)
		if err != nil {
			return fmt.Errorf("failed to register %s handler: %w", eventType, err)
		}
	}

	return nil
}

// Handle is an eventbus.EventHandler.
func (d *Dispatcher) Handle(ctx context.Context, event any) error {
	canvas, ok := event.(canvasEvent)
	if !ok {
		d.logger.DebugContext(ctx, "Ignoring event without canvas", "event", fmt.Sprintf("%T", event))

		return nil
	}

	return d.Refresh(ctx, canvas.Canvas())
}

// Refresh projects the current view of canvasID.
func (d *Dispatcher) Refresh(ctx context.Context, canvasID string) error {
	if canvasID == "" {
		return nil
	}

	err := d.projector.Project(ctx, BuildView(d.store, d.runs, canvasID))
	if err != nil {
		return fmt.Errorf("failed to project canvas %s: %w", canvasID, err)
	}

	return nil
}
