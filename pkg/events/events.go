// Package events defines the run lifecycle and store change notifications.
package events

import (
	"time"

	"github.com/dukex/runwatch/pkg/models"
	"github.com/google/uuid"
)

type EventType string

const Topic = "runwatch.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Run lifecycle events.
	RunStartedEvent     EventType = "run.started"
	RunStartFailedEvent EventType = "run.start_failed"
	RunFinishedEvent    EventType = "run.finished"

	// Record store events.
	RecordsReconciledEvent EventType = "records.reconciled"
	RecordsClearedEvent    EventType = "records.cleared"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	CanvasID  string         `json:"canvas_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, canvasID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		CanvasID:  canvasID,
		Metadata:  make(map[string]any),
	}
}

// Canvas returns the canvas the event belongs to.
func (b BaseEvent) Canvas() string {
	return b.CanvasID
}

type RunStarted struct {
	BaseEvent

	SerialID   string `json:"serial_id"`
	Generation uint64 `json:"generation"`
}

func (r RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunStartFailed struct {
	BaseEvent

	Error        string `json:"error"`
	Unauthorized bool   `json:"unauthorized"`
}

func (r RunStartFailed) GetType() EventType {
	return RunStartFailedEvent
}

type RunFinished struct {
	BaseEvent

	SerialID   string            `json:"serial_id"`
	Generation uint64            `json:"generation"`
	Status     models.Status     `json:"status"`
	Outcome    models.RunOutcome `json:"outcome"`
	Attempts   int               `json:"attempts"`
	Duration   time.Duration     `json:"duration"`
	Error      string            `json:"error,omitempty"`
}

func (r RunFinished) GetType() EventType {
	return RunFinishedEvent
}

type RecordsReconciled struct {
	BaseEvent

	Count int `json:"count"`
}

func (r RecordsReconciled) GetType() EventType {
	return RecordsReconciledEvent
}

type RecordsCleared struct {
	BaseEvent

	Count int `json:"count"`
}

func (r RecordsCleared) GetType() EventType {
	return RecordsClearedEvent
}
