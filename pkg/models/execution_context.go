package models

import "time"

// RunOutcome describes why a run stopped being polled.
type RunOutcome string

const (
	OutcomeRunning     RunOutcome = "running"
	OutcomeCompleted   RunOutcome = "completed"
	OutcomeTimeout     RunOutcome = "timeout"
	OutcomeFetchFailed RunOutcome = "fetch_failed"
	OutcomeCanceled    RunOutcome = "canceled"
	OutcomeSuperseded  RunOutcome = "superseded"
	OutcomeStartFailed RunOutcome = "start_failed"
)

// IsInconclusive reports whether polling stopped without observing a terminal status.
func (o RunOutcome) IsInconclusive() bool {
	return o == OutcomeTimeout || o == OutcomeFetchFailed
}

// RunContext is the ambient state of one run of a canvas.
type RunContext struct {
	CanvasID   string     `json:"canvas_id"`
	SerialID   string     `json:"serial_id,omitempty"`
	Generation uint64     `json:"generation"`
	Running    bool       `json:"running"`
	Outcome    RunOutcome `json:"outcome"`
	Status     Status     `json:"status"`
	Attempts   int        `json:"attempts"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

// TraceSnapshot is one full trace fetched from the remote executor.
type TraceSnapshot struct {
	Status  Status            `json:"status"`
	Records []ExecutionRecord `json:"records"`
}

// RunSummary is the archived view of a finished run.
type RunSummary struct {
	ID         string            `json:"id"`
	CanvasID   string            `json:"canvas_id"`
	SerialID   string            `json:"serial_id"`
	Params     map[string]any    `json:"params,omitempty"`
	Status     Status            `json:"status"`
	Outcome    RunOutcome        `json:"outcome"`
	Attempts   int               `json:"attempts"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Error      string            `json:"error,omitempty"`
	Records    []ExecutionRecord `json:"records"`
}
