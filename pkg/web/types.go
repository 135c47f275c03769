package web

import (
	"github.com/dukex/runwatch/pkg/models"
)

// StartRunRequest represents the request body for starting a canvas run.
type StartRunRequest struct {
	Params map[string]any `json:"params"`
}

// StartRunResponse is returned once the workflow backend accepted a run.
type StartRunResponse struct {
	CanvasID   string `json:"canvas_id"`
	SerialID   string `json:"serial_id"`
	Generation uint64 `json:"generation"`
}

// RecordsResponse lists the execution records of a canvas.
type RecordsResponse struct {
	CanvasID string                   `json:"canvas_id"`
	Records  []models.ExecutionRecord `json:"records"`
	Banner   string                   `json:"banner,omitempty"`
}

// RecordQuery selects a node's own record or one of its loop iterations.
type RecordQuery struct {
	SubIndex string `query:"sub_index" validate:"omitempty,number"`
}

// HistoryQuery bounds the archived runs returned for a canvas.
type HistoryQuery struct {
	Limit int `query:"limit" validate:"gte=0,lte=500"`
}

// HistoryResponse lists archived runs of a canvas, newest first.
type HistoryResponse struct {
	CanvasID string               `json:"canvas_id"`
	Runs     []*models.RunSummary `json:"runs"`
}

// ActiveRunsResponse lists canvases whose run is being polled.
type ActiveRunsResponse struct {
	Canvases []string `json:"canvases"`
}
