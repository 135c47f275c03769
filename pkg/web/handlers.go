// Package web provides the HTTP handlers for starting, following and
// inspecting canvas runs.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/runwatch/pkg/config"
	"github.com/dukex/runwatch/pkg/models"
	"github.com/dukex/runwatch/pkg/persistence"
	"github.com/dukex/runwatch/pkg/polling"
	"github.com/dukex/runwatch/pkg/projector"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	coordinator *polling.Coordinator
	archive     persistence.Persistence
	canvases    *config.File
	validator   *validator.Validate
}

func NewAPIHandlers(
	coordinator *polling.Coordinator,
	archive persistence.Persistence,
	canvases *config.File,
	validator *validator.Validate,
) *APIHandlers {
	if canvases == nil {
		canvases = &config.File{}
	}

	return &APIHandlers{
		coordinator: coordinator,
		archive:     archive,
		canvases:    canvases,
		validator:   validator,
	}
}

// Register mounts every run and record route on router.
func (h *APIHandlers) Register(router fiber.Router) {
	c := router.Group("/canvases")
	c.Post("/:id/runs", h.StartRun)
	c.Get("/:id/run", h.GetRun)
	c.Delete("/:id/run", h.CancelRun)
	c.Get("/:id/records", h.GetRecords)
	c.Get("/:id/records/:nodeId", h.GetRecord)
	c.Delete("/:id/records", h.ClearRecords)
	c.Get("/:id/view", h.GetView)
	c.Get("/:id/history", h.GetHistory)

	r := router.Group("/runs")
	r.Get("/", h.GetActiveRuns)
	r.Get("/:runId", h.GetArchivedRun)

	router.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK
	archiveCheck := "ok"

	if h.archive != nil {
		err := h.archive.HealthCheck(c.Context())
		if err != nil {
			status = "unhealthy"
			httpStatus = http.StatusInternalServerError
			archiveCheck = err.Error()
		}
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"archive": archiveCheck,
		},
		"active_runs": len(h.coordinator.Active()),
		"timestamp":   time.Now().UTC(),
	})
}

// StartRun starts a run and answers as soon as the backend accepted it;
// polling continues in the background.
func (h *APIHandlers) StartRun(c fiber.Ctx) error {
	canvasID := c.Params("id")

	var req StartRunRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	run, err := h.coordinator.Start(c.Context(), canvasID, h.canvases.RunParams(canvasID, req.Params))
	if err != nil {
		return handleStartError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(StartRunResponse{
		CanvasID:   canvasID,
		SerialID:   run.SerialID(),
		Generation: run.Generation(),
	})
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	canvasID := c.Params("id")

	run, ok := h.coordinator.RunContext(canvasID)
	if !ok {
		return notFound(c, "no run for canvas "+canvasID)
	}

	return c.JSON(run)
}

func (h *APIHandlers) CancelRun(c fiber.Ctx) error {
	canvasID := c.Params("id")

	if !h.coordinator.Cancel(canvasID) {
		return notFound(c, "no active run for canvas "+canvasID)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetRecords(c fiber.Ctx) error {
	canvasID := c.Params("id")

	response := RecordsResponse{
		CanvasID: canvasID,
		Records:  h.coordinator.Store().Records(canvasID),
	}

	if run, ok := h.coordinator.RunContext(canvasID); ok {
		response.Banner = projector.BannerFor(run.Outcome)
	}

	return c.JSON(response)
}

func (h *APIHandlers) GetRecord(c fiber.Ctx) error {
	canvasID := c.Params("id")
	nodeID := c.Params("nodeId")

	var query RecordQuery
	if err := c.Bind().Query(&query); err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	if err := h.validator.Struct(query); err != nil {
		return badRequest(c, err.Error())
	}

	subIndex := models.NoSubIndex

	if query.SubIndex != "" {
		parsed, err := strconv.Atoi(query.SubIndex)
		if err != nil {
			return badRequest(c, "Invalid sub_index")
		}

		subIndex = parsed
	}

	record, ok := h.coordinator.Store().GetIteration(canvasID, nodeID, subIndex)
	if !ok {
		return notFound(c, "no record for node "+nodeID)
	}

	return c.JSON(record)
}

func (h *APIHandlers) ClearRecords(c fiber.Ctx) error {
	h.coordinator.Store().ClearCanvas(c.Params("id"))

	return c.SendStatus(fiber.StatusNoContent)
}

// GetView returns what a status projector would render for the canvas.
func (h *APIHandlers) GetView(c fiber.Ctx) error {
	canvasID := c.Params("id")

	return c.JSON(projector.BuildView(h.coordinator.Store(), h.coordinator, canvasID))
}

func (h *APIHandlers) GetActiveRuns(c fiber.Ctx) error {
	return c.JSON(ActiveRunsResponse{Canvases: h.coordinator.Active()})
}

func (h *APIHandlers) GetHistory(c fiber.Ctx) error {
	canvasID := c.Params("id")

	var query HistoryQuery
	if err := c.Bind().Query(&query); err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	if err := h.validator.Struct(query); err != nil {
		return badRequest(c, err.Error())
	}

	response := HistoryResponse{CanvasID: canvasID, Runs: make([]*models.RunSummary, 0)}

	if h.archive == nil {
		return c.JSON(response)
	}

	runs, err := h.archive.RunsByCanvas(c.Context(), canvasID, query.Limit)
	if err != nil {
		return handleArchiveError(c, err)
	}

	response.Runs = runs

	return c.JSON(response)
}

func (h *APIHandlers) GetArchivedRun(c fiber.Ctx) error {
	runID := c.Params("runId")

	if h.archive == nil {
		return notFound(c, "run archive is not configured")
	}

	run, err := h.archive.RunByID(c.Context(), runID)
	if err != nil {
		return handleArchiveError(c, err)
	}

	return c.JSON(run)
}
