package web

import (
	"github.com/dukex/runwatch/pkg/polling"
	"github.com/dukex/runwatch/pkg/schedule"
	"github.com/gofiber/fiber/v3"
)

// ScheduleHandlers exposes the cron schedules of the service.
type ScheduleHandlers struct {
	scheduler   *schedule.Scheduler
	coordinator *polling.Coordinator
}

func NewScheduleHandlers(scheduler *schedule.Scheduler, coordinator *polling.Coordinator) *ScheduleHandlers {
	return &ScheduleHandlers{scheduler: scheduler, coordinator: coordinator}
}

func (h *ScheduleHandlers) Register(router fiber.Router) {
	s := router.Group("/schedules")
	s.Get("/", h.ListSchedules)
	s.Post("/:id/trigger", h.TriggerSchedule)
}

func (h *ScheduleHandlers) ListSchedules(c fiber.Ctx) error {
	return c.JSON(h.scheduler.Entries())
}

// TriggerSchedule starts the schedule's run now without waiting for it.
func (h *ScheduleHandlers) TriggerSchedule(c fiber.Ctx) error {
	scheduleID := c.Params("id")

	sched, ok := h.scheduler.Schedule(scheduleID)
	if !ok {
		return notFound(c, "schedule "+scheduleID+" not found")
	}

	run, err := h.coordinator.Start(c.Context(), sched.CanvasID, sched.Params)
	if err != nil {
		return handleStartError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(StartRunResponse{
		CanvasID:   sched.CanvasID,
		SerialID:   run.SerialID(),
		Generation: run.Generation(),
	})
}
