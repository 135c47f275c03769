package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"testing"

	"github.com/dukex/runwatch/pkg/models"
	"github.com/dukex/runwatch/pkg/schedule"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestScheduleHandlers(t *testing.T) {
	ta := setupTestApp(t, nil)

	scheduler := schedule.New(ta.coordinator, slog.Default())

	nightly, err := models.NewCanvasSchedule("nightly", "canvas-1", "0 3 * * *", map[string]any{"source": "cron"})
	require.NoError(t, err)
	require.NoError(t, scheduler.Add(nightly))

	NewScheduleHandlers(scheduler, ta.coordinator).Register(ta.app)

	resp, body := ta.do(t, http.MethodGet, "/schedules", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var entries []schedule.Entry
	require.NoError(t, json.Unmarshal(body, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "nightly", entries[0].ScheduleID)

	ta.client.On("StartRun", mock.Anything, "canvas-1", map[string]any{"source": "cron"}).Return("serial-9", nil).Once()
	ta.client.On("FetchTrace", mock.Anything, "canvas-1", "serial-9").Return(successTrace(), nil)

	resp, body = ta.do(t, http.MethodPost, "/schedules/nightly/trigger", nil)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	var started StartRunResponse
	require.NoError(t, json.Unmarshal(body, &started))
	assert.Equal(t, "serial-9", started.SerialID)

	ta.waitIdle(t, "canvas-1")

	resp, _ = ta.do(t, http.MethodPost, "/schedules/missing/trigger", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	ta.client.AssertExpectations(t)
}
