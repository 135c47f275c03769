package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/runwatch/pkg/config"
	"github.com/dukex/runwatch/pkg/mocks"
	"github.com/dukex/runwatch/pkg/models"
	"github.com/dukex/runwatch/pkg/persistence/file"
	"github.com/dukex/runwatch/pkg/polling"
	"github.com/dukex/runwatch/pkg/projector"
	"github.com/dukex/runwatch/pkg/remote"
	"github.com/dukex/runwatch/pkg/store"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	app         *fiber.App
	client      *mocks.MockRemoteClient
	coordinator *polling.Coordinator
	archive     *file.Persistence
}

func setupTestApp(t *testing.T, canvases *config.File) *testApp {
	t.Helper()

	client := &mocks.MockRemoteClient{}
	archive := file.NewPersistence(t.TempDir())

	coordinator := polling.New(client, store.New(),
		polling.WithInterval(time.Millisecond),
		polling.WithMaxAttempts(5),
		polling.WithArchive(archive),
	)
	t.Cleanup(coordinator.Close)

	handlers := NewAPIHandlers(coordinator, archive, canvases, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()
	handlers.Register(app)

	return &testApp{app: app, client: client, coordinator: coordinator, archive: archive}
}

func (ta *testApp) do(t *testing.T, method, target string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		raw, ok := body.(string)
		if !ok {
			encoded, err := json.Marshal(body)
			require.NoError(t, err)

			raw = string(encoded)
		}

		reader = bytes.NewBufferString(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := ta.app.Test(req)
	require.NoError(t, err)

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, payload
}

func (ta *testApp) waitIdle(t *testing.T, canvasID string) {
	t.Helper()

	require.Eventually(t, func() bool {
		return !ta.coordinator.IsRunning(canvasID)
	}, 2*time.Second, 5*time.Millisecond)
}

func successTrace() *models.TraceSnapshot {
	return &models.TraceSnapshot{
		Status: models.StatusSuccess,
		Records: []models.ExecutionRecord{
			{NodeID: "fetch", SubIndex: models.NoSubIndex, Status: models.StatusSuccess},
			{NodeID: "loop", SubIndex: models.NoSubIndex, Status: models.StatusSuccess},
			{NodeID: "loop", SubIndex: 0, Status: models.StatusSuccess, Outputs: map[string]any{"n": float64(1)}},
		},
	}
}

func TestStartRun(t *testing.T) {
	ta := setupTestApp(t, nil)

	ta.client.On("StartRun", mock.Anything, "canvas-1", map[string]any{"city": "Lisbon"}).Return("serial-1", nil).Once()
	ta.client.On("FetchTrace", mock.Anything, "canvas-1", "serial-1").Return(successTrace(), nil)

	resp, body := ta.do(t, http.MethodPost, "/canvases/canvas-1/runs", StartRunRequest{
		Params: map[string]any{"city": "Lisbon"},
	})
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	var started StartRunResponse
	require.NoError(t, json.Unmarshal(body, &started))
	assert.Equal(t, "canvas-1", started.CanvasID)
	assert.Equal(t, "serial-1", started.SerialID)
	assert.Equal(t, uint64(1), started.Generation)

	ta.waitIdle(t, "canvas-1")

	resp, body = ta.do(t, http.MethodGet, "/canvases/canvas-1/run", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var run models.RunContext
	require.NoError(t, json.Unmarshal(body, &run))
	assert.Equal(t, models.OutcomeCompleted, run.Outcome)
	assert.Equal(t, models.StatusSuccess, run.Status)
	assert.False(t, run.Running)

	ta.client.AssertExpectations(t)
}

func TestStartRun_MergesConfiguredDefaults(t *testing.T) {
	canvases := &config.File{
		Canvases: []config.CanvasConfig{
			{ID: "canvas-1", Params: map[string]any{"city": "Porto", "units": "metric"}},
		},
	}
	ta := setupTestApp(t, canvases)

	ta.client.On("StartRun", mock.Anything, "canvas-1", map[string]any{"city": "Lisbon", "units": "metric"}).
		Return("serial-1", nil).Once()
	ta.client.On("FetchTrace", mock.Anything, "canvas-1", "serial-1").Return(successTrace(), nil)

	resp, _ := ta.do(t, http.MethodPost, "/canvases/canvas-1/runs", StartRunRequest{
		Params: map[string]any{"city": "Lisbon"},
	})
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	ta.waitIdle(t, "canvas-1")
	ta.client.AssertExpectations(t)
}

func TestStartRun_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		startErr   error
		wantStatus int
		wantType   string
	}{
		{
			name:       "invalid json",
			body:       `{"params":`,
			wantStatus: fiber.StatusBadRequest,
			wantType:   "validation_error",
		},
		{
			name:       "invalid params",
			body:       StartRunRequest{},
			startErr:   &remote.RemoteError{Op: "StartRun", CanvasID: "canvas-1", Err: remote.ErrInvalidParams},
			wantStatus: fiber.StatusBadRequest,
			wantType:   "validation_error",
		},
		{
			name:       "unauthorized",
			body:       StartRunRequest{},
			startErr:   &remote.RemoteError{Op: "StartRun", CanvasID: "canvas-1", StatusCode: 401, Err: remote.ErrUnauthorized},
			wantStatus: fiber.StatusUnauthorized,
			wantType:   "unauthorized",
		},
		{
			name:       "rejected",
			body:       StartRunRequest{},
			startErr:   &remote.RemoteError{Op: "StartRun", CanvasID: "canvas-1", Code: 1001, Err: remote.ErrRemoteRejected},
			wantStatus: fiber.StatusBadGateway,
			wantType:   "remote_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := setupTestApp(t, nil)

			if tt.startErr != nil {
				ta.client.On("StartRun", mock.Anything, "canvas-1", mock.Anything).Return("", tt.startErr).Once()
			}

			resp, body := ta.do(t, http.MethodPost, "/canvases/canvas-1/runs", tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var problem map[string]any
			require.NoError(t, json.Unmarshal(body, &problem))
			assert.Equal(t, tt.wantType, problem["type"])
			assert.Equal(t, "/canvases/canvas-1/runs", problem["instance"])

			ta.client.AssertExpectations(t)
			ta.client.AssertNotCalled(t, "FetchTrace", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestStartRun_EmptyBody(t *testing.T) {
	ta := setupTestApp(t, nil)

	ta.client.On("StartRun", mock.Anything, "canvas-1", mock.Anything).Return("serial-1", nil).Once()
	ta.client.On("FetchTrace", mock.Anything, "canvas-1", "serial-1").Return(successTrace(), nil)

	resp, _ := ta.do(t, http.MethodPost, "/canvases/canvas-1/runs", nil)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	ta.waitIdle(t, "canvas-1")
}

func TestGetRun_NotFound(t *testing.T) {
	ta := setupTestApp(t, nil)

	resp, _ := ta.do(t, http.MethodGet, "/canvases/missing/run", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestCancelRun(t *testing.T) {
	ta := setupTestApp(t, nil)

	running := &models.TraceSnapshot{Status: models.StatusRunning}

	ta.client.On("StartRun", mock.Anything, "canvas-1", mock.Anything).Return("serial-1", nil).Once()
	ta.client.On("FetchTrace", mock.Anything, "canvas-1", "serial-1").Return(running, nil).Maybe()

	run, err := ta.coordinator.Start(context.Background(), "canvas-1", nil)
	require.NoError(t, err)

	resp, _ := ta.do(t, http.MethodDelete, "/canvases/canvas-1/run", nil)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	result := run.Wait()
	assert.Equal(t, models.OutcomeCanceled, result.Outcome)

	resp, _ = ta.do(t, http.MethodDelete, "/canvases/canvas-1/run", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestRecords(t *testing.T) {
	ta := setupTestApp(t, nil)

	ta.coordinator.Store().Reconcile("canvas-1", successTrace().Records)

	resp, body := ta.do(t, http.MethodGet, "/canvases/canvas-1/records", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var records RecordsResponse
	require.NoError(t, json.Unmarshal(body, &records))
	assert.Equal(t, "canvas-1", records.CanvasID)
	assert.Len(t, records.Records, 3)
	assert.Empty(t, records.Banner)

	resp, body = ta.do(t, http.MethodGet, "/canvases/canvas-1/records/loop?sub_index=0", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var record models.ExecutionRecord
	require.NoError(t, json.Unmarshal(body, &record))
	assert.Equal(t, 0, record.SubIndex)
	assert.Equal(t, float64(1), record.Outputs["n"])

	resp, body = ta.do(t, http.MethodGet, "/canvases/canvas-1/records/loop", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &record))
	assert.Equal(t, models.NoSubIndex, record.SubIndex)

	resp, _ = ta.do(t, http.MethodGet, "/canvases/canvas-1/records/loop?sub_index=7", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = ta.do(t, http.MethodGet, "/canvases/canvas-1/records/loop?sub_index=abc", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = ta.do(t, http.MethodDelete, "/canvases/canvas-1/records", nil)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Empty(t, ta.coordinator.Store().Records("canvas-1"))
}

func TestRecords_BannerAfterTimeout(t *testing.T) {
	ta := setupTestApp(t, nil)

	ta.client.On("StartRun", mock.Anything, "canvas-1", mock.Anything).Return("serial-1", nil).Once()
	ta.client.On("FetchTrace", mock.Anything, "canvas-1", "serial-1").
		Return(&models.TraceSnapshot{Status: models.StatusRunning}, nil)

	run, err := ta.coordinator.Start(context.Background(), "canvas-1", nil)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeTimeout, run.Wait().Outcome)

	_, body := ta.do(t, http.MethodGet, "/canvases/canvas-1/records", nil)

	var records RecordsResponse
	require.NoError(t, json.Unmarshal(body, &records))
	assert.Equal(t, projector.UnknownStatusBanner, records.Banner)
}

func TestGetView(t *testing.T) {
	ta := setupTestApp(t, nil)

	ta.coordinator.Store().Reconcile("canvas-1", []models.ExecutionRecord{
		{NodeID: "fetch", SubIndex: models.NoSubIndex, Status: models.StatusError, Error: "boom"},
	})

	resp, body := ta.do(t, http.MethodGet, "/canvases/canvas-1/view", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var view projector.View
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, "canvas-1", view.CanvasID)
	assert.Equal(t, models.StatusError, view.StatusOf("fetch"))
	assert.Equal(t, models.StatusIdle, view.StatusOf("other"))
	assert.Nil(t, view.Run)
}

func TestHistoryAndArchivedRun(t *testing.T) {
	ta := setupTestApp(t, nil)

	ta.client.On("StartRun", mock.Anything, "canvas-1", mock.Anything).Return("serial-1", nil).Once()
	ta.client.On("FetchTrace", mock.Anything, "canvas-1", "serial-1").Return(successTrace(), nil)

	run, err := ta.coordinator.Start(context.Background(), "canvas-1", nil)
	require.NoError(t, err)
	run.Wait()

	resp, body := ta.do(t, http.MethodGet, "/canvases/canvas-1/history?limit=10", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var history HistoryResponse
	require.NoError(t, json.Unmarshal(body, &history))
	require.Len(t, history.Runs, 1)
	assert.Equal(t, "serial-1", history.Runs[0].SerialID)
	assert.Equal(t, models.OutcomeCompleted, history.Runs[0].Outcome)

	resp, body = ta.do(t, http.MethodGet, "/runs/"+history.Runs[0].ID, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var summary models.RunSummary
	require.NoError(t, json.Unmarshal(body, &summary))
	assert.Len(t, summary.Records, 3)

	resp, _ = ta.do(t, http.MethodGet, "/runs/does-not-exist", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = ta.do(t, http.MethodGet, "/canvases/canvas-1/history?limit=9000", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestGetActiveRuns(t *testing.T) {
	ta := setupTestApp(t, nil)

	resp, body := ta.do(t, http.MethodGet, "/runs", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var active ActiveRunsResponse
	require.NoError(t, json.Unmarshal(body, &active))
	assert.Empty(t, active.Canvases)
}

func TestHealthCheck(t *testing.T) {
	ta := setupTestApp(t, nil)

	resp, body := ta.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var health map[string]any
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, float64(0), health["active_runs"])
}

func TestHealthCheck_UnhealthyArchive(t *testing.T) {
	archive := &mocks.MockPersistence{}
	archive.On("HealthCheck", mock.Anything).Return(assert.AnError)

	coordinator := polling.New(&mocks.MockRemoteClient{}, store.New())
	t.Cleanup(coordinator.Close)

	app := fiber.New()
	NewAPIHandlers(coordinator, archive, nil, validator.New()).Register(app)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}
