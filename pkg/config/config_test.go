package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
remote:
  base_url: https://flows.example.com/api
  token: secret
  timeout: 15s
polling:
  interval: 500ms
  max_attempts: 120
canvases:
  - id: c1
    name: Nightly import
    params:
      region: eu
      batch: 10
    param_schema:
      type: object
      required: [region]
    schedules:
      - id: nightly
        cron: "0 2 * * *"
        params:
          batch: 50
      - id: paused
        cron: "@hourly"
        active: false
  - id: c2
`

type registryFunc func(canvasID string, schema map[string]any) error

func (f registryFunc) RegisterParamSchema(canvasID string, schema map[string]any) error {
	return f(canvasID, schema)
}

func TestParse(t *testing.T) {
	file, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "https://flows.example.com/api", file.Remote.BaseURL)
	assert.Equal(t, 15*time.Second, file.Remote.Timeout)
	assert.Equal(t, 500*time.Millisecond, file.Polling.Interval)
	assert.Equal(t, 120, file.Polling.MaxAttempts)
	require.Len(t, file.Canvases, 2)

	canvas, ok := file.Canvas("c1")
	require.True(t, ok)
	assert.Equal(t, "Nightly import", canvas.Name)
	assert.Equal(t, "eu", canvas.Params["region"])

	_, ok = file.Canvas("missing")
	assert.False(t, ok)
}

func TestFile_Schedules(t *testing.T) {
	file, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	schedules, err := file.Schedules()
	require.NoError(t, err)
	require.Len(t, schedules, 2)

	nightly := schedules[0]
	assert.Equal(t, "nightly", nightly.ID)
	assert.Equal(t, "c1", nightly.CanvasID)
	assert.True(t, nightly.Active)
	assert.Equal(t, "eu", nightly.Params["region"])
	assert.Equal(t, 50, nightly.Params["batch"])
	assert.False(t, nightly.NextDueAt.IsZero())

	assert.False(t, schedules[1].Active)
}

func TestFile_RunParams(t *testing.T) {
	file, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	params := file.RunParams("c1", map[string]any{"batch": 1})
	assert.Equal(t, map[string]any{"region": "eu", "batch": 1}, params)

	assert.Nil(t, file.RunParams("c2", nil))
	assert.Equal(t, map[string]any{"a": 1}, file.RunParams("unknown", map[string]any{"a": 1}))
}

func TestFile_RegisterParamSchemas(t *testing.T) {
	file, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	registered := make(map[string]map[string]any)

	err = file.RegisterParamSchemas(registryFunc(func(canvasID string, schema map[string]any) error {
		registered[canvasID] = schema

		return nil
	}))
	require.NoError(t, err)
	require.Len(t, registered, 1)
	assert.Equal(t, "object", registered["c1"]["type"])

	err = file.RegisterParamSchemas(registryFunc(func(string, map[string]any) error {
		return errors.New("bad schema")
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "c1")
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		config string
	}{
		{name: "missing canvas id", config: "canvases:\n  - name: x\n"},
		{name: "invalid url", config: "remote:\n  base_url: not a url\n"},
		{name: "negative attempts", config: "polling:\n  max_attempts: -1\n"},
		{name: "duplicate canvas", config: "canvases:\n  - id: a\n  - id: a\n"},
		{name: "missing cron", config: "canvases:\n  - id: a\n    schedules:\n      - id: s\n"},
		{name: "bad cron", config: "canvases:\n  - id: a\n    schedules:\n      - id: s\n        cron: every day\n"},
		{
			name:   "duplicate schedule",
			config: "canvases:\n  - id: a\n    schedules:\n      - {id: s, cron: '@daily'}\n  - id: b\n    schedules:\n      - {id: s, cron: '@daily'}\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.config))
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	_, err := Parse([]byte("canvases: [oops"))
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0600))

	file, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, file.Canvases, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	file, err = LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, file.Canvases)

	file, err = LoadOrDefault("")
	require.NoError(t, err)
	assert.Empty(t, file.Canvases)
}
