package models

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw      string
		expected Status
	}{
		{"idle", StatusIdle},
		{"pending", StatusPending},
		{"waiting", StatusPending},
		{"RUNNING", StatusRunning},
		{"paused", StatusPaused},
		{"success", StatusSuccess},
		{"completed", StatusSuccess},
		{" failed ", StatusError},
		{"error", StatusError},
		{"cancelled", StatusCanceled},
		{"canceled", StatusCanceled},
		{"", StatusUnknown},
		{"exploded", StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseStatus(tt.raw))
		})
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	terminal := []Status{StatusSuccess, StatusError, StatusCanceled}
	inFlight := []Status{StatusIdle, StatusPending, StatusRunning, StatusPaused, StatusUnknown}

	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), s)
		assert.False(t, s.InFlight(), s)
	}

	for _, s := range inFlight {
		assert.False(t, s.IsTerminal(), s)
		assert.True(t, s.InFlight(), s)
	}

	assert.True(t, StatusError.IsFailure())
	assert.False(t, StatusCanceled.IsFailure())
}

func TestNormalizeSubIndex(t *testing.T) {
	zero, two, negative := 0, 2, -5

	assert.Equal(t, NoSubIndex, NormalizeSubIndex(nil))
	assert.Equal(t, NoSubIndex, NormalizeSubIndex(&negative))
	assert.Equal(t, 0, NormalizeSubIndex(&zero))
	assert.Equal(t, 2, NormalizeSubIndex(&two))
}

func TestNewRecordKey_NormalizesNegativeSubIndex(t *testing.T) {
	assert.Equal(t, NewRecordKey("c1", "n1", NoSubIndex), NewRecordKey("c1", "n1", -3))
	assert.NotEqual(t, NewRecordKey("c1", "n1", 0), NewRecordKey("c1", "n1", NoSubIndex))
}

func TestExecutionRecord_Clone(t *testing.T) {
	start := int64(1000)
	original := ExecutionRecord{
		NodeID:    "n1",
		SubIndex:  NoSubIndex,
		Status:    StatusRunning,
		StartTime: &start,
		Inputs:    map[string]any{"x": 1},
	}

	clone := original.Clone()
	clone.Inputs["x"] = 2
	*clone.StartTime = 2000

	assert.Equal(t, 1, original.Inputs["x"])
	assert.Equal(t, int64(1000), *original.StartTime)
	assert.False(t, original.IsIteration())
}

func TestRunOutcome_IsInconclusive(t *testing.T) {
	assert.True(t, OutcomeTimeout.IsInconclusive())
	assert.True(t, OutcomeFetchFailed.IsInconclusive())
	assert.False(t, OutcomeCompleted.IsInconclusive())
	assert.False(t, OutcomeCanceled.IsInconclusive())
}

func TestNewCanvasSchedule(t *testing.T) {
	schedule, err := NewCanvasSchedule("s1", "c1", "*/5 * * * *", map[string]any{"x": 1})
	require.NoError(t, err)

	assert.True(t, schedule.Active)
	assert.True(t, schedule.NextDueAt.After(time.Now().UTC().Add(-time.Second)))
	assert.False(t, schedule.IsDue(time.Now().UTC().Add(-time.Minute)))
	assert.True(t, schedule.IsDue(schedule.NextDueAt))

	validate := validator.New()
	require.NoError(t, validate.Struct(schedule))
}

func TestNewCanvasSchedule_Descriptor(t *testing.T) {
	schedule, err := NewCanvasSchedule("s1", "c1", "@every 1m", nil)
	require.NoError(t, err)

	reference := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, schedule.UpdateNextDueAt(reference))
	assert.Equal(t, reference.Add(time.Minute), schedule.NextDueAt)
}

func TestCanvasSchedule_Validate(t *testing.T) {
	tests := []struct {
		name     string
		schedule CanvasSchedule
	}{
		{"missing id", CanvasSchedule{CanvasID: "c1", CronExpression: "* * * * *"}},
		{"missing canvas", CanvasSchedule{ID: "s1", CronExpression: "* * * * *"}},
		{"missing cron", CanvasSchedule{ID: "s1", CanvasID: "c1"}},
		{"invalid cron", CanvasSchedule{ID: "s1", CanvasID: "c1", CronExpression: "not a cron"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.schedule.Validate(), ErrInvalidSchedule)
		})
	}
}
