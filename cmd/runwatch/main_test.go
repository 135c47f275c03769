package main

import (
	"errors"
	"testing"

	"github.com/dukex/runwatch/pkg/models"
	"github.com/dukex/runwatch/pkg/polling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cli "github.com/urfave/cli/v3"
)

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"city=Lisbon", "days=3", "dry_run=true", "tags=[\"a\",\"b\"]", "note=a=b"})
	require.NoError(t, err)

	assert.Equal(t, "Lisbon", params["city"])
	assert.Equal(t, float64(3), params["days"])
	assert.Equal(t, true, params["dry_run"])
	assert.Equal(t, []any{"a", "b"}, params["tags"])
	assert.Equal(t, "a=b", params["note"])

	_, err = parseParams([]string{"novalue"})
	require.ErrorIs(t, err, errInvalidParam)

	_, err = parseParams([]string{"=x"})
	require.ErrorIs(t, err, errInvalidParam)
}

func TestExitFor(t *testing.T) {
	tests := []struct {
		name   string
		result polling.RunResult
		code   int
	}{
		{"success", polling.RunResult{Outcome: models.OutcomeCompleted, Status: models.StatusSuccess}, 0},
		{"failed run", polling.RunResult{Outcome: models.OutcomeCompleted, Status: models.StatusError}, 1},
		{"remote canceled", polling.RunResult{Outcome: models.OutcomeCompleted, Status: models.StatusCanceled}, 1},
		{"canceled", polling.RunResult{Outcome: models.OutcomeCanceled, Err: errors.New("interrupted")}, 1},
		{"timeout", polling.RunResult{Outcome: models.OutcomeTimeout, Status: models.StatusRunning}, 2},
		{"fetch failed", polling.RunResult{Outcome: models.OutcomeFetchFailed}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := exitFor(tt.result)
			if tt.code == 0 {
				assert.NoError(t, err)

				return
			}

			var exitErr cli.ExitCoder
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, tt.code, exitErr.ExitCode())
		})
	}
}

func TestPick(t *testing.T) {
	assert.Equal(t, 5, pick(5, 10))
	assert.Equal(t, 10, pick(0, 10))
	assert.Equal(t, 0, pick(0, 0))
}
