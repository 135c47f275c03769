package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/runwatch/pkg/models"
	"github.com/dukex/runwatch/pkg/persistence"
)

// RunRepository handles run archive database operations.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

// Save upserts the summary and replaces its records in one transaction.
func (rr *RunRepository) Save(ctx context.Context, run *models.RunSummary) error {
	err := persistence.ValidateRun("SaveRun", run)
	if err != nil {
		return err
	}

	paramsJSON, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}

	transaction, err := rr.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = transaction.Rollback()
	}()

	query := `
		INSERT INTO run_summaries (
			id, canvas_id, serial_id, params, status, outcome,
			attempts, error_message, started_at, finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			serial_id = EXCLUDED.serial_id,
			params = EXCLUDED.params,
			status = EXCLUDED.status,
			outcome = EXCLUDED.outcome,
			attempts = EXCLUDED.attempts,
			error_message = EXCLUDED.error_message,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at
	`

	_, err = transaction.ExecContext(ctx, query,
		run.ID,
		run.CanvasID,
		run.SerialID,
		paramsJSON,
		string(run.Status),
		string(run.Outcome),
		run.Attempts,
		nullString(run.Error),
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return persistence.NewRunError("SaveRun", run.ID, err)
	}

	_, err = transaction.ExecContext(ctx, "DELETE FROM run_records WHERE run_id = $1", run.ID)
	if err != nil {
		return persistence.NewRunError("SaveRun", run.ID, err)
	}

	for _, record := range run.Records {
		err = rr.insertRecord(ctx, transaction, run.ID, record)
		if err != nil {
			return persistence.NewRunError("SaveRun", run.ID, err)
		}
	}

	err = transaction.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}

	return nil
}

func (rr *RunRepository) insertRecord(ctx context.Context, transaction *sql.Tx, runID string, record models.ExecutionRecord) error {
	inputsJSON, err := json.Marshal(record.Inputs)
	if err != nil {
		return fmt.Errorf("failed to marshal inputs of node %s: %w", record.NodeID, err)
	}

	outputsJSON, err := json.Marshal(record.Outputs)
	if err != nil {
		return fmt.Errorf("failed to marshal outputs of node %s: %w", record.NodeID, err)
	}

	query := `
		INSERT INTO run_records (
			run_id, node_id, sub_index, status, start_time, end_time,
			duration, inputs, outputs, error_message
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = transaction.ExecContext(ctx, query,
		runID,
		record.NodeID,
		record.SubIndex,
		string(record.Status),
		record.StartTime,
		record.EndTime,
		record.Duration,
		inputsJSON,
		outputsJSON,
		nullString(record.Error),
	)

	return err
}

// GetByID retrieves a run and its records.
func (rr *RunRepository) GetByID(ctx context.Context, runID string) (*models.RunSummary, error) {
	query := `
		SELECT id, canvas_id, serial_id, params, status, outcome,
			   attempts, error_message, started_at, finished_at
		FROM run_summaries
		WHERE id = $1
	`

	run, err := scanRun(rr.db.QueryRowContext(ctx, query, runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRunError("RunByID", runID, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewRunError("RunByID", runID, err)
	}

	run.Records, err = rr.records(ctx, runID)
	if err != nil {
		return nil, persistence.NewRunError("RunByID", runID, err)
	}

	return run, nil
}

// GetByCanvas returns the latest runs of a canvas with their records.
func (rr *RunRepository) GetByCanvas(ctx context.Context, canvasID string, limit int) ([]*models.RunSummary, error) {
	query := `
		SELECT id, canvas_id, serial_id, params, status, outcome,
			   attempts, error_message, started_at, finished_at
		FROM run_summaries
		WHERE canvas_id = $1
		ORDER BY finished_at DESC, id DESC
		LIMIT $2
	`

	rows, err := rr.db.QueryContext(ctx, query, canvasID, persistence.NormalizeLimit(limit))
	if err != nil {
		return nil, persistence.NewCanvasRunError("RunsByCanvas", canvasID, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	runs := make([]*models.RunSummary, 0)

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, persistence.NewCanvasRunError("RunsByCanvas", canvasID, err)
		}

		runs = append(runs, run)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewCanvasRunError("RunsByCanvas", canvasID, err)
	}

	for _, run := range runs {
		run.Records, err = rr.records(ctx, run.ID)
		if err != nil {
			return nil, persistence.NewCanvasRunError("RunsByCanvas", canvasID, err)
		}
	}

	return runs, nil
}

func (rr *RunRepository) records(ctx context.Context, runID string) ([]models.ExecutionRecord, error) {
	query := `
		SELECT node_id, sub_index, status, start_time, end_time,
			   duration, inputs, outputs, error_message
		FROM run_records
		WHERE run_id = $1
		ORDER BY node_id, sub_index
	`

	rows, err := rr.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	records := make([]models.ExecutionRecord, 0)

	for rows.Next() {
		var (
			record                  models.ExecutionRecord
			status                  string
			startTime, endTime      sql.NullInt64
			duration                sql.NullFloat64
			inputsJSON, outputsJSON []byte
			errorMessage            sql.NullString
		)

		err := rows.Scan(&record.NodeID, &record.SubIndex, &status, &startTime, &endTime,
			&duration, &inputsJSON, &outputsJSON, &errorMessage)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		record.Status = models.Status(status)
		record.Error = errorMessage.String

		if startTime.Valid {
			record.StartTime = &startTime.Int64
		}

		if endTime.Valid {
			record.EndTime = &endTime.Int64
		}

		if duration.Valid {
			record.Duration = &duration.Float64
		}

		err = unmarshalNullable(inputsJSON, &record.Inputs)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal inputs of node %s: %w", record.NodeID, err)
		}

		err = unmarshalNullable(outputsJSON, &record.Outputs)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal outputs of node %s: %w", record.NodeID, err)
		}

		records = append(records, record)
	}

	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.RunSummary, error) {
	var (
		run             models.RunSummary
		paramsJSON      []byte
		status, outcome string
		errorMessage    sql.NullString
	)

	err := row.Scan(&run.ID, &run.CanvasID, &run.SerialID, &paramsJSON, &status, &outcome,
		&run.Attempts, &errorMessage, &run.StartedAt, &run.FinishedAt)
	if err != nil {
		return nil, err
	}

	run.Status = models.Status(status)
	run.Outcome = models.RunOutcome(outcome)
	run.Error = errorMessage.String

	err = unmarshalNullable(paramsJSON, &run.Params)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal params: %w", err)
	}

	return &run, nil
}

func unmarshalNullable(data []byte, target *map[string]any) error {
	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, target)
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
