package models

import (
	"errors"
	"time"

	"github.com/robfig/cron/v3"
)

// CanvasSchedule triggers runs of a canvas on a cron expression.
type CanvasSchedule struct {
	// ID uniquely identifies this schedule entry
	ID string `json:"id" validate:"required"`

	CanvasID string `json:"canvas_id" validate:"required"`

	// CronExpression uses the standard 5-field format (minute hour day month weekday)
	// or a descriptor such as @every 5m.
	CronExpression string `json:"cron_expression" validate:"required"`

	Params map[string]any `json:"params,omitempty"`

	// NextDueAt is the precomputed next execution time
	NextDueAt time.Time `json:"next_due_at"`

	Active bool `json:"active"`
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewCanvasSchedule creates an active schedule with its first due time calculated.
func NewCanvasSchedule(id, canvasID, cronExpression string, params map[string]any) (*CanvasSchedule, error) {
	schedule := &CanvasSchedule{
		ID:             id,
		CanvasID:       canvasID,
		CronExpression: cronExpression,
		Params:         params,
		Active:         true,
	}

	err := schedule.Validate()
	if err != nil {
		return nil, err
	}

	err = schedule.calculateNextDueAt(time.Now().UTC())
	if err != nil {
		return nil, err
	}

	return schedule, nil
}

// UpdateNextDueAt recalculates the next execution time from reference.
func (s *CanvasSchedule) UpdateNextDueAt(reference time.Time) error {
	return s.calculateNextDueAt(reference)
}

func (s *CanvasSchedule) calculateNextDueAt(referenceTime time.Time) error {
	cronSchedule, err := cronParser.Parse(s.CronExpression)
	if err != nil {
		return err
	}

	s.NextDueAt = cronSchedule.Next(referenceTime)

	return nil
}

// IsDue checks if this schedule is due for execution at the given time.
func (s *CanvasSchedule) IsDue(now time.Time) bool {
	return s.Active && !s.NextDueAt.After(now)
}

// Validate performs validation on the schedule fields.
func (s *CanvasSchedule) Validate() error {
	if s.ID == "" || s.CanvasID == "" || s.CronExpression == "" {
		return ErrInvalidSchedule
	}

	_, err := cronParser.Parse(s.CronExpression)
	if err != nil {
		return errors.Join(ErrInvalidSchedule, err)
	}

	return nil
}

// ParseCron parses a schedule expression with the same rules as CanvasSchedule.
func ParseCron(expression string) (cron.Schedule, error) {
	return cronParser.Parse(expression)
}

var (
	// ErrInvalidSchedule is returned when schedule validation fails
	ErrInvalidSchedule = errors.New("invalid schedule configuration")
)
