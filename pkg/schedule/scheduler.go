// Package schedule starts canvas runs on cron expressions.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dukex/runwatch/pkg/log"
	"github.com/dukex/runwatch/pkg/models"
	"github.com/dukex/runwatch/pkg/otelhelper"
	"github.com/dukex/runwatch/pkg/polling"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrDuplicateSchedule indicates a schedule ID that is already registered.
	ErrDuplicateSchedule = errors.New("schedule already registered")

	// ErrScheduleNotFound indicates an unknown schedule ID.
	ErrScheduleNotFound = errors.New("schedule not found")
)

// Runner runs a canvas to completion.
type Runner interface {
	RunWorkflow(ctx context.Context, canvasID string, params map[string]any) (polling.RunResult, error)
}

// Entry describes a registered schedule.
type Entry struct {
	ScheduleID string    `json:"schedule_id"`
	CanvasID   string    `json:"canvas_id"`
	Cron       string    `json:"cron"`
	Next       time.Time `json:"next"`
	Prev       time.Time `json:"prev,omitempty"`
}

type registration struct {
	schedule *models.CanvasSchedule
	entryID  cron.EntryID
}

// Scheduler fires the runs of every active schedule. A schedule whose previous
// run is still being polled skips its turn.
type Scheduler struct {
	runner Runner
	cron   *cron.Cron
	logger *slog.Logger
	tracer trace.Tracer

	mu            sync.Mutex
	registrations map[string]registration
	ctx           context.Context
	cancel        context.CancelFunc
}

func New(runner Runner, logger *slog.Logger) *Scheduler {
	logger = logger.With("module", "scheduler")
	cronLogger := cronLogger{logger: logger}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		runner: runner,
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger)),
		),
		logger:        logger,
		tracer:        otelhelper.DefaultTracer(),
		registrations: make(map[string]registration),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Add registers a schedule. Inactive schedules are accepted and ignored.
func (s *Scheduler) Add(schedule *models.CanvasSchedule) error {
	err := schedule.Validate()
	if err != nil {
		return fmt.Errorf("schedule %s: %w", schedule.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.registrations[schedule.ID]; exists {
		return fmt.Errorf("schedule %s: %w", schedule.ID, ErrDuplicateSchedule)
	}

	if !schedule.Active {
		s.logger.Info("Skipping inactive schedule", "schedule_id", schedule.ID, "canvas_id", schedule.CanvasID)

		return nil
	}

	cronSchedule, err := models.ParseCron(schedule.CronExpression)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", schedule.ID, errors.Join(models.ErrInvalidSchedule, err))
	}

	job := cron.NewChain(cron.SkipIfStillRunning(cronLogger{logger: s.logger})).Then(cron.FuncJob(func() {
		s.fire(schedule)
	}))

	entryID := s.cron.Schedule(cronSchedule, job)
	s.registrations[schedule.ID] = registration{schedule: schedule, entryID: entryID}

	s.logger.Info("Schedule registered", "schedule_id", schedule.ID, "canvas_id", schedule.CanvasID, "cron", schedule.CronExpression)

	return nil
}

// Remove unregisters a schedule. It reports whether the schedule existed.
func (s *Scheduler) Remove(scheduleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registrations[scheduleID]
	if !ok {
		return false
	}

	s.cron.Remove(reg.entryID)
	delete(s.registrations, scheduleID)

	return true
}

// Entries lists the registered schedules ordered by ID.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(s.registrations))

	for id, reg := range s.registrations {
		cronEntry := s.cron.Entry(reg.entryID)

		entries = append(entries, Entry{
			ScheduleID: id,
			CanvasID:   reg.schedule.CanvasID,
			Cron:       reg.schedule.CronExpression,
			Next:       cronEntry.Next,
			Prev:       cronEntry.Prev,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ScheduleID < entries[j].ScheduleID
	})

	return entries
}

// Schedule returns a registered schedule.
func (s *Scheduler) Schedule(scheduleID string) (*models.CanvasSchedule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registrations[scheduleID]
	if !ok {
		return nil, false
	}

	return reg.schedule, true
}

// Trigger runs a registered schedule now and waits for the run to end.
func (s *Scheduler) Trigger(ctx context.Context, scheduleID string) (polling.RunResult, error) {
	s.mu.Lock()
	reg, ok := s.registrations[scheduleID]
	s.mu.Unlock()

	if !ok {
		return polling.RunResult{}, fmt.Errorf("schedule %s: %w", scheduleID, ErrScheduleNotFound)
	}

	return s.runner.RunWorkflow(ctx, reg.schedule.CanvasID, reg.schedule.Params)
}

func (s *Scheduler) fire(schedule *models.CanvasSchedule) {
	logger := s.logger.With("schedule_id", schedule.ID, "canvas_id", schedule.CanvasID)
	ctx := log.WithContext(s.ctx, logger)

	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "schedule.fire",
		attribute.String(otelhelper.ScheduleIDKey, schedule.ID),
		attribute.String(otelhelper.CanvasIDKey, schedule.CanvasID),
	)
	defer span.End()

	logger.InfoContext(ctx, "Schedule fired")

	result, err := s.runner.RunWorkflow(ctx, schedule.CanvasID, schedule.Params)
	if err != nil {
		otelhelper.SetError(span, err)
		logger.ErrorContext(ctx, "Scheduled run failed", "error", err)

		return
	}

	span.SetAttributes(
		attribute.String(otelhelper.SerialIDKey, result.SerialID),
		attribute.String(otelhelper.OutcomeKey, string(result.Outcome)),
	)

	logger.InfoContext(ctx, "Scheduled run finished", "serial_id", result.SerialID, "outcome", result.Outcome, "status", result.Status)
}

// Start begins firing schedules in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops firing, cancels in-flight scheduled runs and waits for them to end
// or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger routes robfig/cron logs to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
