// Package polling drives canvas runs: it starts a run on the remote executor,
// polls its trace at a fixed interval and reconciles the records into the
// execution record store until the run is terminal or the fetch budget is spent.
package polling

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dukex/runwatch/pkg/eventbus"
	"github.com/dukex/runwatch/pkg/events"
	"github.com/dukex/runwatch/pkg/log"
	"github.com/dukex/runwatch/pkg/models"
	"github.com/dukex/runwatch/pkg/otelhelper"
	"github.com/dukex/runwatch/pkg/persistence"
	"github.com/dukex/runwatch/pkg/remote"
	"github.com/dukex/runwatch/pkg/store"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const archiveTimeout = 10 * time.Second

// Coordinator owns the runs of every canvas. At most one run per canvas is
// polled at a time; a newer run supersedes the older one.
type Coordinator struct {
	client remote.Client
	store  *store.Store

	interval    time.Duration
	maxAttempts int
	logger      *slog.Logger
	tracer      trace.Tracer
	metrics     *Metrics
	archive     persistence.Persistence
	publisher   eventbus.EventPublisher

	mu     sync.Mutex
	runs   map[string]*Run
	closed bool
	wg     sync.WaitGroup
}

func New(client remote.Client, recordStore *store.Store, opts ...Option) *Coordinator {
	coordinator := &Coordinator{
		client:      client,
		store:       recordStore,
		interval:    DefaultInterval,
		maxAttempts: DefaultMaxAttempts,
		logger:      slog.Default(),
		tracer:      otelhelper.DefaultTracer(),
		runs:        make(map[string]*Run),
	}

	for _, opt := range opts {
		opt(coordinator)
	}

	coordinator.logger = coordinator.logger.With("module", "polling")

	return coordinator
}

// Store returns the record store the coordinator reconciles into.
func (c *Coordinator) Store() *store.Store {
	return c.store
}

// Start starts a run of canvasID and returns once the remote executor accepted
// it. Polling continues in the background and is not bound to ctx; use the
// returned handle or Cancel to stop it.
func (c *Coordinator) Start(ctx context.Context, canvasID string, params map[string]any) (*Run, error) {
	if canvasID == "" {
		return nil, ErrEmptyCanvasID
	}

	run, err := c.register(ctx, canvasID, params)
	if err != nil {
		return nil, err
	}

	logger := log.FromContext(ctx, c.logger).With("canvas_id", canvasID, "generation", run.generation)

	spanCtx, span := otelhelper.StartSpan(run.ctx, c.tracer, "polling.start_run",
		attribute.String(otelhelper.CanvasIDKey, canvasID),
		attribute.Int64(otelhelper.GenerationKey, int64(run.generation)),
	)

	serialID, err := c.client.StartRun(spanCtx, canvasID, params)
	if err != nil {
		otelhelper.SetError(span, err)
		span.End()

		logger.ErrorContext(ctx, "Failed to start run", "error", err)
		c.metrics.startFailed(startFailureReason(err))

		startErr := &StartRunError{CanvasID: canvasID, Err: err}
		c.finish(run, models.OutcomeStartFailed, startErr)

		c.publish(ctx, canvasID, events.RunStartFailed{
			BaseEvent:    events.NewBaseEvent(events.RunStartFailedEvent, canvasID),
			Error:        err.Error(),
			Unauthorized: remote.IsUnauthorized(err),
		})

		return nil, startErr
	}

	span.SetAttributes(attribute.String(otelhelper.SerialIDKey, serialID))
	span.End()

	run.update(func(state *models.RunContext) {
		state.SerialID = serialID
	})

	c.metrics.runStarted()
	logger.InfoContext(ctx, "Run started", "serial_id", serialID)

	c.publish(ctx, canvasID, events.RunStarted{
		BaseEvent:  events.NewBaseEvent(events.RunStartedEvent, canvasID),
		SerialID:   serialID,
		Generation: run.generation,
	})

	go c.poll(run, serialID)

	return run, nil
}

// register supersedes the current run of the canvas, clears its records and
// installs a new run. The store generation advanced here is what discards late
// writes of the superseded run.
func (c *Coordinator) register(ctx context.Context, canvasID string, params map[string]any) (*Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	if previous, ok := c.runs[canvasID]; ok && previous.running() {
		c.logger.InfoContext(ctx, "Superseding active run", "canvas_id", canvasID, "generation", previous.generation)
		previous.cancel(ErrSuperseded)
	}

	generation := c.store.BeginRun(canvasID)
	run := newRun(ctx, canvasID, generation, params)

	c.runs[canvasID] = run
	c.wg.Add(1)

	return run, nil
}

// RunWorkflow starts a run and blocks until it ends: terminal status, spent
// fetch budget, or cancellation. Canceling ctx cancels the run; the result is
// then returned along with ctx's error. Only a failed start is returned as a
// *StartRunError; timeouts and fetch failures are outcomes.
func (c *Coordinator) RunWorkflow(ctx context.Context, canvasID string, params map[string]any) (RunResult, error) {
	run, err := c.Start(ctx, canvasID, params)
	if err != nil {
		return RunResult{CanvasID: canvasID, Outcome: models.OutcomeStartFailed, Err: err}, err
	}

	select {
	case <-run.Done():
		return run.Wait(), nil
	case <-ctx.Done():
		run.Cancel()

		return run.Wait(), ctx.Err()
	}
}

func (c *Coordinator) poll(run *Run, serialID string) {
	ctx, span := otelhelper.StartSpan(run.ctx, c.tracer, "polling.run",
		attribute.String(otelhelper.CanvasIDKey, run.canvasID),
		attribute.String(otelhelper.SerialIDKey, serialID),
		attribute.Int64(otelhelper.GenerationKey, int64(run.generation)),
	)
	defer span.End()

	logger := log.FromContext(run.ctx, c.logger).With("canvas_id", run.canvasID, "serial_id", serialID, "generation", run.generation)

	outcome, err := c.loop(ctx, run, serialID, logger)

	span.SetAttributes(attribute.String(otelhelper.OutcomeKey, string(outcome)))

	if err != nil && outcome == models.OutcomeFetchFailed {
		otelhelper.SetError(span, err)
	}

	c.finish(run, outcome, err)
}

func (c *Coordinator) loop(ctx context.Context, run *Run, serialID string, logger *slog.Logger) (models.RunOutcome, error) {
	for attempt := 1; ; attempt++ {
		if run.ctx.Err() != nil {
			return run.stopOutcome(), nil
		}

		snapshot, err := c.client.FetchTrace(ctx, run.canvasID, serialID)

		run.update(func(state *models.RunContext) {
			state.Attempts = attempt
		})

		if err != nil {
			if run.ctx.Err() != nil {
				return run.stopOutcome(), nil
			}

			c.metrics.fetched(false)
			logger.WarnContext(ctx, "Failed to fetch trace", "attempt", attempt, "error", err)

			run.update(func(state *models.RunContext) {
				state.LastError = err.Error()
			})

			if attempt >= c.maxAttempts {
				logger.WarnContext(ctx, "Stopped polling after failed fetches", "attempts", attempt)

				return models.OutcomeFetchFailed, err
			}
		} else {
			c.metrics.fetched(true)

			if !c.store.ReconcileRun(run.canvasID, run.generation, snapshot.Records) {
				return models.OutcomeSuperseded, nil
			}

			run.update(func(state *models.RunContext) {
				state.Status = snapshot.Status
				state.LastError = ""
			})

			logger.DebugContext(ctx, "Trace reconciled", "attempt", attempt, "status", snapshot.Status, "records", len(snapshot.Records))

			if snapshot.Status.IsTerminal() {
				return models.OutcomeCompleted, nil
			}

			if attempt >= c.maxAttempts {
				logger.WarnContext(ctx, "Stopped polling before the run finished", "attempts", attempt, "status", snapshot.Status)

				return models.OutcomeTimeout, nil
			}
		}

		if !c.wait(run.ctx) {
			return run.stopOutcome(), nil
		}
	}
}

// wait sleeps one interval; it returns false when ctx ends first.
func (c *Coordinator) wait(ctx context.Context) bool {
	timer := time.NewTimer(c.interval)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// finish marks the run not running, archives it, publishes run.finished and
// releases waiters, in that order.
func (c *Coordinator) finish(run *Run, outcome models.RunOutcome, err error) {
	defer c.wg.Done()

	finishedAt := time.Now().UTC()

	var state models.RunContext

	run.update(func(s *models.RunContext) {
		s.Running = false
		s.Outcome = outcome
		s.FinishedAt = &finishedAt

		if err != nil {
			s.LastError = err.Error()
		}

		state = *s
	})

	result := RunResult{
		CanvasID:   run.canvasID,
		SerialID:   state.SerialID,
		Generation: run.generation,
		Outcome:    outcome,
		Status:     state.Status,
		Attempts:   state.Attempts,
		Duration:   finishedAt.Sub(state.StartedAt),
		Err:        err,
	}

	ctx := context.WithoutCancel(run.ctx)

	if outcome != models.OutcomeStartFailed {
		c.metrics.runFinished(outcome, result.Duration)

		log.FromContext(ctx, c.logger).InfoContext(ctx, "Run finished",
			"canvas_id", run.canvasID,
			"serial_id", state.SerialID,
			"outcome", outcome,
			"status", state.Status,
			"attempts", state.Attempts,
		)

		c.archiveRun(ctx, run, state)

		c.publish(ctx, run.canvasID, events.RunFinished{
			BaseEvent:  events.NewBaseEvent(events.RunFinishedEvent, run.canvasID),
			SerialID:   state.SerialID,
			Generation: run.generation,
			Status:     state.Status,
			Outcome:    outcome,
			Attempts:   state.Attempts,
			Duration:   result.Duration,
			Error:      state.LastError,
		})
	}

	run.mu.Lock()
	run.result = result
	run.mu.Unlock()

	run.cancel(nil)
	close(run.done)
}

func (c *Coordinator) archiveRun(ctx context.Context, run *Run, state models.RunContext) {
	if c.archive == nil {
		return
	}

	// Empty once the store belongs to a newer run.
	records, _ := c.store.RecordsAt(run.canvasID, run.generation)

	summary := &models.RunSummary{
		ID:         uuid.NewString(),
		CanvasID:   run.canvasID,
		SerialID:   state.SerialID,
		Params:     run.params,
		Status:     state.Status,
		Outcome:    state.Outcome,
		Attempts:   state.Attempts,
		StartedAt:  state.StartedAt,
		FinishedAt: *state.FinishedAt,
		Error:      state.LastError,
		Records:    records,
	}

	ctx, cancel := context.WithTimeout(ctx, archiveTimeout)
	defer cancel()

	err := c.archive.SaveRun(ctx, summary)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to archive run", "canvas_id", run.canvasID, "error", err)
	}
}

func (c *Coordinator) publish(ctx context.Context, canvasID string, event eventbus.Event) {
	if c.publisher == nil {
		return
	}

	err := c.publisher.Publish(ctx, canvasID, event)
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to publish event", "canvas_id", canvasID, "event_type", event.GetType(), "error", err)
	}
}

// Cancel stops the active run of canvasID. It reports whether a run was active.
func (c *Coordinator) Cancel(canvasID string) bool {
	c.mu.Lock()
	run, ok := c.runs[canvasID]
	c.mu.Unlock()

	if !ok || !run.running() {
		return false
	}

	run.Cancel()

	return true
}

// IsRunning reports whether the latest run of canvasID is still being polled.
func (c *Coordinator) IsRunning(canvasID string) bool {
	c.mu.Lock()
	run, ok := c.runs[canvasID]
	c.mu.Unlock()

	return ok && run.running()
}

// Active returns the canvases with a run being polled, sorted.
func (c *Coordinator) Active() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	active := make([]string, 0, len(c.runs))

	for canvasID, run := range c.runs {
		if run.running() {
			active = append(active, canvasID)
		}
	}

	sort.Strings(active)

	return active
}

// RunContext returns the state of the latest run of canvasID, finished or not.
func (c *Coordinator) RunContext(canvasID string) (models.RunContext, bool) {
	c.mu.Lock()
	run, ok := c.runs[canvasID]
	c.mu.Unlock()

	if !ok {
		return models.RunContext{}, false
	}

	return run.Context(), true
}

// Forget drops the run context of a finished run. Active runs are kept.
func (c *Coordinator) Forget(canvasID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	run, ok := c.runs[canvasID]
	if !ok || run.running() {
		return false
	}

	delete(c.runs, canvasID)

	return true
}

// Close cancels every run and waits for their polling to stop.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true

	for _, run := range c.runs {
		run.cancel(ErrCanceled)
	}
	c.mu.Unlock()

	c.wg.Wait()
}
