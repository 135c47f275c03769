package polling

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dukex/runwatch/pkg/models"
)

// RunResult is how a run ended.
type RunResult struct {
	CanvasID   string
	SerialID   string
	Generation uint64
	Outcome    models.RunOutcome
	Status     models.Status
	Attempts   int
	Duration   time.Duration
	// Err is the start failure or the last fetch failure, when there was one.
	Err error
}

// Run is the handle of one run of a canvas. Polling continues in the
// background until Done is closed.
type Run struct {
	canvasID   string
	generation uint64
	params     map[string]any

	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}

	mu     sync.RWMutex
	state  models.RunContext
	result RunResult
}

func newRun(ctx context.Context, canvasID string, generation uint64, params map[string]any) *Run {
	runCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))

	return &Run{
		canvasID:   canvasID,
		generation: generation,
		params:     params,
		ctx:        runCtx,
		cancel:     cancel,
		done:       make(chan struct{}),
		state: models.RunContext{
			CanvasID:   canvasID,
			Generation: generation,
			Running:    true,
			Outcome:    models.OutcomeRunning,
			StartedAt:  time.Now().UTC(),
		},
	}
}

func (r *Run) CanvasID() string {
	return r.canvasID
}

func (r *Run) Generation() uint64 {
	return r.generation
}

func (r *Run) SerialID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.state.SerialID
}

// Done is closed once polling has stopped and the run is archived.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run ends.
func (r *Run) Wait() RunResult {
	<-r.done

	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.result
}

// Result returns the result without blocking; ok is false while the run is polled.
func (r *Run) Result() (RunResult, bool) {
	select {
	case <-r.done:
		return r.Wait(), true
	default:
		return RunResult{}, false
	}
}

// Context returns a snapshot of the run state.
func (r *Run) Context() models.RunContext {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state := r.state
	if state.FinishedAt != nil {
		finishedAt := *state.FinishedAt
		state.FinishedAt = &finishedAt
	}

	return state
}

// Cancel stops polling. The run ends with the canceled outcome unless it already ended.
func (r *Run) Cancel() {
	r.cancel(ErrCanceled)
}

func (r *Run) running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.state.Running
}

func (r *Run) update(fn func(state *models.RunContext)) {
	r.mu.Lock()
	fn(&r.state)
	r.mu.Unlock()
}

// stopOutcome maps the cancellation cause of the run context to an outcome.
func (r *Run) stopOutcome() models.RunOutcome {
	if errors.Is(context.Cause(r.ctx), ErrSuperseded) {
		return models.OutcomeSuperseded
	}

	return models.OutcomeCanceled
}
