package polling

import (
	"log/slog"
	"time"

	"github.com/dukex/runwatch/pkg/eventbus"
	"github.com/dukex/runwatch/pkg/persistence"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultInterval is the wait between two trace fetches of a run.
	DefaultInterval = 2 * time.Second

	// DefaultMaxAttempts bounds the fetches of a run, successful or not.
	DefaultMaxAttempts = 300
)

type Option func(*Coordinator)

// WithInterval sets the wait between fetches. Non-positive values are ignored.
func WithInterval(interval time.Duration) Option {
	return func(c *Coordinator) {
		if interval > 0 {
			c.interval = interval
		}
	}
}

// WithMaxAttempts sets the fetch budget of a run. Values below 1 are ignored.
func WithMaxAttempts(attempts int) Option {
	return func(c *Coordinator) {
		if attempts > 0 {
			c.maxAttempts = attempts
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Coordinator) {
		c.tracer = tracer
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = metrics
	}
}

// WithArchive stores a summary of every finished run.
func WithArchive(archive persistence.Persistence) Option {
	return func(c *Coordinator) {
		c.archive = archive
	}
}

// WithPublisher publishes run lifecycle events.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(c *Coordinator) {
		c.publisher = publisher
	}
}
