package polling

import (
	"time"

	"github.com/dukex/runwatch/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "runwatch"

// Metrics collects coordinator counters for Prometheus scraping.
//
// Exposed (namespace "runwatch"):
//
//	runs_started_total         runs accepted by the remote executor
//	run_start_failures_total   start requests rejected, by reason
//	runs_finished_total        finished runs, by outcome
//	active_runs                runs currently being polled
//	fetches_total              trace fetches, by result (ok, error)
//	run_duration_seconds       wall time from start to finish, by outcome
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	runsStarted   prometheus.Counter
	startFailures *prometheus.CounterVec
	runsFinished  *prometheus.CounterVec
	activeRuns    prometheus.Gauge
	fetches       *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
}

// NewMetrics registers the coordinator metrics with registry, or with the
// default registerer when registry is nil.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		runsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_started_total",
			Help:      "Runs accepted by the remote executor",
		}),
		startFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "run_start_failures_total",
			Help:      "Run start requests that failed",
		}, []string{"reason"}), // reason: unauthorized, rejected, invalid_params, other
		runsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_finished_total",
			Help:      "Runs that stopped being polled",
		}, []string{"outcome"}),
		activeRuns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_runs",
			Help:      "Runs currently being polled",
		}),
		fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "fetches_total",
			Help:      "Trace fetch attempts",
		}, []string{"result"}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "run_duration_seconds",
			Help:      "Time from run start to the end of polling",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"outcome"}),
	}
}

func (m *Metrics) runStarted() {
	if m == nil {
		return
	}

	m.runsStarted.Inc()
	m.activeRuns.Inc()
}

func (m *Metrics) startFailed(reason string) {
	if m == nil {
		return
	}

	m.startFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) fetched(ok bool) {
	if m == nil {
		return
	}

	result := "ok"
	if !ok {
		result = "error"
	}

	m.fetches.WithLabelValues(result).Inc()
}

func (m *Metrics) runFinished(outcome models.RunOutcome, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.activeRuns.Dec()
	m.runsFinished.WithLabelValues(string(outcome)).Inc()
	m.runDuration.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
}
