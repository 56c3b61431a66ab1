// Package metrics holds the Prometheus registry for ambient pipeline
// observability, grounded on the teacher's interfaces/http.MetricsRegistry
// shape but scoped to probe outcomes, circuit-breaker trips, batch
// latency, and materialization duration instead of scanner steps.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the pipeline emits during one invocation.
type Registry struct {
	ProbeOutcomes   *prometheus.CounterVec
	ProbeDuration   *prometheus.HistogramVec
	BatchDuration   *prometheus.HistogramVec
	CircuitTrips    prometheus.Counter
	ValidatorFindings *prometheus.CounterVec
	MaterializeDuration prometheus.Histogram
	RowsUpserted    prometheus.Counter
}

// New constructs and registers a fresh Registry against reg.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		ProbeOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "klinewatch_probe_outcomes_total",
				Help: "Total number of C1 probes by outcome (available, not_found, error)",
			},
			[]string{"outcome"},
		),
		ProbeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "klinewatch_probe_duration_seconds",
				Help:    "Duration of a single HEAD probe",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		BatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "klinewatch_batch_duration_seconds",
				Help:    "Duration of one date's C5 batch probe",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"mode"},
		),
		CircuitTrips: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "klinewatch_circuit_trips_total",
				Help: "Total number of batch circuit breaker trips",
			},
		),
		ValidatorFindings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "klinewatch_validator_findings_total",
				Help: "Total number of C8 validator findings by kind",
			},
			[]string{"kind"},
		),
		MaterializeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "klinewatch_materialize_duration_seconds",
				Help:    "Duration of the C11 rankings materialization",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		),
		RowsUpserted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "klinewatch_rows_upserted_total",
				Help: "Total number of daily_availability rows upserted across the run",
			},
		),
	}

	reg.MustRegister(
		r.ProbeOutcomes, r.ProbeDuration, r.BatchDuration,
		r.CircuitTrips, r.ValidatorFindings, r.MaterializeDuration, r.RowsUpserted,
	)
	return r
}

// Handler exposes Prometheus's default global registry for scraping.
// Metrics that New registered on a different Registerer are not served by it.
func Handler() http.Handler { return promhttp.Handler() }

// Timer tracks one timed operation's duration.
type Timer struct {
	start time.Time
}

// StartTimer begins timing an operation.
func StartTimer() Timer { return Timer{start: time.Now()} }

// ObserveSeconds returns the elapsed duration in seconds since StartTimer.
func (t Timer) ObserveSeconds() float64 { return time.Since(t.start).Seconds() }
