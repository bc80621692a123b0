// Package metrics holds the Prometheus instruments for retention passes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "seedkeeper"

// Metrics groups every instrument. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// decisions counts policy outcomes.
	// Labels: job, outcome (excluded, pending, eligible, skipped)
	decisions *prometheus.CounterVec

	// actions counts executed actions.
	// Labels: job, action (test, stop, delete), status (ok, error)
	actions *prometheus.CounterVec

	// runs counts finished passes.
	// Labels: job, status (ok, error)
	runs *prometheus.CounterVec

	// duration measures pass latency.
	// Labels: job
	duration *prometheus.HistogramVec

	// lastRun is the unix time of the last finished pass.
	// Labels: job
	lastRun *prometheus.GaugeVec
}

// New registers the instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "decisions_total",
			Help:      "Policy decisions by outcome",
		}, []string{"job", "outcome"}),
		actions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "actions_total",
			Help:      "Actions applied to eligible entities",
		}, []string{"job", "action", "status"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "runs_total",
			Help:      "Finished job passes",
		}, []string{"job", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "duration_seconds",
			Help:      "Job pass duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"job"}),
		lastRun: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last finished pass",
		}, []string{"job"}),
	}
}

// Decision records one policy outcome.
func (m *Metrics) Decision(job, outcome string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(job, outcome).Inc()
}

// Action records one executed action.
func (m *Metrics) Action(job, action string, err error) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(job, action, status(err)).Inc()
}

// Run records a finished pass.
func (m *Metrics) Run(job string, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(job, status(err)).Inc()
	m.duration.WithLabelValues(job).Observe(took.Seconds())
	m.lastRun.WithLabelValues(job).SetToCurrentTime()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
