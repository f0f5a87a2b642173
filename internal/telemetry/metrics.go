package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dna"

// Metrics holds the counters recorded during generation. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	stagesTotal       *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
	recoveryDecisions *prometheus.CounterVec
	errorsByCategory  *prometheus.CounterVec
	rollbacksTotal    *prometheus.CounterVec
	runsTotal         *prometheus.CounterVec
}

// NewMetrics creates the collectors in a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		stagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_executions_total",
				Help:      "Pipeline stage executions by stage and result",
			},
			[]string{"stage", "result"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Wall time spent in each pipeline stage",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		recoveryDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recovery_decisions_total",
				Help:      "Recovery engine decisions by error code and decision",
			},
			[]string{"code", "decision"},
		),
		errorsByCategory: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Errors handled by the recovery engine by category and severity",
			},
			[]string{"category", "severity"},
		),
		rollbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rollbacks_total",
				Help:      "Rollbacks performed by result",
			},
			[]string{"result"},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Pipeline runs by outcome",
			},
			[]string{"outcome"},
		),
	}

	m.registry.MustRegister(
		m.stagesTotal,
		m.stageDuration,
		m.recoveryDecisions,
		m.errorsByCategory,
		m.rollbacksTotal,
		m.runsTotal,
	)
	return m
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveStage records one stage execution.
func (m *Metrics) ObserveStage(stage, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stagesTotal.WithLabelValues(stage, result).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// RecordDecision records a recovery decision for an error.
func (m *Metrics) RecordDecision(code, category, severity, decision string) {
	if m == nil {
		return
	}
	m.recoveryDecisions.WithLabelValues(code, decision).Inc()
	m.errorsByCategory.WithLabelValues(category, severity).Inc()
}

// RecordRollback records a rollback attempt.
func (m *Metrics) RecordRollback(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.rollbacksTotal.WithLabelValues(result).Inc()
}

// RecordRun records the outcome of a pipeline run.
func (m *Metrics) RecordRun(outcome string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(outcome).Inc()
}

// WriteTextfile writes all metrics to path in the Prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
