// Package observability holds the Prometheus metrics for repoprobe.
// Metrics live on a custom registry, not global state, and are gathered
// in-process; this tool serves no metrics endpoint.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds all Prometheus metrics for the try-run engine.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// Try-run attempt metrics.
	AttemptsTotal *prometheus.CounterVec

	// Per-command execution metrics.
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec

	// Sandbox lifecycle metrics.
	SandboxCopyDuration prometheus.Histogram
}

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		AttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "repoprobe",
			Subsystem: "tryrun",
			Name:      "attempts_total",
			Help:      "Total try-run attempts.",
		}, []string{"strategy", "attempted"}),

		ExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "repoprobe",
			Subsystem: "tryrun",
			Name:      "executions_total",
			Help:      "Total sandboxed command executions.",
		}, []string{"step", "status"}),

		ExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "repoprobe",
			Subsystem: "tryrun",
			Name:      "execution_duration_seconds",
			Help:      "Sandboxed command duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"step"}),

		SandboxCopyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "repoprobe",
			Subsystem: "tryrun",
			Name:      "sandbox_copy_duration_seconds",
			Help:      "Time spent copying the repository into the sandbox.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 60},
		}),
	}

	reg.MustRegister(
		m.AttemptsTotal,
		m.ExecutionsTotal,
		m.ExecutionDuration,
		m.SandboxCopyDuration,
	)
	return m
}

// ObserveExecution records one command execution outcome.
func (m *MetricsCollector) ObserveExecution(step, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ExecutionsTotal.WithLabelValues(step, status).Inc()
	m.ExecutionDuration.WithLabelValues(step).Observe(d.Seconds())
}

// ObserveAttempt records one completed try-run attempt.
func (m *MetricsCollector) ObserveAttempt(strategy string, attempted bool) {
	if m == nil {
		return
	}
	label := "false"
	if attempted {
		label = "true"
	}
	m.AttemptsTotal.WithLabelValues(strategy, label).Inc()
}

// ObserveSandboxCopy records the sandbox copy duration.
func (m *MetricsCollector) ObserveSandboxCopy(d time.Duration) {
	if m == nil {
		return
	}
	m.SandboxCopyDuration.Observe(d.Seconds())
}
