package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds all Prometheus metrics for codecall.
// Uses a custom registry, no global state.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// Validation metrics.
	ValidationsTotal *prometheus.CounterVec

	// Execution metrics.
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec

	// Tool-call metrics.
	ToolCallsTotal   *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec

	// System metrics.
	ActiveExecutions prometheus.Gauge
}

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		ValidationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codecall",
			Subsystem: "validator",
			Name:      "validations_total",
			Help:      "Total script validations.",
		}, []string{"preset", "result"}),

		ExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codecall",
			Subsystem: "sandbox",
			Name:      "executions_total",
			Help:      "Total script executions.",
		}, []string{"status"}),

		ExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "codecall",
			Subsystem: "sandbox",
			Name:      "execution_duration_seconds",
			Help:      "Script execution duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"status"}),

		ToolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codecall",
			Subsystem: "bridge",
			Name:      "tool_calls_total",
			Help:      "Total delegated tool calls.",
		}, []string{"tool", "code"}),

		ToolCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "codecall",
			Subsystem: "bridge",
			Name:      "tool_call_duration_seconds",
			Help:      "Delegated tool call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),

		ActiveExecutions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "codecall",
			Name:      "active_executions",
			Help:      "Number of currently running script executions.",
		}),
	}

	// Register all collectors.
	reg.MustRegister(
		m.ValidationsTotal,
		m.ExecutionsTotal,
		m.ExecutionDuration,
		m.ToolCallsTotal,
		m.ToolCallDuration,
		m.ActiveExecutions,
	)

	return m
}

// --- Nil-safe recording helpers ---
// All helpers are no-ops on a nil receiver so callers never branch.

// RecordValidation counts one validation by preset and result.
func (m *MetricsCollector) RecordValidation(preset string, valid bool) {
	if m == nil {
		return
	}
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.ValidationsTotal.WithLabelValues(preset, result).Inc()
}

// RecordExecution counts one execution and its duration by outcome status.
func (m *MetricsCollector) RecordExecution(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ExecutionsTotal.WithLabelValues(status).Inc()
	m.ExecutionDuration.WithLabelValues(status).Observe(d.Seconds())
}

// RecordToolCall counts one delegated call. code is "ok" for successes.
func (m *MetricsCollector) RecordToolCall(tool, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, code).Inc()
	m.ToolCallDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// ExecutionStarted increments the active-execution gauge.
func (m *MetricsCollector) ExecutionStarted() {
	if m == nil {
		return
	}
	m.ActiveExecutions.Inc()
}

// ExecutionFinished decrements the active-execution gauge.
func (m *MetricsCollector) ExecutionFinished() {
	if m == nil {
		return
	}
	m.ActiveExecutions.Dec()
}
