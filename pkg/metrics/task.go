package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// initTaskMetrics initializes task execution metrics.
func (m *Manager) initTaskMetrics(cfg Config) {
	m.taskExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_executions_total",
			Help: "Total number of task executions by name and outcome",
		},
		[]string{"name", "outcome"},
	)

	m.taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "task_duration_seconds",
			Help:    "Time from task start to its outcome in seconds",
			Buckets: cfg.TaskDurationBuckets,
		},
		[]string{"name", "outcome"},
	)

	m.spansExported = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracing_spans_exported_total",
			Help: "Total number of spans handed to the trace exporter by outcome",
		},
		[]string{"outcome"},
	)

	m.registry.MustRegister(m.taskExecutions)
	m.registry.MustRegister(m.taskDuration)
	m.registry.MustRegister(m.spansExported)
}

// RecordTask records one task execution. Outcome is "success", "error" or
// "cancelled". When ctx carries a sampled span the duration observation gets
// the trace and span ids as an exemplar.
func (m *Manager) RecordTask(ctx context.Context, name, outcome string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.taskExecutions.WithLabelValues(name, outcome).Inc()

	observer := m.taskDuration.WithLabelValues(name, outcome)
	if labels, ok := traceExemplarLabels(ctx); ok {
		if eo, ok := observer.(prometheus.ExemplarObserver); ok {
			eo.ObserveWithExemplar(duration.Seconds(), labels)
			return
		}
	}
	observer.Observe(duration.Seconds())
}

// RecordSpanExport records one export batch of spans. Outcome is "success"
// or "failure".
func (m *Manager) RecordSpanExport(outcome string, spans int) {
	if !m.enabled {
		return
	}
	m.spansExported.WithLabelValues(outcome).Add(float64(spans))
}

func traceExemplarLabels(ctx context.Context) (prometheus.Labels, bool) {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() || !spanCtx.IsSampled() {
		return nil, false
	}
	return prometheus.Labels{
		"trace_id": spanCtx.TraceID().String(),
		"span_id":  spanCtx.SpanID().String(),
	}, true
}
