package scheduler

import (
	"sync"

	"github.com/goclaw/reactive/pkg/fault"
	"github.com/goclaw/reactive/pkg/logger"
)

// MetricsRecorder defines metrics hooks for scheduler activity.
type MetricsRecorder interface {
	RecordScheduled(scheduler string)
	RecordExecuted(scheduler string)
	RecordCancelled(scheduler string)
	RecordPanic(scheduler string)
	SetQueueDepth(scheduler string, depth int)
}

type nopMetrics struct{}

func (n *nopMetrics) RecordScheduled(scheduler string)          {}
func (n *nopMetrics) RecordExecuted(scheduler string)           {}
func (n *nopMetrics) RecordCancelled(scheduler string)          {}
func (n *nopMetrics) RecordPanic(scheduler string)              {}
func (n *nopMetrics) SetQueueDepth(scheduler string, depth int) {}

var (
	metricsMu sync.RWMutex
	metrics   MetricsRecorder = &nopMetrics{}
)

// SetMetricsRecorder sets the package-level scheduler metrics recorder.
func SetMetricsRecorder(recorder MetricsRecorder) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if recorder == nil {
		metrics = &nopMetrics{}
		return
	}
	metrics = recorder
}

func metricsRecorder() MetricsRecorder {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return metrics
}

func runRecovered(name string, action func()) {
	if err := fault.CatchAll(action); err != nil {
		metricsRecorder().RecordPanic(name)
		logger.Error("scheduler: action panicked",
			"scheduler", name,
			"error", err,
			"kind", fault.Kind(err),
		)
		if fault.IsFatal(err) {
			// The default handler panics; keep the worker alive regardless.
			_ = fault.CatchAll(func() { fault.Handle(err) })
		}
	}
}
