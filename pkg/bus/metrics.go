package bus

import "sync"

// MetricsRecorder defines metrics hooks for dispatcher activity.
type MetricsRecorder interface {
	// RecordEmission counts one emission attempt; kind is "event", "error",
	// "complete" or "dropped" for emissions after the terminal event.
	RecordEmission(kind string)
	RecordListenerPanic()
	AddListeners(delta int)
}

type nopMetrics struct{}

func (n *nopMetrics) RecordEmission(kind string) {}
func (n *nopMetrics) RecordListenerPanic()       {}
func (n *nopMetrics) AddListeners(delta int)     {}

var (
	metricsMu sync.RWMutex
	metrics   MetricsRecorder = &nopMetrics{}
)

// SetMetricsRecorder sets the package-level bus metrics recorder.
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
