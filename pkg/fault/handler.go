package fault

import (
	"sync"

	"github.com/goclaw/reactive/pkg/logger"
)

// Handler receives errors that cannot be delivered to any consumer.
type Handler func(err error)

// MetricsRecorder defines metrics hooks for the fallback path.
type MetricsRecorder interface {
	RecordFallbackError(kind string)
}

type nopMetrics struct{}

func (n *nopMetrics) RecordFallbackError(kind string) {}

var (
	handlerMu sync.RWMutex
	handler   Handler

	metricsMu sync.RWMutex
	metrics   MetricsRecorder = &nopMetrics{}
)

// SetHandler replaces the process-wide fallback handler and returns the
// previous one. A nil handler restores the default behavior.
func SetHandler(h Handler) Handler {
	handlerMu.Lock()
	defer handlerMu.Unlock()
	prev := handler
	handler = h
	return prev
}

// ResetHandler restores the default fallback behavior.
func ResetHandler() {
	SetHandler(nil)
}

// Handle routes err to the fallback handler. Without a handler, or when the
// handler itself panics, the error is logged and raised as a panic on the
// calling goroutine.
func Handle(err error) {
	if err == nil {
		return
	}
	metricsRecorder().RecordFallbackError(Kind(err))

	handlerMu.RLock()
	h := handler
	handlerMu.RUnlock()

	if h == nil {
		uncaught(err)
		return
	}
	if herr := CatchAll(func() { h(err) }); herr != nil {
		uncaught(herr)
	}
}

func uncaught(err error) {
	logger.Error("reactive: uncaught error", "error", err, "kind", Kind(err))
	panic(err)
}

// Kind returns a short label for err, used in logs and metrics.
func Kind(err error) string {
	switch err.(type) {
	case nil:
		return "none"
	case *UndeliveredError:
		return "undelivered"
	case *NotImplementedError:
		return "not_implemented"
	case *EndlessBusError:
		return "endless_bus"
	case *MergedError:
		return "merged"
	case *PanicError:
		return "panic"
	default:
		if IsFatal(err) {
			return "runtime"
		}
		return "error"
	}
}

// SetMetricsRecorder sets the package-level fallback metrics recorder.
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
