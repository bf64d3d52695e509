// Package metrics provides Prometheus instrumentation for the reactive runtime.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goclaw/reactive/pkg/bus"
	"github.com/goclaw/reactive/pkg/fault"
	"github.com/goclaw/reactive/pkg/scheduler"
)

// Manager manages all Prometheus metrics for the runtime.
type Manager struct {
	registry *prometheus.Registry
	enabled  bool

	// Scheduler metrics
	schedulerScheduled  *prometheus.CounterVec
	schedulerExecuted   *prometheus.CounterVec
	schedulerCancelled  *prometheus.CounterVec
	schedulerPanics     *prometheus.CounterVec
	schedulerQueueDepth *prometheus.GaugeVec

	// Bus metrics
	busEmissions      *prometheus.CounterVec
	busListenerPanics prometheus.Counter
	busListeners      prometheus.Gauge

	// Fallback handler metrics
	fallbackErrors *prometheus.CounterVec

	// Task metrics
	taskExecutions *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	spansExported  *prometheus.CounterVec
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Port    int
	Path    string

	TaskDurationBuckets []float64
}

// DefaultConfig returns default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		Port:                9091,
		Path:                "/metrics",
		TaskDurationBuckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}
}

// NewManager creates a new metrics manager.
func NewManager(cfg Config) *Manager {
	if !cfg.Enabled {
		return &Manager{enabled: false}
	}

	registry := prometheus.NewRegistry()

	// Register Go runtime metrics
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Manager{
		registry: registry,
		enabled:  true,
	}

	m.initSchedulerMetrics()
	m.initBusMetrics()
	m.initFaultMetrics()
	m.initTaskMetrics(cfg)

	return m
}

// Enabled returns whether metrics collection is enabled.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// Registry returns the underlying registry, nil when disabled.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Install makes m the recorder for scheduler, bus and fallback handler
// activity. The returned function restores the no-op recorders.
func (m *Manager) Install() func() {
	if !m.enabled {
		return func() {}
	}
	scheduler.SetMetricsRecorder(m)
	bus.SetMetricsRecorder(m)
	fault.SetMetricsRecorder(m)
	return func() {
		scheduler.SetMetricsRecorder(nil)
		bus.SetMetricsRecorder(nil)
		fault.SetMetricsRecorder(nil)
	}
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Manager) Handler() http.Handler {
	if !m.enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// StartServer starts the metrics HTTP server on the configured port.
func (m *Manager) StartServer(ctx context.Context, port int, path string) error {
	if !m.enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	return server.ListenAndServe()
}

// NoOpManager returns a no-op metrics manager for when metrics are disabled.
func NoOpManager() *Manager {
	return &Manager{enabled: false}
}
