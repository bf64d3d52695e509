package metrics

import "github.com/prometheus/client_golang/prometheus"

func (m *Manager) initFaultMetrics() {
	m.fallbackErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_errors_total",
			Help: "Total number of errors routed to the fallback handler by kind",
		},
		[]string{"kind"},
	)
	m.registry.MustRegister(m.fallbackErrors)
}

// RecordFallbackError records an error that reached the fallback handler.
func (m *Manager) RecordFallbackError(kind string) {
	if !m.enabled {
		return
	}
	m.fallbackErrors.WithLabelValues(kind).Inc()
}
