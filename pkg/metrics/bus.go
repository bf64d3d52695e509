package metrics

import "github.com/prometheus/client_golang/prometheus"

func (m *Manager) initBusMetrics() {
	m.busEmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_emissions_total",
			Help: "Total number of dispatcher emissions by kind",
		},
		[]string{"kind"},
	)

	m.busListenerPanics = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bus_listener_panics_total",
			Help: "Total number of listener panics recovered by dispatchers",
		},
	)

	m.busListeners = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bus_listeners",
			Help: "Current number of live dispatcher listeners",
		},
	)

	m.registry.MustRegister(m.busEmissions)
	m.registry.MustRegister(m.busListenerPanics)
	m.registry.MustRegister(m.busListeners)
}

// RecordEmission records one dispatcher emission.
func (m *Manager) RecordEmission(kind string) {
	if !m.enabled {
		return
	}
	m.busEmissions.WithLabelValues(kind).Inc()
}

// RecordListenerPanic records a listener panic recovered by a dispatcher.
func (m *Manager) RecordListenerPanic() {
	if !m.enabled {
		return
	}
	m.busListenerPanics.Inc()
}

// AddListeners adjusts the live listener gauge.
func (m *Manager) AddListeners(delta int) {
	if !m.enabled {
		return
	}
	m.busListeners.Add(float64(delta))
}
