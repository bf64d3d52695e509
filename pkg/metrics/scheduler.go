package metrics

import "github.com/prometheus/client_golang/prometheus"

// initSchedulerMetrics initializes scheduler activity metrics.
func (m *Manager) initSchedulerMetrics() {
	m.schedulerScheduled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_actions_scheduled_total",
			Help: "Total number of actions handed to a scheduler",
		},
		[]string{"scheduler"},
	)

	m.schedulerExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_actions_executed_total",
			Help: "Total number of actions run by a scheduler",
		},
		[]string{"scheduler"},
	)

	m.schedulerCancelled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_actions_cancelled_total",
			Help: "Total number of actions cancelled before they ran",
		},
		[]string{"scheduler"},
	)

	m.schedulerPanics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_action_panics_total",
			Help: "Total number of actions that panicked on a scheduler goroutine",
		},
		[]string{"scheduler"},
	)

	m.schedulerQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_queue_depth",
			Help: "Current number of actions waiting in a scheduler queue",
		},
		[]string{"scheduler"},
	)

	m.registry.MustRegister(m.schedulerScheduled)
	m.registry.MustRegister(m.schedulerExecuted)
	m.registry.MustRegister(m.schedulerCancelled)
	m.registry.MustRegister(m.schedulerPanics)
	m.registry.MustRegister(m.schedulerQueueDepth)
}

// RecordScheduled records an action handed to a scheduler.
func (m *Manager) RecordScheduled(scheduler string) {
	if !m.enabled {
		return
	}
	m.schedulerScheduled.WithLabelValues(scheduler).Inc()
}

// RecordExecuted records an action run by a scheduler.
func (m *Manager) RecordExecuted(scheduler string) {
	if !m.enabled {
		return
	}
	m.schedulerExecuted.WithLabelValues(scheduler).Inc()
}

// RecordCancelled records an action cancelled before it ran.
func (m *Manager) RecordCancelled(scheduler string) {
	if !m.enabled {
		return
	}
	m.schedulerCancelled.WithLabelValues(scheduler).Inc()
}

// RecordPanic records a recovered panic on a scheduler goroutine.
func (m *Manager) RecordPanic(scheduler string) {
	if !m.enabled {
		return
	}
	m.schedulerPanics.WithLabelValues(scheduler).Inc()
}

// SetQueueDepth sets the current queue depth for a scheduler.
func (m *Manager) SetQueueDepth(scheduler string, depth int) {
	if !m.enabled {
		return
	}
	m.schedulerQueueDepth.WithLabelValues(scheduler).Set(float64(depth))
}
