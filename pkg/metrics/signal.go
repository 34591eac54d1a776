package metrics

import "github.com/prometheus/client_golang/prometheus"

func (m *Manager) initSignalMetrics() {
	m.signalSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_sent_total",
			Help: "Total number of signals sent",
		},
		[]string{"mode", "type"},
	)

	m.signalReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_received_total",
			Help: "Total number of signals delivered to subscribers",
		},
		[]string{"mode", "type"},
	)

	m.signalFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_failures_total",
			Help: "Total number of signal delivery failures",
		},
		[]string{"mode", "type", "reason"},
	)

	m.registry.MustRegister(m.signalSent)
	m.registry.MustRegister(m.signalReceived)
	m.registry.MustRegister(m.signalFailures)
}

// RecordSignalSent records a signal sent event.
func (m *Manager) RecordSignalSent(mode string, signalType string) {
	if !m.enabled {
		return
	}
	m.signalSent.WithLabelValues(mode, signalType).Inc()
}

// RecordSignalReceived records a signal received event.
func (m *Manager) RecordSignalReceived(mode string, signalType string) {
	if !m.enabled {
		return
	}
	m.signalReceived.WithLabelValues(mode, signalType).Inc()
}

// RecordSignalFailed records a failed signal operation.
func (m *Manager) RecordSignalFailed(mode string, signalType string, reason string) {
	if !m.enabled {
		return
	}
	m.signalFailures.WithLabelValues(mode, signalType, reason).Inc()
}
