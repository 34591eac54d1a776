package metrics

import "github.com/prometheus/client_golang/prometheus"

func (m *Manager) initOrderMetrics(cfg Config) {
	m.ordersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_placed_total",
			Help: "Total number of order placements by outcome and payment provider",
		},
		[]string{"outcome", "provider"},
	)

	m.orderAmount = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "order_amount",
			Help:    "Charged order totals in major currency units",
			Buckets: cfg.OrderAmountBuckets,
		},
		[]string{"provider", "currency"},
	)

	m.orderCancellations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_cancellations_total",
			Help: "Total number of order cancellations by status",
		},
		[]string{"status"},
	)

	m.providerOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_provider_operations_total",
			Help: "Total number of payment provider calls by provider, operation and status",
		},
		[]string{"provider", "operation", "status"},
	)

	m.notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total number of customer notifications by kind and status",
		},
		[]string{"kind", "status"},
	)

	m.registry.MustRegister(m.ordersPlaced)
	m.registry.MustRegister(m.orderAmount)
	m.registry.MustRegister(m.orderCancellations)
	m.registry.MustRegister(m.providerOps)
	m.registry.MustRegister(m.notifications)
}

// RecordOrderPlaced records the terminal outcome of one order placement.
func (m *Manager) RecordOrderPlaced(outcome string, provider string) {
	if !m.enabled {
		return
	}
	m.ordersPlaced.WithLabelValues(outcome, provider).Inc()
}

// RecordOrderAmount records a charged order total.
func (m *Manager) RecordOrderAmount(provider string, currency string, amount float64) {
	if !m.enabled {
		return
	}
	m.orderAmount.WithLabelValues(provider, currency).Observe(amount)
}

// RecordOrderCancellation records one cancellation request outcome.
func (m *Manager) RecordOrderCancellation(status string) {
	if !m.enabled {
		return
	}
	m.orderCancellations.WithLabelValues(status).Inc()
}

// RecordProviderOperation records one payment provider call.
func (m *Manager) RecordProviderOperation(provider string, operation string, status string) {
	if !m.enabled {
		return
	}
	m.providerOps.WithLabelValues(provider, operation, status).Inc()
}

// RecordNotification records one customer notification attempt.
func (m *Manager) RecordNotification(kind string, status string) {
	if !m.enabled {
		return
	}
	m.notifications.WithLabelValues(kind, status).Inc()
}
