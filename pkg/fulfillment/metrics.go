package fulfillment

// MetricsRecorder records order-level metrics.
type MetricsRecorder interface {
	RecordOrderPlaced(outcome string, provider string)
	RecordOrderAmount(provider string, currency string, amount float64)
	RecordOrderCancellation(status string)
	RecordProviderOperation(provider string, operation string, status string)
	RecordNotification(kind string, status string)
}

type nopMetricsRecorder struct{}

func (nopMetricsRecorder) RecordOrderPlaced(string, string)               {}
func (nopMetricsRecorder) RecordOrderAmount(string, string, float64)      {}
func (nopMetricsRecorder) RecordOrderCancellation(string)                 {}
func (nopMetricsRecorder) RecordProviderOperation(string, string, string) {}
func (nopMetricsRecorder) RecordNotification(string, string)              {}
