package saga

import "time"

// MetricsRecorder records saga runtime metrics.
type MetricsRecorder interface {
	RecordSagaExecution(status string)
	RecordSagaDuration(status string, duration time.Duration)
	IncActiveSagas()
	DecActiveSagas()
	RecordStepExecution(step, status string)
	RecordStepDuration(step string, duration time.Duration)
	RecordCompensation(status string)
	RecordCompensationDuration(duration time.Duration)
	RecordCompensationRetry()
}

type nopMetricsRecorder struct{}

func (n *nopMetricsRecorder) RecordSagaExecution(status string)                        {}
func (n *nopMetricsRecorder) RecordSagaDuration(status string, duration time.Duration) {}
func (n *nopMetricsRecorder) IncActiveSagas()                                          {}
func (n *nopMetricsRecorder) DecActiveSagas()                                          {}
func (n *nopMetricsRecorder) RecordStepExecution(step, status string)                  {}
func (n *nopMetricsRecorder) RecordStepDuration(step string, duration time.Duration)   {}
func (n *nopMetricsRecorder) RecordCompensation(status string)                         {}
func (n *nopMetricsRecorder) RecordCompensationDuration(duration time.Duration)        {}
func (n *nopMetricsRecorder) RecordCompensationRetry()                                 {}
