package fulfillment

import (
	"time"

	"github.com/goclaw/fulfillment/pkg/logger"
	"github.com/goclaw/fulfillment/pkg/saga"
	"github.com/goclaw/fulfillment/pkg/signal"
	"github.com/goclaw/fulfillment/pkg/storage"
)

// Config holds the per-order workflow settings.
type Config struct {
	// DefaultStepTimeout bounds every gateway and provider call.
	DefaultStepTimeout time.Duration
	// SagaTimeout bounds forward progress of one order. Zero disables it.
	SagaTimeout time.Duration
	// Retry controls compensation retries before a rollback step is
	// reported as failed.
	Retry saga.CompensationRetryConfig
	// RequestedBy is recorded on interrupt signals sent by Interrupt.
	RequestedBy string
}

// DefaultConfig returns a 10s step timeout and the saga engine's default
// compensation retry policy.
func DefaultConfig() Config {
	return Config{
		DefaultStepTimeout: 10 * time.Second,
		Retry:              saga.DefaultRetryConfig(),
		RequestedBy:        "fulfillment",
	}
}

// Option is a functional option for configuring the Orchestrator.
type Option func(*Orchestrator)

// WithConfig replaces the workflow settings.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) {
		o.config = cfg
	}
}

// WithSagaOrchestrator sets the saga engine that runs the workflow. Use it to
// share observers and the concurrency limit across facades.
func WithSagaOrchestrator(sagas *saga.SagaOrchestrator) Option {
	return func(o *Orchestrator) {
		if sagas != nil {
			o.sagas = sagas
		}
	}
}

// WithSignalBus enables Interrupt and between-step interruption of running orders.
func WithSignalBus(bus signal.Bus) Option {
	return func(o *Orchestrator) {
		if bus != nil {
			o.signals = bus
		}
	}
}

// WithReceiptStore sets where completed orders are recorded for later cancellation.
func WithReceiptStore(store storage.Storage) Option {
	return func(o *Orchestrator) {
		if store != nil {
			o.receipts = store
		}
	}
}

// WithMetrics sets the metrics recorder for the orchestrator.
func WithMetrics(metrics MetricsRecorder) Option {
	return func(o *Orchestrator) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}
