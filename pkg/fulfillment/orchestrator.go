// Package fulfillment is the single entry point of the order workflow. It
// resolves a payment provider family, binds the nine fulfillment steps to it
// and to the gateways, and runs them on the saga engine.
package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/goclaw/fulfillment/pkg/gateway"
	"github.com/goclaw/fulfillment/pkg/logger"
	"github.com/goclaw/fulfillment/pkg/order"
	"github.com/goclaw/fulfillment/pkg/payment"
	"github.com/goclaw/fulfillment/pkg/saga"
	"github.com/goclaw/fulfillment/pkg/signal"
	"github.com/goclaw/fulfillment/pkg/storage"
	"github.com/goclaw/fulfillment/pkg/storage/memory"
	"github.com/google/uuid"
)

// OrderIDPrefix prefixes every generated order id.
const OrderIDPrefix = "ORD-"

// statusRejected is the result status of an order refused before any step ran.
const statusRejected = "rejected"

// ErrInterruptsDisabled is returned by Interrupt when no signal bus is configured.
var ErrInterruptsDisabled = errors.New("order interrupts are not enabled")

// Orchestrator places and cancels orders.
type Orchestrator struct {
	registry  *payment.Registry
	inventory gateway.Inventory
	shipping  gateway.Shipping
	notifier  gateway.Notifier

	config   Config
	sagas    *saga.SagaOrchestrator
	signals  signal.Bus
	receipts storage.Storage
	metrics  MetricsRecorder
	log      logger.Logger
}

// New creates an orchestrator over the provider registry and the gateways.
// Receipts default to in-memory storage.
func New(
	registry *payment.Registry,
	inventory gateway.Inventory,
	shipping gateway.Shipping,
	notifier gateway.Notifier,
	opts ...Option,
) (*Orchestrator, error) {
	if registry == nil {
		return nil, fmt.Errorf("provider registry cannot be nil")
	}
	if inventory == nil || shipping == nil || notifier == nil {
		return nil, fmt.Errorf("inventory, shipping and notification gateways are required")
	}

	o := &Orchestrator{
		registry:  registry,
		inventory: inventory,
		shipping:  shipping,
		notifier:  notifier,
		config:    DefaultConfig(),
		metrics:   nopMetricsRecorder{},
		log:       logger.Global(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.sagas == nil {
		o.sagas = saga.NewSagaOrchestrator()
	}
	if o.receipts == nil {
		o.receipts = memory.NewMemoryStorage()
	}
	return o, nil
}

// Registry returns the provider registry.
func (o *Orchestrator) Registry() *payment.Registry {
	return o.registry
}

// Receipts returns the receipt store.
func (o *Orchestrator) Receipts() storage.Storage {
	return o.receipts
}

// PlaceOrder runs the fulfillment workflow for req.
//
// The result is never nil and always carries the generated order id. The
// error is non-nil only for hard failures: *order.ValidationError and
// *order.UnknownProviderError before any step ran, and
// *order.CompensationFailedError when rollback itself failed. Business
// declines and transport failures come back as Success=false with a nil
// error after the completed steps were compensated.
func (o *Orchestrator) PlaceOrder(ctx context.Context, req order.Request) (*order.Result, error) {
	orderID := newOrderID()
	log := o.log.With("order_id", orderID)

	result := &order.Result{
		OrderID:  orderID,
		Status:   statusRejected,
		Currency: req.CurrencyOrDefault(),
		Steps:    []string{},
		Records:  []order.StepRecord{},
	}

	if err := req.Validate(); err != nil {
		return o.reject(ctx, log, result, err)
	}

	family, err := o.resolveFamily(req)
	if err != nil {
		return o.reject(ctx, log, result, err)
	}
	result.Provider = family.Provider()
	log = log.With("provider", family.Provider())

	definition, err := o.buildSaga(orderID, req, family)
	if err != nil {
		return o.reject(ctx, log, result, err)
	}

	var execOpts []saga.ExecuteOption
	if o.signals != nil {
		ch, err := o.signals.Subscribe(ctx, orderID)
		if err != nil {
			log.WarnContext(ctx, "interrupts unavailable for order", "error", err)
		} else {
			defer func() { _ = o.signals.Unsubscribe(orderID) }()
			execOpts = append(execOpts, saga.WithInterrupt(signal.InterruptReasons(ctx, ch)))
		}
	}

	log.InfoContext(ctx, "placing order",
		"product_id", req.ProductID,
		"quantity", req.Quantity,
		"subtotal", req.Subtotal().StringFixed(2),
	)

	execution, execErr := o.sagas.ExecuteWithID(ctx, orderID, definition, req, execOpts...)
	if execution == nil {
		return o.reject(ctx, log, result, execErr)
	}
	fillResult(result, execution, execErr)

	if result.Success {
		o.metrics.RecordOrderPlaced(result.Status, result.Provider)
		o.metrics.RecordOrderAmount(result.Provider, result.Currency, result.TotalAmount.InexactFloat64())
		o.saveReceipt(ctx, log, result)
		log.InfoContext(ctx, "order placed", "total", result.TotalAmount.StringFixed(2))
		return result, nil
	}

	o.metrics.RecordOrderPlaced(result.Status, result.Provider)
	if order.IsHardFailure(execErr) {
		log.ErrorContext(ctx, "order failed", "failed_step", execution.FailedStep, "error", execErr)
		return result, execErr
	}
	log.WarnContext(ctx, "order rolled back", "failed_step", execution.FailedStep, "error", execErr)
	return result, nil
}

// Interrupt asks a running PlaceOrder to stop before its next step and roll
// back what it completed. Interrupting an order that is not running has no
// effect.
func (o *Orchestrator) Interrupt(ctx context.Context, orderID, reason string) error {
	if o.signals == nil {
		return ErrInterruptsDisabled
	}
	if orderID == "" {
		return order.NewValidationError("order id is required")
	}
	if err := signal.SendInterrupt(ctx, o.signals, orderID, reason, o.config.RequestedBy); err != nil {
		return fmt.Errorf("interrupt order %s: %w", orderID, err)
	}
	o.log.InfoContext(ctx, "order interrupt requested", "order_id", orderID, "reason", reason)
	return nil
}

// resolveFamily honors an explicit provider override and otherwise selects
// one from the shipping country and subtotal.
func (o *Orchestrator) resolveFamily(req order.Request) (*payment.Family, error) {
	providerID := req.Provider
	if providerID == "" {
		providerID = o.registry.SelectProvider(
			o.registry.CriteriaFor(req.ShippingAddress.Country, req.Subtotal()),
		)
	}
	if providerID == "" {
		return nil, &order.UnknownProviderError{Provider: "(none registered)"}
	}
	return o.registry.CreateFamily(providerID)
}

func (o *Orchestrator) reject(ctx context.Context, log logger.Logger, result *order.Result, err error) (*order.Result, error) {
	result.Success = false
	result.Status = statusRejected
	result.Message = fmt.Sprintf("order rejected: %v", err)
	o.metrics.RecordOrderPlaced(statusRejected, result.Provider)
	log.WarnContext(ctx, "order rejected", "error", err)
	return result, err
}

func (o *Orchestrator) saveReceipt(ctx context.Context, log logger.Logger, result *order.Result) {
	err := o.receipts.SaveReceipt(ctx, &order.Receipt{
		OrderID:        result.OrderID,
		Provider:       result.Provider,
		Amount:         result.TotalAmount,
		Currency:       result.Currency,
		ReservationRef: result.ReservationRef,
		PaymentRef:     result.PaymentRef,
		ShipmentRef:    result.ShipmentRef,
	})
	if err != nil {
		log.ErrorContext(ctx, "failed to save order receipt; cancellation will not find it", "error", err)
	}
}

func newOrderID() string {
	return OrderIDPrefix + uuid.NewString()
}
