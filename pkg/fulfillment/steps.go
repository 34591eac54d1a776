package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goclaw/fulfillment/pkg/gateway"
	"github.com/goclaw/fulfillment/pkg/order"
	"github.com/goclaw/fulfillment/pkg/payment"
	"github.com/goclaw/fulfillment/pkg/saga"
	"github.com/shopspring/decimal"
)

// SagaName is the definition name of the fulfillment workflow.
const SagaName = "place-order"

// Reservation is the output of reserve-inventory.
type Reservation struct {
	Ref       string `json:"reservation_ref"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Quote is the output of quote-shipping. Total is computed here, once, and
// both payment steps charge exactly this amount.
type Quote struct {
	Subtotal     decimal.Decimal `json:"subtotal"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	Total        decimal.Decimal `json:"total"`
	Currency     string          `json:"currency"`
}

// Shipment is the output of create-shipment.
type Shipment struct {
	Ref string `json:"shipment_ref"`
}

// Pickup is the output of schedule-pickup.
type Pickup struct {
	ShipmentRef string    `json:"shipment_ref"`
	Date        time.Time `json:"pickup_date"`
}

// Notification is the output of a notify step.
type Notification struct {
	Kind      gateway.NotificationKind `json:"kind"`
	Recipient string                   `json:"recipient"`
}

// resultOf fetches the typed output of an earlier step.
func resultOf[T any](results map[string]any, step string) (T, error) {
	v, ok := results[step].(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("step %s has no %T result", step, zero)
	}
	return v, nil
}

// buildSaga binds the nine workflow steps to the gateways and to one
// provider family. Only reserve-inventory and capture-payment compensate.
func (o *Orchestrator) buildSaga(orderID string, req order.Request, family *payment.Family) (*saga.SagaDefinition, error) {
	b := saga.New(SagaName).
		WithDefaultStepTimeout(o.config.DefaultStepTimeout).
		WithRetryConfig(o.config.Retry)
	if o.config.SagaTimeout > 0 {
		b.WithTimeout(o.config.SagaTimeout)
	}

	provider := family.Provider()
	processor := family.Processor()
	refunds := family.RefundHandler()
	currency := req.CurrencyOrDefault()

	b.Step(order.StepReserveInventory,
		saga.Action(func(ctx context.Context, _ *saga.StepContext) (any, error) {
			ok, err := o.inventory.CheckStock(ctx, req.ProductID, req.Quantity)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, &order.InsufficientStockError{
					ProductID: req.ProductID,
					Requested: req.Quantity,
					Available: -1,
				}
			}
			ref, err := o.inventory.Reserve(ctx, req.ProductID, req.Quantity)
			if err != nil {
				return nil, err
			}
			return Reservation{Ref: ref, ProductID: req.ProductID, Quantity: req.Quantity}, nil
		}),
		saga.CompensateAs(order.ActionReleaseReservation, func(ctx context.Context, cc *saga.CompensationContext) error {
			res, ok := cc.Result.(Reservation)
			if !ok {
				return fmt.Errorf("no reservation to release")
			}
			return o.inventory.Release(ctx, res.Ref)
		}),
		saga.Describe(func(result any) string {
			res := result.(Reservation)
			return fmt.Sprintf("Reserved %d x %s (%s)", res.Quantity, res.ProductID, res.Ref)
		}),
	)

	b.Step(order.StepQuoteShipping,
		saga.Action(func(ctx context.Context, _ *saga.StepContext) (any, error) {
			cost, err := o.shipping.Quote(ctx, req.ShippingAddress)
			if err != nil {
				return nil, shippingError(req.ShippingAddress.Country, err)
			}
			subtotal := req.Subtotal()
			return Quote{
				Subtotal:     subtotal,
				ShippingCost: cost,
				Total:        subtotal.Add(cost),
				Currency:     currency,
			}, nil
		}),
		saga.Describe(func(result any) string {
			q := result.(Quote)
			return fmt.Sprintf("Shipping quoted at %s %s; order total %s %s",
				q.ShippingCost.StringFixed(2), q.Currency, q.Total.StringFixed(2), q.Currency)
		}),
	)

	b.Step(order.StepAuthorizePayment,
		saga.Action(func(ctx context.Context, sc *saga.StepContext) (any, error) {
			quote, err := resultOf[Quote](sc.Results, order.StepQuoteShipping)
			if err != nil {
				return nil, err
			}
			auth, err := processor.ProcessPayment(ctx, quote.Total, quote.Currency, req.PaymentToken)
			o.recordProviderOp(provider, "authorize", err)
			if err != nil {
				return nil, err
			}
			if !auth.Succeeded {
				return nil, &order.PaymentDeclinedError{Provider: provider, Reason: "authorization not approved"}
			}
			return auth, nil
		}),
		saga.Describe(func(result any) string {
			auth := result.(*payment.Authorization)
			return fmt.Sprintf("Payment of %s %s authorized by %s (%s)",
				auth.Amount.StringFixed(2), auth.Currency, family.DisplayName(), auth.Ref)
		}),
	)

	b.Step(order.StepCapturePayment,
		saga.Action(func(ctx context.Context, sc *saga.StepContext) (any, error) {
			auth, err := resultOf[*payment.Authorization](sc.Results, order.StepAuthorizePayment)
			if err != nil {
				return nil, err
			}
			quote, err := resultOf[Quote](sc.Results, order.StepQuoteShipping)
			if err != nil {
				return nil, err
			}
			capture, err := processor.Capture(ctx, auth.Ref, quote.Total)
			o.recordProviderOp(provider, "capture", err)
			if err != nil {
				return nil, err
			}
			return capture, nil
		}),
		saga.CompensateAs(order.ActionRefundPayment, func(ctx context.Context, cc *saga.CompensationContext) error {
			capture, ok := cc.Result.(*payment.Capture)
			if !ok {
				return fmt.Errorf("no captured payment to refund")
			}
			refund, err := refunds.Refund(ctx, capture.Ref, capture.Amount)
			o.recordProviderOp(provider, "refund", err)
			if err != nil {
				return err
			}
			if !refund.Succeeded {
				return fmt.Errorf("refund of %s was not accepted by %s", capture.Ref, provider)
			}
			return nil
		}),
		saga.Describe(func(result any) string {
			capture := result.(*payment.Capture)
			return fmt.Sprintf("Payment captured: %s (%s)", capture.Ref, capture.Amount.StringFixed(2))
		}),
	)

	b.Step(order.StepCreateShipment,
		saga.Action(func(ctx context.Context, _ *saga.StepContext) (any, error) {
			ref, err := o.shipping.CreateShipment(ctx, orderID, req.ShippingAddress)
			if err != nil {
				return nil, shippingError(req.ShippingAddress.Country, err)
			}
			return Shipment{Ref: ref}, nil
		}),
		saga.Describe(func(result any) string {
			return fmt.Sprintf("Shipment created: %s", result.(Shipment).Ref)
		}),
	)

	b.Step(order.StepSchedulePickup,
		saga.Action(func(ctx context.Context, sc *saga.StepContext) (any, error) {
			shipment, err := resultOf[Shipment](sc.Results, order.StepCreateShipment)
			if err != nil {
				return nil, err
			}
			date, err := o.shipping.SchedulePickup(ctx, shipment.Ref)
			if err != nil {
				return nil, err
			}
			return Pickup{ShipmentRef: shipment.Ref, Date: date}, nil
		}),
		saga.Describe(func(result any) string {
			return fmt.Sprintf("Pickup scheduled for %s", result.(Pickup).Date.Format(time.RFC3339))
		}),
	)

	b.Step(order.StepNotifyConfirmation, o.notifyStep(gateway.NotifyConfirmation,
		func(map[string]any) (string, map[string]any, error) {
			return req.CustomerEmail, map[string]any{
				"order_id":   orderID,
				"product_id": req.ProductID,
				"quantity":   req.Quantity,
			}, nil
		})...)

	b.Step(order.StepNotifyPayment, o.notifyStep(gateway.NotifyPayment,
		func(results map[string]any) (string, map[string]any, error) {
			capture, err := resultOf[*payment.Capture](results, order.StepCapturePayment)
			if err != nil {
				return "", nil, err
			}
			return req.CustomerEmail, map[string]any{
				"order_id":    orderID,
				"payment_ref": capture.Ref,
				"amount":      capture.Amount.StringFixed(2),
				"currency":    currency,
				"provider":    family.DisplayName(),
			}, nil
		})...)

	b.Step(order.StepNotifyShipment, o.notifyStep(gateway.NotifyShipment,
		func(results map[string]any) (string, map[string]any, error) {
			pickup, err := resultOf[Pickup](results, order.StepSchedulePickup)
			if err != nil {
				return "", nil, err
			}
			recipient := req.CustomerEmail
			if req.CustomerPhone != "" {
				recipient = req.CustomerPhone
			}
			return recipient, map[string]any{
				"order_id":     orderID,
				"shipment_ref": pickup.ShipmentRef,
				"pickup_date":  pickup.Date.Format(time.RFC3339),
			}, nil
		})...)

	return b.Build()
}

type notificationFunc func(results map[string]any) (recipient string, payload map[string]any, err error)

// notifyStep builds a non-critical step: a failed delivery is recorded and
// the order goes on.
func (o *Orchestrator) notifyStep(kind gateway.NotificationKind, build notificationFunc) []saga.StepOption {
	return []saga.StepOption{
		saga.NonCritical(),
		saga.Action(func(ctx context.Context, sc *saga.StepContext) (any, error) {
			recipient, payload, err := build(sc.Results)
			if err != nil {
				return nil, err
			}
			if err := o.notifier.Send(ctx, kind, recipient, payload); err != nil {
				o.metrics.RecordNotification(string(kind), "failed")
				return nil, err
			}
			o.metrics.RecordNotification(string(kind), "sent")
			return Notification{Kind: kind, Recipient: recipient}, nil
		}),
		saga.Describe(func(result any) string {
			n := result.(Notification)
			return fmt.Sprintf("Sent %s to %s", n.Kind, n.Recipient)
		}),
	}
}

func (o *Orchestrator) recordProviderOp(provider, operation string, err error) {
	o.metrics.RecordProviderOperation(provider, operation, providerStatus(err))
}

func providerStatus(err error) string {
	var (
		declined    *order.PaymentDeclinedError
		unavailable *order.PaymentProviderUnavailableError
		invalid     *order.ValidationError
	)
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &declined):
		return "declined"
	case errors.As(err, &unavailable):
		return "unavailable"
	case errors.As(err, &invalid):
		return "invalid"
	default:
		return "error"
	}
}

// shippingError keeps a carrier's own ShippingUnavailableError and wraps
// anything else in one.
func shippingError(country string, err error) error {
	var unavailable *order.ShippingUnavailableError
	if errors.As(err, &unavailable) {
		return err
	}
	return &order.ShippingUnavailableError{Country: country, Cause: err}
}
