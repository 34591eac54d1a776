// Package gateway defines the client contracts of the collaborators the
// fulfillment workflow calls: inventory, shipping and notification.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goclaw/fulfillment/pkg/order"
	"github.com/shopspring/decimal"
)

// Inventory checks, reserves and releases stock.
type Inventory interface {
	CheckStock(ctx context.Context, productID string, qty int) (bool, error)
	Reserve(ctx context.Context, productID string, qty int) (reservationRef string, err error)
	// Release is idempotent: releasing an already released reservation is a no-op.
	Release(ctx context.Context, reservationRef string) error
}

// Shipping quotes, creates shipments and schedules pickups.
type Shipping interface {
	Quote(ctx context.Context, addr order.Address) (decimal.Decimal, error)
	CreateShipment(ctx context.Context, orderID string, addr order.Address) (shipmentRef string, err error)
	SchedulePickup(ctx context.Context, shipmentRef string) (time.Time, error)
}

// NotificationKind identifies a customer notification.
type NotificationKind string

const (
	NotifyConfirmation NotificationKind = "order-confirmation"
	NotifyPayment      NotificationKind = "payment-receipt"
	NotifyShipment     NotificationKind = "shipment-update"
)

// Notifier delivers notifications on a best-effort basis.
type Notifier interface {
	Send(ctx context.Context, kind NotificationKind, recipient string, payload map[string]any) error
}

var (
	// ErrUnknownReservation is returned when releasing a reservation that was never made.
	ErrUnknownReservation = errors.New("unknown reservation")
	// ErrUnknownShipment is returned when scheduling a pickup for an unknown shipment.
	ErrUnknownShipment = errors.New("unknown shipment")
	// ErrRateLimited is returned when a notification channel is throttled.
	ErrRateLimited = errors.New("notification rate limited")
)

// UnavailableError is a transport-level failure of a collaborator.
type UnavailableError struct {
	Service string
	Op      string
	Cause   error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s %s unavailable: %v", e.Service, e.Op, e.Cause)
}

func (e *UnavailableError) Unwrap() error { return e.Cause }
