// Package models defines the HTTP request and response bodies of the API.
package models

import (
	"time"

	"github.com/goclaw/fulfillment/pkg/order"
)

// PlaceOrderRequest is the body of POST /api/v1/orders.
type PlaceOrderRequest = order.Request

// CancelOrderRequest is the body of POST /api/v1/orders/{id}/cancel.
type CancelOrderRequest struct {
	ReservationRef string `json:"reservation_ref" validate:"required"`
	PaymentRef     string `json:"payment_ref" validate:"required"`
}

// InterruptOrderRequest is the body of POST /api/v1/orders/{id}/interrupt.
type InterruptOrderRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// InterruptOrderResponse acknowledges an interrupt request. The order stops
// before its next step, so the outcome is reported by the PlaceOrder call.
type InterruptOrderResponse struct {
	OrderID     string    `json:"order_id"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

// ReceiptListResponse is a page of completed order receipts.
type ReceiptListResponse struct {
	Items  []*order.Receipt `json:"items"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}
