// Package order defines the fulfillment data model shared by the saga engine,
// the provider registry and the orchestrator facade.
package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when a request does not carry a currency code.
const DefaultCurrency = "USD"

// Address is a shipping destination.
type Address struct {
	Street  string `json:"street" validate:"required"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state"`
	Zip     string `json:"zip" validate:"required"`
	Country string `json:"country" validate:"required,len=2,alpha"`
}

// Request is an inbound order. It is treated as immutable once accepted.
type Request struct {
	ProductID       string          `json:"product_id" validate:"required"`
	Quantity        int             `json:"quantity" validate:"required,min=1"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Currency        string          `json:"currency" validate:"omitempty,len=3,alpha"`
	CustomerEmail   string          `json:"customer_email" validate:"required,email"`
	CustomerPhone   string          `json:"customer_phone,omitempty" validate:"omitempty,e164"`
	PaymentToken    string          `json:"payment_token" validate:"required"`
	Provider        string          `json:"provider,omitempty"`
	ShippingAddress Address         `json:"shipping_address"`
}

// Subtotal returns quantity × unit price.
func (r Request) Subtotal() decimal.Decimal {
	return r.UnitPrice.Mul(decimal.NewFromInt(int64(r.Quantity)))
}

// CurrencyOrDefault returns the request currency or DefaultCurrency.
func (r Request) CurrencyOrDefault() string {
	if r.Currency == "" {
		return DefaultCurrency
	}
	return r.Currency
}

// StepStatus is the execution status of one workflow step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
)

// StepRecord captures what one workflow step did.
type StepRecord struct {
	Name        string     `json:"name"`
	Status      StepStatus `json:"status"`
	Critical    bool       `json:"critical"`
	Compensable bool       `json:"compensable"`
	Output      any        `json:"output,omitempty"`
	Description string     `json:"description,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  time.Time  `json:"finished_at"`
}

// CompensationStatus is the outcome of one compensating action.
type CompensationStatus string

const (
	CompensationSucceeded CompensationStatus = "succeeded"
	CompensationFailed    CompensationStatus = "failed"
)

// CompensationRecord captures one compensating action run during rollback.
type CompensationRecord struct {
	Step     string             `json:"step"`
	Action   string             `json:"action"`
	Status   CompensationStatus `json:"status"`
	Attempts int                `json:"attempts"`
	Error    string             `json:"error,omitempty"`
}

// Result is the consolidated outcome of one PlaceOrder call.
type Result struct {
	Success          bool                 `json:"success"`
	OrderID          string               `json:"order_id"`
	Provider         string               `json:"provider,omitempty"`
	Status           string               `json:"status"`
	TotalAmount      decimal.Decimal      `json:"total_amount"`
	ShippingCost     decimal.Decimal      `json:"shipping_cost"`
	Currency         string               `json:"currency"`
	ReservationRef   string               `json:"reservation_ref,omitempty"`
	AuthorizationRef string               `json:"authorization_ref,omitempty"`
	PaymentRef       string               `json:"payment_ref,omitempty"`
	ShipmentRef      string               `json:"shipment_ref,omitempty"`
	PickupDate       *time.Time           `json:"pickup_date,omitempty"`
	Steps            []string             `json:"steps"`
	Records          []StepRecord         `json:"records"`
	Compensations    []CompensationRecord `json:"compensations,omitempty"`
	Message          string               `json:"message"`
}

// CancelResult is the outcome of a post-hoc CancelOrder call.
type CancelResult struct {
	Success   bool     `json:"success"`
	OrderID   string   `json:"order_id"`
	RefundRef string   `json:"refund_ref,omitempty"`
	Steps     []string `json:"steps"`
	Message   string   `json:"message"`
}

// Receipt is what a completed order leaves behind for later cancellation.
type Receipt struct {
	OrderID        string          `json:"order_id"`
	Provider       string          `json:"provider"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	ReservationRef string          `json:"reservation_ref"`
	PaymentRef     string          `json:"payment_ref"`
	ShipmentRef    string          `json:"shipment_ref"`
	CreatedAt      time.Time       `json:"created_at"`
	RefundRef      string          `json:"refund_ref,omitempty"`
	CancelledAt    *time.Time      `json:"cancelled_at,omitempty"`
}
