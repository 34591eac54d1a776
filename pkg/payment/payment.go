// Package payment defines the provider capability contracts, the provider
// family bundle and the registry that produces families by provider id.
package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Authorization is the outcome of ProcessPayment.
type Authorization struct {
	Ref       string            `json:"authorization_ref"`
	Provider  string            `json:"provider"`
	Amount    decimal.Decimal   `json:"amount"`
	Currency  string            `json:"currency"`
	Succeeded bool              `json:"succeeded"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Capture is the outcome of capturing an authorization.
type Capture struct {
	Ref              string          `json:"payment_ref"`
	AuthorizationRef string          `json:"authorization_ref"`
	Provider         string          `json:"provider"`
	Amount           decimal.Decimal `json:"amount"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Refund is the outcome of a refund. Replayed is set when an earlier refund
// with the same transaction and amount was returned instead of a new one.
type Refund struct {
	Ref            string          `json:"refund_ref"`
	TransactionRef string          `json:"transaction_ref"`
	Provider       string          `json:"provider"`
	Amount         decimal.Decimal `json:"amount"`
	Succeeded      bool            `json:"succeeded"`
	Replayed       bool            `json:"replayed"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Processor authorizes and captures payments.
type Processor interface {
	Provider() string
	ProcessPayment(ctx context.Context, amount decimal.Decimal, currency, token string) (*Authorization, error)
	Capture(ctx context.Context, authorizationRef string, amount decimal.Decimal) (*Capture, error)
}

// RefundHandler refunds captured payments. Refund must be idempotent by
// (transactionRef, amount).
type RefundHandler interface {
	Provider() string
	Refund(ctx context.Context, transactionRef string, amount decimal.Decimal) (*Refund, error)
}

// WebhookValidator checks inbound webhook signatures. It has no side effects.
type WebhookValidator interface {
	Provider() string
	ValidateWebhook(signature string, payload []byte) bool
}

// Family is a provider descriptor: three capabilities that originate from the
// same provider. Families are only produced by Registry.CreateFamily.
type Family struct {
	provider    string
	displayName string
	processor   Processor
	refunds     RefundHandler
	webhooks    WebhookValidator
}

// Provider returns the provider id shared by all three capabilities.
func (f *Family) Provider() string { return f.provider }

// DisplayName returns the human readable provider name.
func (f *Family) DisplayName() string { return f.displayName }

// Processor returns the family's payment processor.
func (f *Family) Processor() Processor { return f.processor }

// RefundHandler returns the family's refund handler.
func (f *Family) RefundHandler() RefundHandler { return f.refunds }

// WebhookValidator returns the family's webhook validator.
func (f *Family) WebhookValidator() WebhookValidator { return f.webhooks }
