package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goclaw/fulfillment/pkg/order"
	"github.com/goclaw/fulfillment/pkg/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tokens with these prefixes make the simulated processors fail.
const (
	TokenDeclinePrefix     = "tok_decline"
	TokenUnavailablePrefix = "tok_unavailable"
)

// LatencyFunc returns the simulated duration of one backend call.
type LatencyFunc func() time.Duration

// FixedLatency returns a LatencyFunc that always yields d.
func FixedLatency(d time.Duration) LatencyFunc {
	return func() time.Duration { return d }
}

// profile describes what differs between the simulated providers.
type profile struct {
	id          string
	displayName string
	metadata    func(token string) map[string]string
}

// simBackend is shared by the three capabilities of one simulated family.
type simBackend struct {
	profile
	ledger  storage.Storage
	secret  string
	latency LatencyFunc
	now     func() time.Time
}

func newSimulated(p profile) Constructor {
	return func(cfg BackendConfig) (Parts, error) {
		if cfg.Ledger == nil {
			return Parts{}, fmt.Errorf("provider %q: ledger is required", p.id)
		}
		b := &simBackend{
			profile: p,
			ledger:  cfg.Ledger,
			secret:  cfg.WebhookSecret,
			latency: cfg.Latency,
			now:     time.Now,
		}
		return Parts{
			DisplayName: p.displayName,
			Processor:   &simProcessor{b},
			Refunds:     &simRefunds{b},
			Webhooks:    &simWebhooks{b},
		}, nil
	}
}

// roundTrip waits for the simulated latency or until ctx is done.
func (b *simBackend) roundTrip(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &order.PaymentProviderUnavailableError{Provider: b.id, Cause: err}
	}
	if b.latency == nil {
		return nil
	}
	d := b.latency()
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return &order.PaymentProviderUnavailableError{Provider: b.id, Cause: ctx.Err()}
	case <-timer.C:
		return nil
	}
}

func (b *simBackend) newRef(kind string) string {
	return b.id + "_" + kind + "_" + uuid.NewString()
}

func (b *simBackend) ledgerError(err error) error {
	var unavailable *storage.StorageUnavailableError
	if errors.As(err, &unavailable) {
		return &order.PaymentProviderUnavailableError{Provider: b.id, Cause: err}
	}
	return err
}

type simProcessor struct{ *simBackend }

func (p *simProcessor) Provider() string { return p.id }

// ProcessPayment authorizes amount against token.
func (p *simProcessor) ProcessPayment(ctx context.Context, amount decimal.Decimal, currency, token string) (*Authorization, error) {
	if !amount.IsPositive() {
		return nil, order.NewValidationError("payment amount must be positive, got %s", amount)
	}
	if err := p.roundTrip(ctx); err != nil {
		return nil, err
	}

	switch {
	case strings.HasPrefix(token, TokenDeclinePrefix):
		return nil, &order.PaymentDeclinedError{Provider: p.id, Reason: "card declined"}
	case strings.HasPrefix(token, TokenUnavailablePrefix):
		return nil, &order.PaymentProviderUnavailableError{Provider: p.id, Cause: errors.New("gateway timeout")}
	}

	auth := &Authorization{
		Ref:       p.newRef("auth"),
		Provider:  p.id,
		Amount:    amount,
		Currency:  currency,
		Succeeded: true,
		Metadata:  p.metadata(token),
		CreatedAt: p.now(),
	}
	if err := p.ledger.SaveLedgerEntry(ctx, &storage.LedgerEntry{
		Kind:      storage.EntryAuthorization,
		Provider:  p.id,
		Ref:       auth.Ref,
		ResultRef: auth.Ref,
		Amount:    amount,
		Currency:  currency,
		CreatedAt: auth.CreatedAt,
	}); err != nil {
		return nil, p.ledgerError(err)
	}
	return auth, nil
}

// Capture settles an authorization. Capturing the same authorization twice
// returns the first capture.
func (p *simProcessor) Capture(ctx context.Context, authorizationRef string, amount decimal.Decimal) (*Capture, error) {
	auth, err := p.ledger.GetLedgerEntry(ctx, storage.EntryAuthorization, p.id, authorizationRef)
	if err != nil {
		var nf *storage.NotFoundError
		if errors.As(err, &nf) {
			return nil, order.NewValidationError("unknown %s authorization %q", p.id, authorizationRef)
		}
		return nil, p.ledgerError(err)
	}
	if amount.GreaterThan(auth.Amount) {
		return nil, order.NewValidationError("capture amount %s exceeds authorized %s", amount, auth.Amount)
	}
	if err := p.roundTrip(ctx); err != nil {
		return nil, err
	}

	capture := &Capture{
		Ref:              p.newRef("pay"),
		AuthorizationRef: authorizationRef,
		Provider:         p.id,
		Amount:           amount,
		CreatedAt:        p.now(),
	}
	err = p.ledger.SaveLedgerEntry(ctx, &storage.LedgerEntry{
		Kind:      storage.EntryCapture,
		Provider:  p.id,
		Ref:       authorizationRef,
		ResultRef: capture.Ref,
		Amount:    amount,
		Currency:  auth.Currency,
		CreatedAt: capture.CreatedAt,
	})
	var dup *storage.DuplicateKeyError
	if errors.As(err, &dup) {
		prev, getErr := p.ledger.GetLedgerEntry(ctx, storage.EntryCapture, p.id, authorizationRef)
		if getErr != nil {
			return nil, p.ledgerError(getErr)
		}
		return &Capture{
			Ref:              prev.ResultRef,
			AuthorizationRef: authorizationRef,
			Provider:         p.id,
			Amount:           prev.Amount,
			CreatedAt:        prev.CreatedAt,
		}, nil
	}
	if err != nil {
		return nil, p.ledgerError(err)
	}

	if err := p.ledger.SaveLedgerEntry(ctx, &storage.LedgerEntry{
		Kind:      storage.EntryPayment,
		Provider:  p.id,
		Ref:       capture.Ref,
		ResultRef: authorizationRef,
		Amount:    amount,
		Currency:  auth.Currency,
		CreatedAt: capture.CreatedAt,
	}); err != nil {
		return nil, p.ledgerError(err)
	}
	return capture, nil
}

type simRefunds struct{ *simBackend }

func (r *simRefunds) Provider() string { return r.id }

// Refund returns money for a captured payment. A repeat with the same
// amount returns the original refund; a different amount is rejected.
func (r *simRefunds) Refund(ctx context.Context, transactionRef string, amount decimal.Decimal) (*Refund, error) {
	if !amount.IsPositive() {
		return nil, order.NewValidationError("refund amount must be positive, got %s", amount)
	}

	if prev, err := r.ledger.GetLedgerEntry(ctx, storage.EntryRefund, r.id, transactionRef); err == nil {
		return r.replay(prev, transactionRef, amount)
	} else if !isNotFound(err) {
		return nil, r.ledgerError(err)
	}

	payment, err := r.ledger.GetLedgerEntry(ctx, storage.EntryPayment, r.id, transactionRef)
	if err != nil {
		if isNotFound(err) {
			return nil, order.NewValidationError("unknown %s transaction %q", r.id, transactionRef)
		}
		return nil, r.ledgerError(err)
	}
	if amount.GreaterThan(payment.Amount) {
		return nil, order.NewValidationError("refund amount %s exceeds captured %s", amount, payment.Amount)
	}
	if err := r.roundTrip(ctx); err != nil {
		return nil, err
	}

	refund := &Refund{
		Ref:            r.newRef("refund"),
		TransactionRef: transactionRef,
		Provider:       r.id,
		Amount:         amount,
		Succeeded:      true,
		CreatedAt:      r.now(),
	}
	err = r.ledger.SaveLedgerEntry(ctx, &storage.LedgerEntry{
		Kind:      storage.EntryRefund,
		Provider:  r.id,
		Ref:       transactionRef,
		ResultRef: refund.Ref,
		Amount:    amount,
		Currency:  payment.Currency,
		CreatedAt: refund.CreatedAt,
	})
	var dup *storage.DuplicateKeyError
	if errors.As(err, &dup) {
		prev, getErr := r.ledger.GetLedgerEntry(ctx, storage.EntryRefund, r.id, transactionRef)
		if getErr != nil {
			return nil, r.ledgerError(getErr)
		}
		return r.replay(prev, transactionRef, amount)
	}
	if err != nil {
		return nil, r.ledgerError(err)
	}
	return refund, nil
}

func (r *simRefunds) replay(prev *storage.LedgerEntry, transactionRef string, amount decimal.Decimal) (*Refund, error) {
	if !prev.Amount.Equal(amount) {
		return nil, order.NewValidationError(
			"transaction %q already refunded %s; refusing a second refund of %s", transactionRef, prev.Amount, amount)
	}
	return &Refund{
		Ref:            prev.ResultRef,
		TransactionRef: transactionRef,
		Provider:       r.id,
		Amount:         prev.Amount,
		Succeeded:      true,
		Replayed:       true,
		CreatedAt:      prev.CreatedAt,
	}, nil
}

type simWebhooks struct{ *simBackend }

func (w *simWebhooks) Provider() string { return w.id }

// ValidateWebhook checks the provider prefix and, when a secret is
// configured, the HMAC of the payload.
func (w *simWebhooks) ValidateWebhook(signature string, payload []byte) bool {
	return VerifyWebhookSignature(w.id, w.secret, signature, payload)
}

func isNotFound(err error) bool {
	var nf *storage.NotFoundError
	return errors.As(err, &nf)
}
