// Package storage provides persistence for order receipts and the payment ledger.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/goclaw/fulfillment/pkg/order"
	"github.com/shopspring/decimal"
)

// Storage defines the interface for persistent storage operations.
type Storage interface {
	// Receipt operations
	SaveReceipt(ctx context.Context, r *order.Receipt) error
	GetReceipt(ctx context.Context, orderID string) (*order.Receipt, error)
	ListReceipts(ctx context.Context, filter *ReceiptFilter) ([]*order.Receipt, int, error)

	// Ledger operations. SaveLedgerEntry is put-if-absent and returns
	// *DuplicateKeyError when an entry with the same key already exists.
	SaveLedgerEntry(ctx context.Context, e *LedgerEntry) error
	GetLedgerEntry(ctx context.Context, kind EntryKind, provider, ref string) (*LedgerEntry, error)

	// Lifecycle
	Close() error
}

// EntryKind classifies a ledger entry.
type EntryKind string

const (
	EntryAuthorization EntryKind = "authorization"
	EntryCapture       EntryKind = "capture"
	EntryPayment       EntryKind = "payment"
	EntryRefund        EntryKind = "refund"
)

// LedgerEntry records one money movement at a provider.
// Ref is the lookup key: the authorization ref for authorizations and
// captures, the payment ref for payments, or for refunds the transaction
// being refunded. ResultRef is what the provider
// returned for it.
type LedgerEntry struct {
	Kind      EntryKind       `json:"kind"`
	Provider  string          `json:"provider"`
	Ref       string          `json:"ref"`
	ResultRef string          `json:"result_ref"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	CreatedAt time.Time       `json:"created_at"`
}

// Key returns the storage key of the entry.
func (e *LedgerEntry) Key() string {
	return LedgerKey(e.Kind, e.Provider, e.Ref)
}

// LedgerKey builds the key "<kind>:<provider>:<ref>".
func LedgerKey(kind EntryKind, provider, ref string) string {
	return fmt.Sprintf("%s:%s:%s", kind, provider, ref)
}

// ReceiptFilter defines filtering options for listing receipts.
type ReceiptFilter struct {
	Provider string `json:"provider,omitempty"`
	Limit    int    `json:"limit"`
	Offset   int    `json:"offset"`
}

// Matches reports whether r passes the filter.
func (f *ReceiptFilter) Matches(r *order.Receipt) bool {
	if f == nil || f.Provider == "" {
		return true
	}
	return r.Provider == f.Provider
}

// Paginate applies offset and limit to a filtered slice.
func Paginate[T any](items []T, filter *ReceiptFilter) []T {
	if filter == nil || filter.Limit <= 0 {
		return items
	}
	start := filter.Offset
	end := filter.Offset + filter.Limit
	if start > len(items) {
		start = len(items)
	}
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// NotFoundError indicates that the requested entity was not found.
type NotFoundError struct {
	EntityType string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.EntityType, e.ID)
}

// DuplicateKeyError indicates that an entity with the given ID already exists.
type DuplicateKeyError struct {
	EntityType string
	ID         string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.EntityType, e.ID)
}

// StorageUnavailableError indicates that the storage backend is unavailable.
type StorageUnavailableError struct {
	Cause error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Cause)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Cause }

// SerializationError indicates a failure in data serialization/deserialization.
type SerializationError struct {
	Operation string
	Cause     error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error during %s: %v", e.Operation, e.Cause)
}

func (e *SerializationError) Unwrap() error { return e.Cause }
