// Package memory provides an in-memory implementation of the storage interface.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goclaw/fulfillment/pkg/order"
	"github.com/goclaw/fulfillment/pkg/storage"
)

// MemoryStorage implements the Storage interface using in-memory maps.
type MemoryStorage struct {
	mu       sync.RWMutex
	receipts map[string]*order.Receipt
	ledger   map[string]*storage.LedgerEntry
}

// NewMemoryStorage creates a new in-memory storage instance.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		receipts: make(map[string]*order.Receipt),
		ledger:   make(map[string]*storage.LedgerEntry),
	}
}

// SaveReceipt stores or replaces a receipt.
func (m *MemoryStorage) SaveReceipt(ctx context.Context, r *order.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	m.receipts[r.OrderID] = copyReceipt(r)
	return nil
}

// GetReceipt retrieves a receipt by order id.
func (m *MemoryStorage) GetReceipt(ctx context.Context, orderID string) (*order.Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, exists := m.receipts[orderID]
	if !exists {
		return nil, &storage.NotFoundError{EntityType: "receipt", ID: orderID}
	}
	return copyReceipt(r), nil
}

// ListReceipts lists receipts oldest first.
func (m *MemoryStorage) ListReceipts(ctx context.Context, filter *storage.ReceiptFilter) ([]*order.Receipt, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var filtered []*order.Receipt
	for _, r := range m.receipts {
		if filter.Matches(r) {
			filtered = append(filtered, copyReceipt(r))
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].CreatedAt.Equal(filtered[j].CreatedAt) {
			return filtered[i].OrderID < filtered[j].OrderID
		}
		return filtered[i].CreatedAt.Before(filtered[j].CreatedAt)
	})

	return storage.Paginate(filtered, filter), len(filtered), nil
}

// SaveLedgerEntry stores e unless an entry with the same key exists.
func (m *MemoryStorage) SaveLedgerEntry(ctx context.Context, e *storage.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := e.Key()
	if _, exists := m.ledger[key]; exists {
		return &storage.DuplicateKeyError{EntityType: "ledger entry", ID: key}
	}
	copied := *e
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}
	m.ledger[key] = &copied
	return nil
}

// GetLedgerEntry retrieves a ledger entry.
func (m *MemoryStorage) GetLedgerEntry(ctx context.Context, kind storage.EntryKind, provider, ref string) (*storage.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := storage.LedgerKey(kind, provider, ref)
	e, exists := m.ledger[key]
	if !exists {
		return nil, &storage.NotFoundError{EntityType: "ledger entry", ID: key}
	}
	copied := *e
	return &copied, nil
}

// Close is a no-op for in-memory storage.
func (m *MemoryStorage) Close() error {
	return nil
}

func copyReceipt(r *order.Receipt) *order.Receipt {
	copied := *r
	if r.CancelledAt != nil {
		at := *r.CancelledAt
		copied.CancelledAt = &at
	}
	return &copied
}
