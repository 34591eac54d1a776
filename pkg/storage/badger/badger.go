// Package badger provides a Badger-based implementation of the storage interface.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goclaw/fulfillment/pkg/order"
	"github.com/goclaw/fulfillment/pkg/storage"
)

// Config holds configuration for BadgerStorage.
type Config struct {
	Path              string
	SyncWrites        bool
	ValueLogFileSize  int64
	NumVersionsToKeep int
}

// maxConflictRetries bounds retries of a put-if-absent transaction that lost
// a write conflict.
const maxConflictRetries = 3

// BadgerStorage implements the Storage interface using Badger.
type BadgerStorage struct {
	db     *badger.DB
	config *Config
}

// NewBadgerStorage creates a new Badger storage instance.
func NewBadgerStorage(config *Config) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(config.Path)
	opts.SyncWrites = config.SyncWrites
	if config.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = config.ValueLogFileSize
	}
	if config.NumVersionsToKeep > 0 {
		opts.NumVersionsToKeep = config.NumVersionsToKeep
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &storage.StorageUnavailableError{Cause: err}
	}

	return &BadgerStorage{
		db:     db,
		config: config,
	}, nil
}

// Key generation functions
func receiptKey(id string) []byte {
	return []byte(fmt.Sprintf("receipt:%s", id))
}

func receiptIndexCreatedKey(timestamp time.Time, id string) []byte {
	return []byte(fmt.Sprintf("receipt:index:created:%020d:%s", timestamp.UnixNano(), id))
}

func ledgerKey(kind storage.EntryKind, provider, ref string) []byte {
	return []byte("ledger:" + storage.LedgerKey(kind, provider, ref))
}

// Serialization helpers
func serialize(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &storage.SerializationError{
			Operation: "marshal",
			Cause:     err,
		}
	}
	return data, nil
}

func deserialize(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &storage.SerializationError{
			Operation: "unmarshal",
			Cause:     err,
		}
	}
	return nil
}

// SaveReceipt stores or replaces a receipt and maintains the creation index.
func (b *BadgerStorage) SaveReceipt(ctx context.Context, r *order.Receipt) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	data, err := serialize(r)
	if err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		if prev, err := b.getReceiptInTxn(txn, r.OrderID); err == nil && !prev.CreatedAt.Equal(r.CreatedAt) {
			if err := txn.Delete(receiptIndexCreatedKey(prev.CreatedAt, prev.OrderID)); err != nil {
				return err
			}
		}

		if err := txn.Set(receiptKey(r.OrderID), data); err != nil {
			return err
		}
		return txn.Set(receiptIndexCreatedKey(r.CreatedAt, r.OrderID), []byte{})
	})
}

// GetReceipt retrieves a receipt by order id.
func (b *BadgerStorage) GetReceipt(ctx context.Context, orderID string) (*order.Receipt, error) {
	var r *order.Receipt
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		r, err = b.getReceiptInTxn(txn, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListReceipts walks the creation index so results come back oldest first.
func (b *BadgerStorage) ListReceipts(ctx context.Context, filter *storage.ReceiptFilter) ([]*order.Receipt, int, error) {
	var receipts []*order.Receipt

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("receipt:index:created:")
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			// receipt:index:created:{nanos}:{id}
			parts := strings.SplitN(string(it.Item().Key()), ":", 5)
			if len(parts) < 5 {
				continue
			}
			r, err := b.getReceiptInTxn(txn, parts[4])
			if err != nil {
				continue
			}
			if filter.Matches(r) {
				receipts = append(receipts, r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	return storage.Paginate(receipts, filter), len(receipts), nil
}

func (b *BadgerStorage) getReceiptInTxn(txn *badger.Txn, id string) (*order.Receipt, error) {
	var r order.Receipt

	item, err := txn.Get(receiptKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, &storage.NotFoundError{
				EntityType: "receipt",
				ID:         id,
			}
		}
		return nil, err
	}

	if err := item.Value(func(val []byte) error {
		return deserialize(val, &r)
	}); err != nil {
		return nil, err
	}
	return &r, nil
}

// SaveLedgerEntry writes e only when its key is absent. Conflicting
// transactions are retried so the loser observes the winner's entry.
func (b *BadgerStorage) SaveLedgerEntry(ctx context.Context, e *storage.LedgerEntry) error {
	copied := *e
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}
	data, err := serialize(&copied)
	if err != nil {
		return err
	}
	key := ledgerKey(e.Kind, e.Provider, e.Ref)

	for attempt := 0; ; attempt++ {
		err = b.db.Update(func(txn *badger.Txn) error {
			_, err := txn.Get(key)
			switch {
			case err == nil:
				return &storage.DuplicateKeyError{EntityType: "ledger entry", ID: e.Key()}
			case !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}
			return txn.Set(key, data)
		})
		if errors.Is(err, badger.ErrConflict) && attempt < maxConflictRetries {
			continue
		}
		return err
	}
}

// GetLedgerEntry retrieves a ledger entry.
func (b *BadgerStorage) GetLedgerEntry(ctx context.Context, kind storage.EntryKind, provider, ref string) (*storage.LedgerEntry, error) {
	var e storage.LedgerEntry

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(ledgerKey(kind, provider, ref))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return &storage.NotFoundError{
					EntityType: "ledger entry",
					ID:         storage.LedgerKey(kind, provider, ref),
				}
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return deserialize(val, &e)
		})
	})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Close closes the Badger database.
func (b *BadgerStorage) Close() error {
	// GC failure is not fatal on close.
	_ = b.db.RunValueLogGC(0.5)

	return b.db.Close()
}
