// Package redis provides a Redis-backed implementation of the storage interface.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/goclaw/fulfillment/pkg/order"
	"github.com/goclaw/fulfillment/pkg/storage"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces every key written by RedisStorage.
const DefaultKeyPrefix = "fulfillment:store:"

// RedisStorage implements the Storage interface on top of Redis strings and a
// sorted set that indexes receipts by creation time.
type RedisStorage struct {
	client    redis.UniversalClient
	keyPrefix string
	ledgerTTL time.Duration
}

// Option configures a RedisStorage.
type Option func(*RedisStorage)

// WithLedgerTTL expires ledger entries after ttl. Zero keeps them forever.
func WithLedgerTTL(ttl time.Duration) Option {
	return func(s *RedisStorage) { s.ledgerTTL = ttl }
}

// NewRedisStorage creates a Redis storage and checks connectivity.
func NewRedisStorage(ctx context.Context, client redis.UniversalClient, keyPrefix string, opts ...Option) (*RedisStorage, error) {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, &storage.StorageUnavailableError{Cause: err}
	}
	s := &RedisStorage{client: client, keyPrefix: keyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *RedisStorage) receiptKey(id string) string {
	return s.keyPrefix + "receipt:" + id
}

func (s *RedisStorage) receiptIndexKey() string {
	return s.keyPrefix + "receipt:index:created"
}

func (s *RedisStorage) ledgerKey(kind storage.EntryKind, provider, ref string) string {
	return s.keyPrefix + "ledger:" + storage.LedgerKey(kind, provider, ref)
}

// SaveReceipt stores or replaces a receipt and its index entry atomically.
func (s *RedisStorage) SaveReceipt(ctx context.Context, r *order.Receipt) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	data, err := json.Marshal(r)
	if err != nil {
		return &storage.SerializationError{Operation: "marshal", Cause: err}
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.receiptKey(r.OrderID), data, 0)
		pipe.ZAdd(ctx, s.receiptIndexKey(), redis.Z{
			Score:  float64(r.CreatedAt.UnixMicro()),
			Member: r.OrderID,
		})
		return nil
	})
	if err != nil {
		return &storage.StorageUnavailableError{Cause: err}
	}
	return nil
}

// GetReceipt retrieves a receipt by order id.
func (s *RedisStorage) GetReceipt(ctx context.Context, orderID string) (*order.Receipt, error) {
	data, err := s.client.Get(ctx, s.receiptKey(orderID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, &storage.NotFoundError{EntityType: "receipt", ID: orderID}
		}
		return nil, &storage.StorageUnavailableError{Cause: err}
	}

	var r order.Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, &storage.SerializationError{Operation: "unmarshal", Cause: err}
	}
	return &r, nil
}

// ListReceipts lists receipts oldest first.
func (s *RedisStorage) ListReceipts(ctx context.Context, filter *storage.ReceiptFilter) ([]*order.Receipt, int, error) {
	ids, err := s.client.ZRange(ctx, s.receiptIndexKey(), 0, -1).Result()
	if err != nil {
		return nil, 0, &storage.StorageUnavailableError{Cause: err}
	}
	if len(ids) == 0 {
		return nil, 0, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.receiptKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, 0, &storage.StorageUnavailableError{Cause: err}
	}

	var receipts []*order.Receipt
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var r order.Receipt
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			continue
		}
		if filter.Matches(&r) {
			receipts = append(receipts, &r)
		}
	}

	return storage.Paginate(receipts, filter), len(receipts), nil
}

// SaveLedgerEntry writes e with SETNX so concurrent writers cannot both win.
func (s *RedisStorage) SaveLedgerEntry(ctx context.Context, e *storage.LedgerEntry) error {
	copied := *e
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}
	data, err := json.Marshal(&copied)
	if err != nil {
		return &storage.SerializationError{Operation: "marshal", Cause: err}
	}

	ok, err := s.client.SetNX(ctx, s.ledgerKey(e.Kind, e.Provider, e.Ref), data, s.ledgerTTL).Result()
	if err != nil {
		return &storage.StorageUnavailableError{Cause: err}
	}
	if !ok {
		return &storage.DuplicateKeyError{EntityType: "ledger entry", ID: e.Key()}
	}
	return nil
}

// GetLedgerEntry retrieves a ledger entry.
func (s *RedisStorage) GetLedgerEntry(ctx context.Context, kind storage.EntryKind, provider, ref string) (*storage.LedgerEntry, error) {
	data, err := s.client.Get(ctx, s.ledgerKey(kind, provider, ref)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, &storage.NotFoundError{
				EntityType: "ledger entry",
				ID:         storage.LedgerKey(kind, provider, ref),
			}
		}
		return nil, &storage.StorageUnavailableError{Cause: err}
	}

	var e storage.LedgerEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, &storage.SerializationError{Operation: "unmarshal", Cause: err}
	}
	return &e, nil
}

// Close releases the client. The caller that created the client owns it, so
// this is a no-op.
func (s *RedisStorage) Close() error {
	return nil
}
