package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goclaw/fulfillment/pkg/order"
	"github.com/shopspring/decimal"
)

// StorageTestSuite defines a test suite that can be run against any Storage implementation.
type StorageTestSuite struct {
	NewStorage func(t *testing.T) Storage
}

// RunAllTests runs all storage tests against the provided storage implementation.
func (s *StorageTestSuite) RunAllTests(t *testing.T) {
	t.Run("ReceiptRoundTrip", s.TestReceiptRoundTrip)
	t.Run("ReceiptOverwrite", s.TestReceiptOverwrite)
	t.Run("ListReceiptsWithFilter", s.TestListReceiptsWithFilter)
	t.Run("ListReceiptsWithPagination", s.TestListReceiptsWithPagination)
	t.Run("LedgerPutIfAbsent", s.TestLedgerPutIfAbsent)
	t.Run("ConcurrentLedgerWrites", s.TestConcurrentLedgerWrites)
	t.Run("NotFound", s.TestNotFound)
}

func sampleReceipt(id, provider string, created time.Time) *order.Receipt {
	return &order.Receipt{
		OrderID:        id,
		Provider:       provider,
		Amount:         decimal.RequireFromString("115.99"),
		Currency:       "USD",
		ReservationRef: "RES-" + id,
		PaymentRef:     provider + "_pay_" + id,
		ShipmentRef:    "SHP-" + id,
		CreatedAt:      created,
	}
}

// TestReceiptRoundTrip tests that a saved receipt reads back unchanged.
func (s *StorageTestSuite) TestReceiptRoundTrip(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()
	want := sampleReceipt("ORD-1", "stripe", time.Now().UTC().Truncate(time.Second))

	if err := store.SaveReceipt(ctx, want); err != nil {
		t.Fatalf("SaveReceipt failed: %v", err)
	}

	got, err := store.GetReceipt(ctx, "ORD-1")
	if err != nil {
		t.Fatalf("GetReceipt failed: %v", err)
	}
	if got.Provider != want.Provider || got.PaymentRef != want.PaymentRef || got.ReservationRef != want.ReservationRef {
		t.Errorf("receipt mismatch: got %+v, want %+v", got, want)
	}
	if !got.Amount.Equal(want.Amount) {
		t.Errorf("amount = %s, want %s", got.Amount, want.Amount)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
}

// TestReceiptOverwrite tests that saving again replaces the receipt.
func (s *StorageTestSuite) TestReceiptOverwrite(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()
	r := sampleReceipt("ORD-2", "paypal", time.Now())
	if err := store.SaveReceipt(ctx, r); err != nil {
		t.Fatalf("SaveReceipt failed: %v", err)
	}

	cancelled := time.Now().UTC().Truncate(time.Second)
	r.RefundRef = "paypal_refund_1"
	r.CancelledAt = &cancelled
	if err := store.SaveReceipt(ctx, r); err != nil {
		t.Fatalf("SaveReceipt (update) failed: %v", err)
	}

	got, err := store.GetReceipt(ctx, "ORD-2")
	if err != nil {
		t.Fatalf("GetReceipt failed: %v", err)
	}
	if got.RefundRef != "paypal_refund_1" || got.CancelledAt == nil {
		t.Errorf("update not persisted: %+v", got)
	}
}

// TestListReceiptsWithFilter tests listing by provider.
func (s *StorageTestSuite) TestListReceiptsWithFilter(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Now()
	providers := []string{"stripe", "paypal", "stripe", "square"}
	for i, p := range providers {
		r := sampleReceipt(fmt.Sprintf("ORD-F%d", i), p, base.Add(time.Duration(i)*time.Second))
		if err := store.SaveReceipt(ctx, r); err != nil {
			t.Fatalf("SaveReceipt failed: %v", err)
		}
	}

	receipts, total, err := store.ListReceipts(ctx, &ReceiptFilter{Provider: "stripe", Limit: 10})
	if err != nil {
		t.Fatalf("ListReceipts failed: %v", err)
	}
	if total != 2 {
		t.Errorf("expected total 2, got %d", total)
	}
	for _, r := range receipts {
		if r.Provider != "stripe" {
			t.Errorf("unexpected provider %s in filtered results", r.Provider)
		}
	}
}

// TestListReceiptsWithPagination tests offset/limit and ordering.
func (s *StorageTestSuite) TestListReceiptsWithPagination(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Now()
	for i := 0; i < 10; i++ {
		r := sampleReceipt(fmt.Sprintf("ORD-P%02d", i), "stripe", base.Add(time.Duration(i)*time.Second))
		if err := store.SaveReceipt(ctx, r); err != nil {
			t.Fatalf("SaveReceipt failed: %v", err)
		}
	}

	page, total, err := store.ListReceipts(ctx, &ReceiptFilter{Limit: 3, Offset: 3})
	if err != nil {
		t.Fatalf("ListReceipts failed: %v", err)
	}
	if total != 10 {
		t.Errorf("expected total 10, got %d", total)
	}
	if len(page) != 3 {
		t.Fatalf("expected 3 receipts, got %d", len(page))
	}
	if page[0].OrderID != "ORD-P03" {
		t.Errorf("first receipt on page 2 = %s, want ORD-P03", page[0].OrderID)
	}
}

// TestLedgerPutIfAbsent tests that a second write under the same key is rejected.
func (s *StorageTestSuite) TestLedgerPutIfAbsent(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()
	entry := &LedgerEntry{
		Kind:      EntryRefund,
		Provider:  "stripe",
		Ref:       "stripe_pay_1",
		ResultRef: "stripe_refund_1",
		Amount:    decimal.RequireFromString("10.50"),
		Currency:  "USD",
	}
	if err := store.SaveLedgerEntry(ctx, entry); err != nil {
		t.Fatalf("SaveLedgerEntry failed: %v", err)
	}

	second := *entry
	second.ResultRef = "stripe_refund_2"
	err := store.SaveLedgerEntry(ctx, &second)
	var dup *DuplicateKeyError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateKeyError, got %v", err)
	}

	got, err := store.GetLedgerEntry(ctx, EntryRefund, "stripe", "stripe_pay_1")
	if err != nil {
		t.Fatalf("GetLedgerEntry failed: %v", err)
	}
	if got.ResultRef != "stripe_refund_1" {
		t.Errorf("result ref = %s, want stripe_refund_1", got.ResultRef)
	}
	if !got.Amount.Equal(entry.Amount) {
		t.Errorf("amount = %s, want %s", got.Amount, entry.Amount)
	}

	if _, err := store.GetLedgerEntry(ctx, EntryRefund, "paypal", "stripe_pay_1"); err == nil {
		t.Error("expected ledger entries to be scoped by provider")
	}
}

// TestConcurrentLedgerWrites tests that exactly one concurrent writer wins.
func (s *StorageTestSuite) TestConcurrentLedgerWrites(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()
	const writers = 10

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			err := store.SaveLedgerEntry(ctx, &LedgerEntry{
				Kind:      EntryCapture,
				Provider:  "square",
				Ref:       "square_auth_1",
				ResultRef: fmt.Sprintf("square_pay_%d", idx),
				Amount:    decimal.NewFromInt(1),
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly 1 successful write, got %d", wins)
	}
}

// TestNotFound tests not-found errors for both entity types.
func (s *StorageTestSuite) TestNotFound(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()
	var nf *NotFoundError

	if _, err := store.GetReceipt(ctx, "missing"); !errors.As(err, &nf) {
		t.Errorf("GetReceipt: expected NotFoundError, got %v", err)
	}
	if _, err := store.GetLedgerEntry(ctx, EntryCapture, "stripe", "missing"); !errors.As(err, &nf) {
		t.Errorf("GetLedgerEntry: expected NotFoundError, got %v", err)
	}
}
