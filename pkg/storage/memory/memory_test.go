package memory

import (
	"context"
	"testing"
	"time"

	"github.com/goclaw/fulfillment/pkg/order"
	"github.com/goclaw/fulfillment/pkg/storage"
)

// TestMemoryStorageSuite runs the full storage test suite against MemoryStorage.
func TestMemoryStorageSuite(t *testing.T) {
	suite := &storage.StorageTestSuite{
		NewStorage: func(t *testing.T) storage.Storage {
			return NewMemoryStorage()
		},
	}

	suite.RunAllTests(t)
}

func TestMemoryStorage_ReturnsCopies(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	cancelled := time.Now()
	r := &order.Receipt{OrderID: "ORD-1", Provider: "stripe", CancelledAt: &cancelled}
	if err := store.SaveReceipt(ctx, r); err != nil {
		t.Fatalf("SaveReceipt failed: %v", err)
	}

	r.Provider = "paypal"
	got, err := store.GetReceipt(ctx, "ORD-1")
	if err != nil {
		t.Fatalf("GetReceipt failed: %v", err)
	}
	if got.Provider != "stripe" {
		t.Errorf("stored receipt was mutated through caller pointer: %s", got.Provider)
	}

	got.CancelledAt = nil
	again, _ := store.GetReceipt(ctx, "ORD-1")
	if again.CancelledAt == nil {
		t.Error("stored receipt was mutated through returned pointer")
	}
}
