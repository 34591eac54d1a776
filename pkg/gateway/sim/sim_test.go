package sim

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goclaw/fulfillment/pkg/gateway"
	"github.com/goclaw/fulfillment/pkg/order"
	"github.com/shopspring/decimal"
)

var (
	_ gateway.Inventory = (*Inventory)(nil)
	_ gateway.Shipping  = (*Shipping)(nil)
	_ gateway.Notifier  = (*Notifier)(nil)
)

func TestInventoryReserveAndRelease(t *testing.T) {
	inv := NewInventory(map[string]int{"SKU-1": 5}, 0)
	ctx := context.Background()

	ok, err := inv.CheckStock(ctx, "SKU-1", 5)
	if err != nil || !ok {
		t.Fatalf("CheckStock() = %v, %v", ok, err)
	}

	ref, err := inv.Reserve(ctx, "SKU-1", 3)
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if got := inv.Available("SKU-1"); got != 2 {
		t.Fatalf("Available() = %d, want 2", got)
	}

	_, err = inv.Reserve(ctx, "SKU-1", 3)
	var ise *order.InsufficientStockError
	if !errors.As(err, &ise) {
		t.Fatalf("Reserve() error = %v, want InsufficientStockError", err)
	}
	if ise.Available != 2 {
		t.Fatalf("Available = %d", ise.Available)
	}

	for i := 0; i < 2; i++ {
		if err := inv.Release(ctx, ref); err != nil {
			t.Fatalf("Release() #%d error = %v", i+1, err)
		}
	}
	if got := inv.Available("SKU-1"); got != 5 {
		t.Fatalf("Available() after double release = %d, want 5", got)
	}
	if !inv.Released(ref) {
		t.Fatal("Released() = false")
	}

	if err := inv.Release(ctx, "RES-unknown"); !errors.Is(err, gateway.ErrUnknownReservation) {
		t.Fatalf("Release(unknown) error = %v", err)
	}
}

func TestInventoryInjectedFailures(t *testing.T) {
	inv := NewInventory(nil, 10)
	ctx := context.Background()
	ref, err := inv.Reserve(ctx, "any", 1)
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}

	outage := errors.New("connection refused")
	inv.SetReleaseError(outage)
	err = inv.Release(ctx, ref)
	var ue *gateway.UnavailableError
	if !errors.As(err, &ue) || !errors.Is(err, outage) {
		t.Fatalf("Release() error = %v, want UnavailableError wrapping outage", err)
	}

	inv.SetReleaseError(nil)
	if err := inv.Release(ctx, ref); err != nil {
		t.Fatalf("Release() after recovery error = %v", err)
	}
}

func TestShippingQuote(t *testing.T) {
	addr := order.Address{Street: "1 Main", City: "X", Zip: "1", Country: "US"}
	ctx := context.Background()

	tests := []struct {
		name string
		cfg  ShippingConfig
		addr order.Address
		want string
	}{
		{name: "flat standard", cfg: DefaultShippingConfig(), addr: addr, want: "15.99"},
		{
			name: "express",
			cfg:  ShippingConfig{BaseRate: decimal.RequireFromString("15.99"), Strategy: StrategyByName("express")},
			addr: addr,
			want: "31.98",
		},
		{
			name: "surcharge",
			cfg: ShippingConfig{
				BaseRate:   decimal.NewFromInt(10),
				Strategy:   StrategyOvernight,
				Surcharges: map[string]decimal.Decimal{"CA": decimal.RequireFromString("4.50")},
			},
			addr: order.Address{Country: "ca"},
			want: "34.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewShipping(tt.cfg).Quote(ctx, tt.addr)
			if err != nil {
				t.Fatalf("Quote() error = %v", err)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Fatalf("Quote() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestShippingUnavailableAndPickup(t *testing.T) {
	s := NewShipping(DefaultShippingConfig())
	fixed := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	ctx := context.Background()

	s.SetUnavailable("AQ", true)
	_, err := s.Quote(ctx, order.Address{Country: "AQ"})
	var sue *order.ShippingUnavailableError
	if !errors.As(err, &sue) {
		t.Fatalf("Quote() error = %v, want ShippingUnavailableError", err)
	}

	ref, err := s.CreateShipment(ctx, "ORD-1", order.Address{Country: "US"})
	if err != nil {
		t.Fatalf("CreateShipment() error = %v", err)
	}
	at, err := s.SchedulePickup(ctx, ref)
	if err != nil {
		t.Fatalf("SchedulePickup() error = %v", err)
	}
	if !at.Equal(fixed.Add(24 * time.Hour)) {
		t.Fatalf("SchedulePickup() = %v, want next day", at)
	}

	if _, err := s.SchedulePickup(ctx, "SHIP-unknown"); !errors.Is(err, gateway.ErrUnknownShipment) {
		t.Fatalf("SchedulePickup(unknown) error = %v", err)
	}
}

func TestNotifierThrottlesPerRecipient(t *testing.T) {
	n := NewNotifier(NotifierConfig{RatePerSecond: 0.001, Burst: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := n.Send(ctx, gateway.NotifyConfirmation, "a@example.com", nil); err != nil {
			t.Fatalf("Send() #%d error = %v", i+1, err)
		}
	}
	if err := n.Send(ctx, gateway.NotifyPayment, "a@example.com", nil); !errors.Is(err, gateway.ErrRateLimited) {
		t.Fatalf("Send() over burst error = %v, want ErrRateLimited", err)
	}
	if err := n.Send(ctx, gateway.NotifyPayment, "+15551234567", nil); err != nil {
		t.Fatalf("Send() other recipient error = %v", err)
	}

	sent := n.Sent()
	if len(sent) != 3 {
		t.Fatalf("len(Sent()) = %d, want 3", len(sent))
	}
	if sent[0].Channel != ChannelEmail || sent[2].Channel != ChannelSMS {
		t.Fatalf("channels = %s, %s", sent[0].Channel, sent[2].Channel)
	}
}

func TestNotifierUnlimitedAndFailure(t *testing.T) {
	n := NewNotifier(NotifierConfig{})
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		if err := n.Send(ctx, gateway.NotifyShipment, "device-token", nil); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}

	n.SetFailure(errors.New("smtp down"))
	var ue *gateway.UnavailableError
	if err := n.Send(ctx, gateway.NotifyShipment, "device-token", nil); !errors.As(err, &ue) {
		t.Fatalf("Send() error = %v, want UnavailableError", err)
	}
}

func TestInventoryForgetsOldReservations(t *testing.T) {
	inv := NewInventory(nil, 100)
	inv.SetRetention(2)
	ctx := context.Background()

	refs := make([]string, 3)
	for i := range refs {
		ref, err := inv.Reserve(ctx, "SKU-1", 1)
		if err != nil {
			t.Fatalf("Reserve() #%d error = %v", i+1, err)
		}
		refs[i] = ref
	}

	inv.mu.Lock()
	tracked := len(inv.reservations)
	inv.mu.Unlock()
	if tracked != 2 {
		t.Fatalf("tracked reservations = %d, want 2", tracked)
	}
	if err := inv.Release(ctx, refs[0]); !errors.Is(err, gateway.ErrUnknownReservation) {
		t.Fatalf("Release(evicted) error = %v, want ErrUnknownReservation", err)
	}
	for _, ref := range refs[1:] {
		if err := inv.Release(ctx, ref); err != nil {
			t.Fatalf("Release(%s) error = %v", ref, err)
		}
		if err := inv.Release(ctx, ref); err != nil {
			t.Fatalf("second Release(%s) error = %v", ref, err)
		}
	}
	if got := inv.Available("SKU-1"); got != 99 {
		t.Fatalf("Available() = %d, want 99", got)
	}
}

func TestShippingForgetsOldShipments(t *testing.T) {
	s := NewShipping(DefaultShippingConfig())
	s.SetRetention(1)
	ctx := context.Background()
	addr := order.Address{Country: "US"}

	first, err := s.CreateShipment(ctx, "ORD-1", addr)
	if err != nil {
		t.Fatalf("CreateShipment() error = %v", err)
	}
	second, err := s.CreateShipment(ctx, "ORD-2", addr)
	if err != nil {
		t.Fatalf("CreateShipment() error = %v", err)
	}

	if _, err := s.SchedulePickup(ctx, first); !errors.Is(err, gateway.ErrUnknownShipment) {
		t.Fatalf("SchedulePickup(evicted) error = %v, want ErrUnknownShipment", err)
	}
	if _, err := s.SchedulePickup(ctx, second); err != nil {
		t.Fatalf("SchedulePickup() error = %v", err)
	}
}

func TestNotifierBoundsOutboxAndLimiters(t *testing.T) {
	n := NewNotifier(NotifierConfig{})
	n.SetRetention(3)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		recipient := fmt.Sprintf("user%d@example.com", i)
		if err := n.Send(ctx, gateway.NotifyConfirmation, recipient, nil); err != nil {
			t.Fatalf("Send() #%d error = %v", i+1, err)
		}
	}
	sent := n.Sent()
	if len(sent) != 3 {
		t.Fatalf("len(Sent()) = %d, want 3", len(sent))
	}
	if sent[2].Recipient != "user9@example.com" {
		t.Fatalf("newest recipient = %s, want user9@example.com", sent[2].Recipient)
	}
	if len(n.limiters) != 0 {
		t.Fatalf("unthrottled notifier kept %d limiters", len(n.limiters))
	}

	throttled := NewNotifier(NotifierConfig{RatePerSecond: 1000, Burst: 1})
	throttled.SetRetention(2)
	for i := 0; i < 6; i++ {
		recipient := fmt.Sprintf("+1555000%04d", i)
		if err := throttled.Send(ctx, gateway.NotifyPayment, recipient, nil); err != nil {
			t.Fatalf("Send() #%d error = %v", i+1, err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	throttled.mu.Lock()
	limiters := len(throttled.limiters)
	throttled.mu.Unlock()
	if limiters > 2 {
		t.Fatalf("limiters = %d, want at most 2", limiters)
	}
}
