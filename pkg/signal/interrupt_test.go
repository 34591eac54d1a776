package signal

import (
	"context"
	"testing"
	"time"
)

func TestSendInterrupt_RoundTrip(t *testing.T) {
	bus := NewLocalBus(4)
	defer bus.Close()

	ch, err := bus.Subscribe(context.Background(), "ORD-7")
	if err != nil {
		t.Fatal(err)
	}

	if err := SendInterrupt(context.Background(), bus, "ORD-7", "fraud check", "ops"); err != nil {
		t.Fatalf("SendInterrupt failed: %v", err)
	}

	sig := <-ch
	p, err := ParseInterruptPayload(sig)
	if err != nil {
		t.Fatalf("ParseInterruptPayload failed: %v", err)
	}
	if p.Reason != "fraud check" || p.RequestedBy != "ops" {
		t.Errorf("unexpected payload %+v", p)
	}

	if err := SendInterrupt(context.Background(), bus, "", "x", ""); err == nil {
		t.Error("expected error for empty order id")
	}
}

func TestParseInterruptPayload_WrongType(t *testing.T) {
	if _, err := ParseInterruptPayload(&Signal{Type: "other"}); err == nil {
		t.Error("expected error for non-interrupt signal")
	}
}

func TestInterruptReasons(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewLocalBus(4)
	defer bus.Close()

	ch, err := bus.Subscribe(ctx, "ORD-8")
	if err != nil {
		t.Fatal(err)
	}
	reasons := InterruptReasons(ctx, ch)

	_ = bus.Publish(ctx, &Signal{Type: "other", OrderID: "ORD-8", SentAt: time.Now()})
	if err := SendInterrupt(ctx, bus, "ORD-8", "", ""); err != nil {
		t.Fatal(err)
	}

	select {
	case reason := <-reasons:
		if reason != "interrupted" {
			t.Errorf("expected default reason, got %q", reason)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for interrupt reason")
	}
}
