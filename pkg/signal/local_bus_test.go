package signal

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestLocalBus_PublishSubscribe(t *testing.T) {
	bus := NewLocalBus(16)
	defer bus.Close()

	ch, err := bus.Subscribe(context.Background(), "ORD-1")
	if err != nil {
		t.Fatal(err)
	}

	payload, _ := json.Marshal(InterruptPayload{Reason: "customer request"})
	err = bus.Publish(context.Background(), &Signal{
		Type:    SignalInterrupt,
		OrderID: "ORD-1",
		Payload: payload,
		SentAt:  time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case sig := <-ch:
		if sig.Type != SignalInterrupt {
			t.Errorf("expected interrupt signal, got %s", sig.Type)
		}
		if sig.OrderID != "ORD-1" {
			t.Errorf("expected ORD-1, got %s", sig.OrderID)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for signal")
	}
}

func TestLocalBus_Unsubscribe(t *testing.T) {
	bus := NewLocalBus(16)
	defer bus.Close()

	_, err := bus.Subscribe(context.Background(), "ORD-1")
	if err != nil {
		t.Fatal(err)
	}

	err = bus.Unsubscribe("ORD-1")
	if err != nil {
		t.Fatal(err)
	}

	// Publishing to a finished order should not error
	err = bus.Publish(context.Background(), &Signal{
		Type:    SignalInterrupt,
		OrderID: "ORD-1",
		SentAt:  time.Now(),
	})
	if err != nil {
		t.Errorf("expected no error publishing to unsubscribed order, got %v", err)
	}
}

func TestLocalBus_DuplicateSubscribe(t *testing.T) {
	bus := NewLocalBus(16)
	defer bus.Close()

	_, err := bus.Subscribe(context.Background(), "ORD-1")
	if err != nil {
		t.Fatal(err)
	}

	_, err = bus.Subscribe(context.Background(), "ORD-1")
	if err == nil {
		t.Error("expected error on duplicate subscribe")
	}
}

func TestLocalBus_Close(t *testing.T) {
	bus := NewLocalBus(16)

	ch, err := bus.Subscribe(context.Background(), "ORD-1")
	if err != nil {
		t.Fatal(err)
	}

	err = bus.Close()
	if err != nil {
		t.Fatal(err)
	}

	// Channel should be closed
	_, ok := <-ch
	if ok {
		t.Error("expected channel to be closed")
	}

	// Operations on closed bus should fail
	_, err = bus.Subscribe(context.Background(), "ORD-2")
	if err == nil {
		t.Error("expected error subscribing to closed bus")
	}

	err = bus.Publish(context.Background(), &Signal{OrderID: "ORD-1", SentAt: time.Now()})
	if err == nil {
		t.Error("expected error publishing to closed bus")
	}

	if bus.Healthy() {
		t.Error("expected closed bus to be unhealthy")
	}
}

func TestLocalBus_BufferOverflow(t *testing.T) {
	bus := NewLocalBus(2) // small buffer
	defer bus.Close()

	ch, err := bus.Subscribe(context.Background(), "ORD-1")
	if err != nil {
		t.Fatal(err)
	}

	// Send 3 signals to a buffer of 2, the oldest is dropped
	for i := 0; i < 3; i++ {
		payload, _ := json.Marshal(map[string]int{"seq": i})
		err := bus.Publish(context.Background(), &Signal{
			Type:    SignalInterrupt,
			OrderID: "ORD-1",
			Payload: payload,
			SentAt:  time.Now(),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	count := 0
	for {
		select {
		case <-ch:
			count++
		default:
			goto done
		}
	}
done:
	if count < 2 {
		t.Errorf("expected at least 2 signals in buffer, got %d", count)
	}
}

func TestLocalBus_NilSignal(t *testing.T) {
	bus := NewLocalBus(16)
	defer bus.Close()

	err := bus.Publish(context.Background(), nil)
	if err == nil {
		t.Error("expected error for nil signal")
	}
}

func TestLocalBus_EmptyOrderID(t *testing.T) {
	bus := NewLocalBus(16)
	defer bus.Close()

	err := bus.Publish(context.Background(), &Signal{OrderID: "", SentAt: time.Now()})
	if err == nil {
		t.Error("expected error for empty order_id")
	}

	_, err = bus.Subscribe(context.Background(), "")
	if err == nil {
		t.Error("expected error for empty order_id subscribe")
	}
}

func TestLocalBus_Healthy(t *testing.T) {
	bus := NewLocalBus(16)
	if !bus.Healthy() {
		t.Error("expected new bus to be healthy")
	}
	bus.Close()
	if bus.Healthy() {
		t.Error("expected closed bus to be unhealthy")
	}
}
