package signal

import (
	"context"
	"fmt"
	"sync"
)

// LocalBus is an in-memory Signal Bus implementation using Go channels.
type LocalBus struct {
	mu          sync.RWMutex
	subscribers map[string]chan *Signal
	bufferSize  int
	closed      bool
}

// NewLocalBus creates a new in-memory Signal Bus.
func NewLocalBus(bufferSize int) *LocalBus {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &LocalBus{
		subscribers: make(map[string]chan *Signal),
		bufferSize:  bufferSize,
	}
}

// Publish sends a signal to the target order subscriber channel.
func (b *LocalBus) Publish(_ context.Context, sig *Signal) error {
	if sig == nil {
		metricsRecorder().RecordSignalFailed("local", "unknown", "nil_signal")
		return fmt.Errorf("signal cannot be nil")
	}
	if sig.OrderID == "" {
		metricsRecorder().RecordSignalFailed("local", string(sig.Type), "empty_order_id")
		return fmt.Errorf("signal order_id cannot be empty")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		metricsRecorder().RecordSignalFailed("local", string(sig.Type), "bus_closed")
		return fmt.Errorf("signal bus is closed")
	}

	ch, ok := b.subscribers[sig.OrderID]
	if !ok {
		metricsRecorder().RecordSignalFailed("local", string(sig.Type), "no_subscriber")
		return nil // no subscriber, silently drop
	}
	metricsRecorder().RecordSignalSent("local", string(sig.Type))

	// Non-blocking send; drop oldest if buffer full.
	select {
	case ch <- sig:
		metricsRecorder().RecordSignalReceived("local", string(sig.Type))
	default:
		metricsRecorder().RecordSignalFailed("local", string(sig.Type), "buffer_full_drop")
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- sig:
			metricsRecorder().RecordSignalReceived("local", string(sig.Type))
		default:
			metricsRecorder().RecordSignalFailed("local", string(sig.Type), "buffer_still_full")
		}
	}

	return nil
}

// Subscribe creates a buffered channel for receiving signals for the given order.
func (b *LocalBus) Subscribe(_ context.Context, orderID string) (<-chan *Signal, error) {
	if orderID == "" {
		return nil, fmt.Errorf("order_id cannot be empty")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("signal bus is closed")
	}

	if _, exists := b.subscribers[orderID]; exists {
		return nil, fmt.Errorf("order %s already subscribed", orderID)
	}

	ch := make(chan *Signal, b.bufferSize)
	b.subscribers[orderID] = ch
	return ch, nil
}

// Unsubscribe removes the subscription and closes the channel.
func (b *LocalBus) Unsubscribe(orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[orderID]
	if !ok {
		return nil
	}

	close(ch)
	delete(b.subscribers, orderID)
	return nil
}

// Close shuts down the bus and closes all subscriber channels.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	for orderID, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, orderID)
	}
	return nil
}

// Healthy returns true if the bus is not closed.
func (b *LocalBus) Healthy() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}
