// Package events fans order saga events out to in-process subscribers such
// as the websocket stream.
package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goclaw/fulfillment/pkg/eventbus"
	"github.com/goclaw/fulfillment/pkg/saga"
)

// Event is the canonical event payload broadcast to websocket subscribers.
type Event struct {
	Type      string    `json:"type"`
	OrderID   string    `json:"order_id,omitempty"`
	NodeID    string    `json:"node_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Broadcaster broadcasts events to in-process subscribers.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	dropped     atomic.Int64
}

// NewBroadcaster creates a broadcaster instance.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe subscribes to events with a buffered channel.
func (b *Broadcaster) Subscribe(buffer int) chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; !ok {
		return
	}
	delete(b.subscribers, ch)
	close(ch)
}

// Broadcast broadcasts a generic event to all subscribers. Slow subscribers
// miss events instead of blocking the saga that produced them.
func (b *Broadcaster) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (b *Broadcaster) Dropped() int64 {
	return b.dropped.Load()
}

// OnSagaEvent implements saga.Observer for events of this process.
func (b *Broadcaster) OnSagaEvent(_ context.Context, event saga.Event) {
	b.Broadcast(Event{
		Type:      string(event.Type),
		OrderID:   event.SagaID,
		Timestamp: event.Timestamp,
		Payload:   event,
	})
}

// OnEnvelope forwards an order event received from the event bus, so the
// stream also carries events of other nodes.
func (b *Broadcaster) OnEnvelope(envelope eventbus.Envelope) {
	b.Broadcast(Event{
		Type:      envelope.EventType,
		OrderID:   envelope.OrderID,
		NodeID:    envelope.NodeID,
		Timestamp: envelope.Timestamp,
		Payload:   envelope.Payload,
	})
}

// Close closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, ch)
	}
}
