package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBus is a Redis Pub/Sub-backed Signal Bus implementation.
type RedisBus struct {
	client        redis.UniversalClient
	channelPrefix string
	bufferSize    int

	mu          sync.RWMutex
	subscribers map[string]*redisSubscription
	closed      bool
}

// redisSubscription is owned by its forwarder goroutine, which is the only
// writer of ch and closes it on exit.
type redisSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedisBus creates a new Redis-backed Signal Bus.
func NewRedisBus(client redis.UniversalClient, channelPrefix string, bufferSize int) *RedisBus {
	if channelPrefix == "" {
		channelPrefix = "fulfillment:signal:"
	}
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &RedisBus{
		client:        client,
		channelPrefix: channelPrefix,
		bufferSize:    bufferSize,
		subscribers:   make(map[string]*redisSubscription),
	}
}

// Publish sends a signal via Redis Pub/Sub.
func (b *RedisBus) Publish(ctx context.Context, sig *Signal) error {
	if sig == nil {
		metricsRecorder().RecordSignalFailed("redis", "unknown", "nil_signal")
		return fmt.Errorf("signal cannot be nil")
	}
	if sig.OrderID == "" {
		metricsRecorder().RecordSignalFailed("redis", string(sig.Type), "empty_order_id")
		return fmt.Errorf("signal order_id cannot be empty")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		metricsRecorder().RecordSignalFailed("redis", string(sig.Type), "bus_closed")
		return fmt.Errorf("signal bus is closed")
	}
	b.mu.RUnlock()

	data, err := json.Marshal(sig)
	if err != nil {
		metricsRecorder().RecordSignalFailed("redis", string(sig.Type), "marshal_failed")
		return fmt.Errorf("failed to marshal signal: %w", err)
	}

	channel := b.channelPrefix + sig.OrderID
	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		metricsRecorder().RecordSignalFailed("redis", string(sig.Type), "publish_failed")
		return err
	}
	metricsRecorder().RecordSignalSent("redis", string(sig.Type))
	return nil
}

// Subscribe creates a channel that receives signals for the given order via Redis Pub/Sub.
func (b *RedisBus) Subscribe(ctx context.Context, orderID string) (<-chan *Signal, error) {
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

	channel := b.channelPrefix + orderID
	pubsub := b.client.Subscribe(ctx, channel)
	// Wait for the confirmation so a publish right after Subscribe returns is delivered.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	ch := make(chan *Signal, b.bufferSize)
	subCtx, cancel := context.WithCancel(ctx)

	sub := &redisSubscription{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	b.subscribers[orderID] = sub

	go b.forwardMessages(subCtx, pubsub, ch, sub.done)

	return ch, nil
}

func (b *RedisBus) forwardMessages(ctx context.Context, pubsub *redis.PubSub, ch chan *Signal, done chan struct{}) {
	defer func() {
		_ = pubsub.Close()
		close(ch)
		close(done)
	}()

	redisCh := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-redisCh:
			if !ok {
				return
			}
			var sig Signal
			if err := json.Unmarshal([]byte(msg.Payload), &sig); err != nil {
				metricsRecorder().RecordSignalFailed("redis", "unknown", "decode_failed")
				continue
			}
			select {
			case ch <- &sig:
				metricsRecorder().RecordSignalReceived("redis", string(sig.Type))
			default:
				metricsRecorder().RecordSignalFailed("redis", string(sig.Type), "buffer_full_drop")
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- &sig:
					metricsRecorder().RecordSignalReceived("redis", string(sig.Type))
				default:
					metricsRecorder().RecordSignalFailed("redis", string(sig.Type), "buffer_still_full")
				}
			}
		}
	}
}

// Unsubscribe removes the Redis subscription for the given order. The signal
// channel is closed once the forwarder has stopped.
func (b *RedisBus) Unsubscribe(orderID string) error {
	b.mu.Lock()
	sub, ok := b.subscribers[orderID]
	if ok {
		delete(b.subscribers, orderID)
	}
	b.mu.Unlock()

	if !ok {
		return nil
	}
	sub.cancel()
	<-sub.done
	return nil
}

// Close shuts down all subscriptions and the bus.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}

	b.closed = true
	subs := make([]*redisSubscription, 0, len(b.subscribers))
	for orderID, sub := range b.subscribers {
		sub.cancel()
		subs = append(subs, sub)
		delete(b.subscribers, orderID)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		<-sub.done
	}
	return nil
}

// Healthy checks if the Redis connection is alive.
func (b *RedisBus) Healthy() bool {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return false
	}
	b.mu.RUnlock()

	return b.client.Ping(context.Background()).Err() == nil
}
