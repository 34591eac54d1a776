package eventbus

import (
	"context"
	"fmt"
	"sync"
)

// EnvelopeHandler receives decoded envelopes from a Bridge.
type EnvelopeHandler func(envelope Envelope)

// Bridge consumes order events from a Source and hands each new envelope to
// a handler. Duplicate deliveries are suppressed by the EnvelopeConsumer.
type Bridge struct {
	handler  EnvelopeHandler
	consumer *EnvelopeConsumer

	mu     sync.Mutex
	sub    *Subscription
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBridge creates a bridge from the event bus into handler.
func NewBridge(handler EnvelopeHandler, router *SchemaRouter) (*Bridge, error) {
	if handler == nil {
		return nil, fmt.Errorf("eventbus: bridge handler cannot be nil")
	}
	return &Bridge{
		handler:  handler,
		consumer: NewEnvelopeConsumer(router),
	}, nil
}

// Start subscribes to all order subjects and starts the bridge loop.
func (b *Bridge) Start(source Source) error {
	if source == nil {
		return fmt.Errorf("eventbus: source cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub != nil {
		return nil
	}

	sub, err := source.Subscribe(AllSubjects(), 256)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.sub = sub
	b.cancel = cancel
	b.wg.Add(1)

	go b.loop(ctx, sub)
	return nil
}

func (b *Bridge) loop(ctx context.Context, sub *Subscription) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			envelope, _, duplicate, err := b.consumer.DecodeAndValidate(msg.Payload)
			if err != nil || duplicate {
				continue
			}
			b.handler(envelope)
		}
	}
}

// Stop stops the bridge and releases its subscription.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	sub := b.sub
	cancel := b.cancel
	b.sub = nil
	b.cancel = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.wg.Wait()
	if sub != nil {
		_ = sub.Close()
	}
	return nil
}
