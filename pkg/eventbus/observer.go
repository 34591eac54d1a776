package eventbus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goclaw/fulfillment/pkg/logger"
	"github.com/goclaw/fulfillment/pkg/saga"
)

// SagaPublisher is a saga.Observer that republishes saga events on the
// event bus. Events are queued and published by a background worker so the
// saga never waits on the transport; when the queue is full events are
// dropped and counted.
type SagaPublisher struct {
	publisher *Publisher
	queue     chan queuedEvent
	timeout   time.Duration

	dropped atomic.Int64
	closeMu sync.RWMutex
	closed  bool
	done    chan struct{}
}

type queuedEvent struct {
	ctx   context.Context
	event saga.Event
}

// NewSagaPublisher creates the observer and starts its worker.
func NewSagaPublisher(publisher *Publisher, queueSize int, publishTimeout time.Duration) (*SagaPublisher, error) {
	if publisher == nil {
		return nil, fmt.Errorf("eventbus: publisher cannot be nil")
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if publishTimeout <= 0 {
		publishTimeout = 5 * time.Second
	}
	p := &SagaPublisher{
		publisher: publisher,
		queue:     make(chan queuedEvent, queueSize),
		timeout:   publishTimeout,
		done:      make(chan struct{}),
	}
	go p.run()
	return p, nil
}

// OnSagaEvent enqueues event for publication.
func (p *SagaPublisher) OnSagaEvent(ctx context.Context, event saga.Event) {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- queuedEvent{ctx: context.WithoutCancel(ctx), event: event}:
	default:
		p.dropped.Add(1)
	}
}

// Dropped returns the number of events dropped on a full queue.
func (p *SagaPublisher) Dropped() int64 {
	return p.dropped.Load()
}

// Close stops accepting events and waits for queued ones to be published.
func (p *SagaPublisher) Close() error {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.closeMu.Unlock()

	<-p.done
	return nil
}

func (p *SagaPublisher) run() {
	defer close(p.done)
	for item := range p.queue {
		ctx, cancel := context.WithTimeout(item.ctx, p.timeout)
		_, err := p.publisher.PublishOrderEvent(ctx, ToOrderEvent(item.event))
		cancel()
		if err != nil {
			logger.FromContext(item.ctx).Warn("failed to publish saga event",
				"saga_id", item.event.SagaID,
				"event", string(item.event.Type),
				"error", err,
			)
		}
		if item.event.Type == saga.EventSagaFinished {
			p.publisher.Forget(item.event.SagaID)
		}
	}
}

// ToOrderEvent maps a saga event onto the order event subject space.
func ToOrderEvent(event saga.Event) OrderEvent {
	domain := DomainSaga
	switch {
	case strings.HasPrefix(string(event.Type), "step."):
		domain = DomainStep
	case strings.HasPrefix(string(event.Type), "compensation."):
		domain = DomainCompensation
	}
	return OrderEvent{
		Domain:      domain,
		EventType:   string(event.Type),
		ShardKey:    event.Saga,
		OrderID:     event.SagaID,
		Step:        event.Step,
		Payload:     event,
		OrderingKey: event.SagaID,
	}
}
