package saga

import (
	"context"
	"sync"
	"time"
)

// EventType names a saga execution event.
type EventType string

const (
	EventSagaStarted           EventType = "saga.started"
	EventStepStarted           EventType = "step.started"
	EventStepSucceeded         EventType = "step.succeeded"
	EventStepFailed            EventType = "step.failed"
	EventCompensationStarted   EventType = "compensation.started"
	EventCompensationSucceeded EventType = "compensation.succeeded"
	EventCompensationFailed    EventType = "compensation.failed"
	EventSagaFinished          EventType = "saga.finished"
)

// Event is a structured step-completion event.
type Event struct {
	Type        EventType     `json:"type"`
	SagaID      string        `json:"saga_id"`
	Saga        string        `json:"saga"`
	Step        string        `json:"step,omitempty"`
	Action      string        `json:"action,omitempty"`
	State       string        `json:"state,omitempty"`
	Critical    bool          `json:"critical,omitempty"`
	Attempt     int           `json:"attempt,omitempty"`
	Description string        `json:"description,omitempty"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

// Observer receives saga events. Events of one execution are delivered in
// order on the executing goroutine, so observers must not block.
type Observer interface {
	OnSagaEvent(ctx context.Context, event Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, event Event)

// OnSagaEvent calls f.
func (f ObserverFunc) OnSagaEvent(ctx context.Context, event Event) { f(ctx, event) }

// ObserverRegistry fans events out to registered observers.
type ObserverRegistry struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewObserverRegistry creates an empty registry.
func NewObserverRegistry() *ObserverRegistry {
	return &ObserverRegistry{}
}

// Subscribe adds an observer for all sagas.
func (r *ObserverRegistry) Subscribe(observer Observer) {
	if observer == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, observer)
}

// Notify delivers event to every observer.
func (r *ObserverRegistry) Notify(ctx context.Context, event Event) {
	r.mu.RLock()
	observers := r.observers
	r.mu.RUnlock()

	for _, observer := range observers {
		observer.OnSagaEvent(ctx, event)
	}
}

// Count returns the number of observers.
func (r *ObserverRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.observers)
}
