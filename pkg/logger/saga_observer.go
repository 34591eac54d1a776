package logger

import (
	"context"

	"github.com/goclaw/fulfillment/pkg/saga"
)

// SagaObserver logs saga execution events. Step progress is logged at
// debug, failures at warn and failed compensations at error.
type SagaObserver struct {
	log Logger
}

// NewSagaObserver creates an observer writing to l, or to the global
// logger when l is nil.
func NewSagaObserver(l Logger) *SagaObserver {
	return &SagaObserver{log: l}
}

// OnSagaEvent implements saga.Observer.
func (o *SagaObserver) OnSagaEvent(ctx context.Context, event saga.Event) {
	l := o.log
	if l == nil {
		l = FromContext(ctx)
	}

	args := []any{
		"saga_id", event.SagaID,
		"saga", event.Saga,
		"state", event.State,
	}
	if event.Step != "" {
		args = append(args, "step", event.Step)
	}
	if event.Action != "" {
		args = append(args, "action", event.Action, "attempt", event.Attempt)
	}
	if event.Description != "" {
		args = append(args, "description", event.Description)
	}
	if event.Duration > 0 {
		args = append(args, "duration", event.Duration)
	}
	if event.Error != "" {
		args = append(args, "error", event.Error)
	}

	msg := string(event.Type)
	switch event.Type {
	case saga.EventCompensationFailed:
		l.ErrorContext(ctx, msg, args...)
	case saga.EventStepFailed:
		if event.Critical {
			l.WarnContext(ctx, msg, args...)
		} else {
			l.InfoContext(ctx, msg, args...)
		}
	case saga.EventSagaStarted, saga.EventSagaFinished, saga.EventCompensationStarted:
		l.InfoContext(ctx, msg, args...)
	default:
		l.DebugContext(ctx, msg, args...)
	}
}
