package saga

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/goclaw/fulfillment/pkg/order"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CompensationExecutor performs reverse execution for completed steps.
type CompensationExecutor struct {
	observers *ObserverRegistry
	metrics   MetricsRecorder
	sleep     func(time.Duration)
}

// NewCompensationExecutor creates a compensation executor.
func NewCompensationExecutor(observers *ObserverRegistry, metrics MetricsRecorder) *CompensationExecutor {
	if observers == nil {
		observers = NewObserverRegistry()
	}
	if metrics == nil {
		metrics = &nopMetricsRecorder{}
	}
	return &CompensationExecutor{
		observers: observers,
		metrics:   metrics,
		sleep:     time.Sleep,
	}
}

// Execute compensates completed steps in exact reverse completion order.
// A failed compensation is retried, recorded and the walk continues; if any
// compensation failed, *order.CompensationFailedError is returned.
func (e *CompensationExecutor) Execute(
	ctx context.Context,
	definition *SagaDefinition,
	execution *Execution,
	input any,
	cause error,
) error {
	if definition == nil {
		return fmt.Errorf("saga definition cannot be nil")
	}
	if execution == nil {
		return fmt.Errorf("saga execution cannot be nil")
	}

	ctx, span := sagaTracer().Start(ctx, spanSagaExecuteCompensate, trace.WithAttributes(
		attribute.String("saga.id", execution.ID),
		attribute.String("saga.failed_step", execution.FailedStep),
	))
	defer span.End()

	started := time.Now()
	var failures []order.CompensationFailure

	for i := len(execution.CompletedSteps) - 1; i >= 0; i-- {
		stepID := execution.CompletedSteps[i]
		step := definition.Steps[stepID]
		if step == nil || step.Compensation == nil {
			continue
		}

		record, err := e.executeStepCompensation(ctx, definition, execution, step, input, cause)
		execution.Compensations = append(execution.Compensations, record)
		if err != nil {
			failures = append(failures, order.CompensationFailure{
				Step:   stepID,
				Action: record.Action,
				Err:    err,
			})
			continue
		}
		execution.MarkStepCompensated(stepID)
	}

	e.metrics.RecordCompensationDuration(time.Since(started))
	if len(failures) > 0 {
		e.metrics.RecordCompensation("failed")
		err := &order.CompensationFailedError{
			SagaID:   execution.ID,
			Original: cause,
			Failures: failures,
		}
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "compensation failed")
		return err
	}
	e.metrics.RecordCompensation("succeeded")
	span.SetStatus(otelcodes.Ok, "")
	return nil
}

func (e *CompensationExecutor) executeStepCompensation(
	ctx context.Context,
	definition *SagaDefinition,
	execution *Execution,
	step *Step,
	input any,
	cause error,
) (order.CompensationRecord, error) {
	ctx, span := sagaTracer().Start(ctx, spanSagaStepCompensate, trace.WithAttributes(
		attribute.String("saga.id", execution.ID),
		attribute.String("saga.step", step.ID),
		attribute.String("saga.compensation", step.compensationName()),
	))
	defer span.End()

	record := order.CompensationRecord{
		Step:   step.ID,
		Action: step.compensationName(),
	}

	retryCfg := definition.Retry
	maxRetries := retryCfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	timeout := definition.timeoutFor(step)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		record.Attempts = attempt + 1
		e.emit(ctx, execution, Event{
			Type:    EventCompensationStarted,
			Step:    step.ID,
			Action:  record.Action,
			Attempt: record.Attempts,
		})

		// Rollback must run even when the caller has gone away.
		stepCtx := context.WithoutCancel(ctx)
		cancel := func() {}
		if timeout > 0 {
			stepCtx, cancel = context.WithTimeout(stepCtx, timeout)
		}
		err := step.Compensation(stepCtx, &CompensationContext{
			SagaID:     execution.ID,
			StepID:     step.ID,
			FailedStep: execution.FailedStep,
			Failure:    cause,
			Attempt:    record.Attempts,
			Input:      input,
			Result:     execution.StepResults[step.ID],
			AllResults: copyResultMap(execution.StepResults),
		})
		cancel()

		if err == nil {
			record.Status = order.CompensationSucceeded
			record.Error = ""
			span.SetStatus(otelcodes.Ok, "")
			e.emit(ctx, execution, Event{
				Type:    EventCompensationSucceeded,
				Step:    step.ID,
				Action:  record.Action,
				Attempt: record.Attempts,
			})
			return record, nil
		}

		lastErr = err
		record.Error = err.Error()
		if attempt < maxRetries {
			e.metrics.RecordCompensationRetry()
			e.sleep(backoffForAttempt(retryCfg, attempt))
		}
	}

	record.Status = order.CompensationFailed
	span.RecordError(lastErr)
	span.SetStatus(otelcodes.Error, lastErr.Error())
	e.emit(ctx, execution, Event{
		Type:    EventCompensationFailed,
		Step:    step.ID,
		Action:  record.Action,
		Attempt: record.Attempts,
		Error:   lastErr.Error(),
	})
	return record, fmt.Errorf("compensation %s for step %s failed after %d attempts: %w",
		record.Action, step.ID, record.Attempts, lastErr)
}

func (e *CompensationExecutor) emit(ctx context.Context, execution *Execution, event Event) {
	event.SagaID = execution.ID
	event.Saga = execution.DefinitionName
	event.State = execution.State.String()
	event.Timestamp = time.Now().UTC()
	e.observers.Notify(ctx, event)
}

func backoffForAttempt(cfg CompensationRetryConfig, attempt int) time.Duration {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = 2.0
	}

	backoff := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffFactor, float64(attempt))
	duration := time.Duration(backoff)
	if duration > cfg.MaxBackoff {
		return cfg.MaxBackoff
	}
	return duration
}
