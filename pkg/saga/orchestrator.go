package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goclaw/fulfillment/pkg/order"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OrchestratorOption customizes SagaOrchestrator initialization.
type OrchestratorOption func(orchestrator *SagaOrchestrator)

// WithMaxConcurrentSagas sets maximum concurrent saga executions.
func WithMaxConcurrentSagas(max int) OrchestratorOption {
	return func(orchestrator *SagaOrchestrator) {
		if max > 0 {
			orchestrator.maxConcurrent = max
			orchestrator.sema = make(chan struct{}, max)
		}
	}
}

// WithObserver registers an event observer.
func WithObserver(observer Observer) OrchestratorOption {
	return func(orchestrator *SagaOrchestrator) {
		orchestrator.observers.Subscribe(observer)
	}
}

// WithMetricsRecorder wires a metrics recorder.
func WithMetricsRecorder(recorder MetricsRecorder) OrchestratorOption {
	return func(orchestrator *SagaOrchestrator) {
		if recorder != nil {
			orchestrator.metrics = recorder
			orchestrator.compensationExecutor.metrics = recorder
		}
	}
}

// ExecuteOption customizes one execution.
type ExecuteOption func(cfg *executeConfig)

type executeConfig struct {
	interrupts <-chan string
}

// WithInterrupt stops forward progress when a reason arrives on ch. The
// channel is polled between steps only.
func WithInterrupt(ch <-chan string) ExecuteOption {
	return func(cfg *executeConfig) {
		cfg.interrupts = ch
	}
}

// SagaOrchestrator executes saga definitions. It holds no per-saga state and
// is safe for concurrent use.
type SagaOrchestrator struct {
	observers            *ObserverRegistry
	metrics              MetricsRecorder
	compensationExecutor *CompensationExecutor
	maxConcurrent        int
	sema                 chan struct{}
}

// NewSagaOrchestrator creates a Saga orchestrator.
func NewSagaOrchestrator(options ...OrchestratorOption) *SagaOrchestrator {
	observers := NewObserverRegistry()
	metrics := &nopMetricsRecorder{}
	orchestrator := &SagaOrchestrator{
		observers:            observers,
		metrics:              metrics,
		compensationExecutor: NewCompensationExecutor(observers, metrics),
		maxConcurrent:        100,
		sema:                 make(chan struct{}, 100),
	}
	for _, option := range options {
		if option != nil {
			option(orchestrator)
		}
	}
	return orchestrator
}

// Subscribe registers an observer after construction.
func (o *SagaOrchestrator) Subscribe(observer Observer) {
	o.observers.Subscribe(observer)
}

// Execute runs a Saga definition from start to terminal state.
func (o *SagaOrchestrator) Execute(ctx context.Context, definition *SagaDefinition, input any) (*Execution, error) {
	return o.ExecuteWithID(ctx, uuid.NewString(), definition, input)
}

// ExecuteWithID runs a saga using a provided execution ID.
//
// The returned error is nil when the saga completed, the forward failure
// when it was compensated, and *order.CompensationFailedError when rollback
// itself failed. The execution is returned in every terminal case.
func (o *SagaOrchestrator) ExecuteWithID(
	ctx context.Context,
	sagaID string,
	definition *SagaDefinition,
	input any,
	opts ...ExecuteOption,
) (*Execution, error) {
	if definition == nil {
		return nil, fmt.Errorf("saga definition cannot be nil")
	}
	if err := definition.Validate(); err != nil {
		return nil, err
	}

	cfg := executeConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	select {
	case o.sema <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-o.sema }()

	ctx, span := sagaTracer().Start(ctx, spanSagaExecuteForward, trace.WithAttributes(
		attribute.String("saga.id", sagaID),
		attribute.String("saga.name", definition.Name),
	))
	defer span.End()

	o.metrics.IncActiveSagas()
	defer o.metrics.DecActiveSagas()
	started := time.Now()

	execution := NewExecution(sagaID, definition)
	if err := execution.TransitionTo(SagaStateRunning); err != nil {
		return nil, err
	}
	o.emit(ctx, execution, Event{Type: EventSagaStarted})

	var deadline time.Time
	if definition.Timeout > 0 {
		deadline = started.Add(definition.Timeout)
	}

	var execErr error
	for _, stepID := range definition.StepOrder {
		if reason, stop := o.interrupted(ctx, cfg.interrupts, deadline); stop {
			execErr = &order.SagaInterruptedError{Before: stepID, Reason: reason}
			execution.SetFailure("", execErr)
			break
		}

		step := definition.Steps[stepID]
		if err := o.executeStep(ctx, definition, execution, step, input); err != nil {
			if !step.Critical {
				continue
			}
			execErr = err
			execution.SetFailure(stepID, err)
			break
		}
	}

	if execErr == nil {
		if err := execution.TransitionTo(SagaStateCompleted); err != nil {
			return nil, err
		}
		o.finish(ctx, span, execution, started, nil)
		return execution, nil
	}

	span.RecordError(execErr)
	_ = execution.TransitionTo(SagaStateCompensating)
	if compErr := o.compensationExecutor.Execute(ctx, definition, execution, input, execErr); compErr != nil {
		_ = execution.TransitionTo(SagaStateCompensationFailed)
		o.finish(ctx, span, execution, started, compErr)
		return execution, compErr
	}
	_ = execution.TransitionTo(SagaStateCompensated)
	o.finish(ctx, span, execution, started, execErr)
	return execution, execErr
}

// interrupted checks the cancellation sources that are honored between steps.
func (o *SagaOrchestrator) interrupted(ctx context.Context, interrupts <-chan string, deadline time.Time) (string, bool) {
	if err := ctx.Err(); err != nil {
		return err.Error(), true
	}
	if !deadline.IsZero() && time.Now().After(deadline) {
		return "saga timeout exceeded", true
	}
	if interrupts == nil {
		return "", false
	}
	select {
	case reason, ok := <-interrupts:
		if !ok {
			return "", false
		}
		if reason == "" {
			reason = "interrupted"
		}
		return reason, true
	default:
		return "", false
	}
}

// executeStep runs one step on a context detached from caller cancellation
// and bounded by the step timeout, so an in-flight call is never abandoned.
func (o *SagaOrchestrator) executeStep(
	ctx context.Context,
	definition *SagaDefinition,
	execution *Execution,
	step *Step,
	input any,
) error {
	ctx, span := sagaTracer().Start(ctx, spanSagaStepForward, trace.WithAttributes(
		attribute.String("saga.id", execution.ID),
		attribute.String("saga.step", step.ID),
		attribute.Bool("saga.step.critical", step.Critical),
	))
	defer span.End()

	record := order.StepRecord{
		Name:        step.ID,
		Status:      order.StepPending,
		Critical:    step.Critical,
		Compensable: step.Compensation != nil,
		StartedAt:   time.Now().UTC(),
	}
	o.emit(ctx, execution, Event{Type: EventStepStarted, Step: step.ID, Critical: step.Critical})

	runCtx := context.WithoutCancel(ctx)
	cancel := func() {}
	timeout := definition.timeoutFor(step)
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
	}
	defer cancel()

	result, err := step.Action(runCtx, &StepContext{
		SagaID:  execution.ID,
		StepID:  step.ID,
		Input:   input,
		Results: copyResultMap(execution.StepResults),
	})
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		var timeoutErr *order.StepTimeoutError
		if !errors.As(err, &timeoutErr) {
			err = &order.StepTimeoutError{Step: step.ID, Timeout: timeout, Cause: err}
		}
	}

	record.FinishedAt = time.Now().UTC()
	duration := record.FinishedAt.Sub(record.StartedAt)
	o.metrics.RecordStepDuration(step.ID, duration)

	if err != nil {
		record.Status = order.StepFailed
		record.Error = err.Error()
		if step.Critical {
			record.Description = fmt.Sprintf("%s failed: %v", step.ID, err)
		} else {
			record.Description = fmt.Sprintf("%s failed (non-critical): %v", step.ID, err)
		}
		execution.appendRecord(record)
		o.metrics.RecordStepExecution(step.ID, string(order.StepFailed))
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		o.emit(ctx, execution, Event{
			Type:        EventStepFailed,
			Step:        step.ID,
			Critical:    step.Critical,
			Description: record.Description,
			Error:       err.Error(),
			Duration:    duration,
		})
		return err
	}

	record.Status = order.StepSucceeded
	record.Output = result
	record.Description = step.describe(result)
	execution.appendRecord(record)
	execution.MarkStepCompleted(step.ID, result)
	o.metrics.RecordStepExecution(step.ID, string(order.StepSucceeded))
	span.SetStatus(otelcodes.Ok, "")
	o.emit(ctx, execution, Event{
		Type:        EventStepSucceeded,
		Step:        step.ID,
		Critical:    step.Critical,
		Description: record.Description,
		Duration:    duration,
	})
	return nil
}

func (o *SagaOrchestrator) finish(ctx context.Context, span trace.Span, execution *Execution, started time.Time, err error) {
	state := execution.State.String()
	duration := time.Since(started)
	o.metrics.RecordSagaExecution(state)
	o.metrics.RecordSagaDuration(state, duration)

	span.SetAttributes(attribute.String("saga.state", state))
	if execution.State == SagaStateCompleted {
		span.SetStatus(otelcodes.Ok, "")
	} else {
		span.SetStatus(otelcodes.Error, state)
	}

	event := Event{Type: EventSagaFinished, Duration: duration}
	if err != nil {
		event.Error = err.Error()
	}
	o.emit(ctx, execution, event)
}

func (o *SagaOrchestrator) emit(ctx context.Context, execution *Execution, event Event) {
	event.SagaID = execution.ID
	event.Saga = execution.DefinitionName
	event.State = execution.State.String()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	o.observers.Notify(ctx, event)
}

func copyResultMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
