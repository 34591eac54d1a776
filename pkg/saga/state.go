package saga

import (
	"fmt"
	"time"

	"github.com/goclaw/fulfillment/pkg/order"
)

// SagaState defines lifecycle of a Saga execution.
type SagaState int

const (
	SagaStateCreated SagaState = iota
	SagaStateRunning
	SagaStateCompleted
	SagaStateCompensating
	SagaStateCompensated
	SagaStateCompensationFailed
)

var validTransitions = map[SagaState]map[SagaState]struct{}{
	SagaStateCreated: {
		SagaStateRunning: {},
	},
	SagaStateRunning: {
		SagaStateCompleted:    {},
		SagaStateCompensating: {},
	},
	SagaStateCompensating: {
		SagaStateCompensated:        {},
		SagaStateCompensationFailed: {},
	},
}

// String returns the string form of SagaState.
func (s SagaState) String() string {
	switch s {
	case SagaStateCreated:
		return "created"
	case SagaStateRunning:
		return "running"
	case SagaStateCompleted:
		return "completed"
	case SagaStateCompensating:
		return "compensating"
	case SagaStateCompensated:
		return "compensated"
	case SagaStateCompensationFailed:
		return "compensation-failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the state is terminal.
func (s SagaState) IsTerminal() bool {
	switch s {
	case SagaStateCompleted, SagaStateCompensated, SagaStateCompensationFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks whether a state transition is valid.
func (s SagaState) CanTransitionTo(next SagaState) bool {
	if s == next {
		return true
	}
	validNext, ok := validTransitions[s]
	if !ok {
		return false
	}
	_, ok = validNext[next]
	return ok
}

// ValidateTransition validates transition semantics.
func ValidateTransition(current, next SagaState) error {
	if !current.CanTransitionTo(next) {
		return fmt.Errorf("invalid saga state transition: %s -> %s", current, next)
	}
	return nil
}

// Execution is the state of one saga run. It is owned by the call that
// created it and is not shared.
type Execution struct {
	ID             string
	DefinitionName string
	State          SagaState
	Records        []order.StepRecord
	Compensations  []order.CompensationRecord
	CompletedSteps []string
	Compensated    []string
	Log            []string
	FailedStep     string
	Failure        error
	StepResults    map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// NewExecution creates a new execution in the created state.
func NewExecution(id string, def *SagaDefinition) *Execution {
	now := time.Now().UTC()
	name := ""
	if def != nil {
		name = def.Name
	}
	return &Execution{
		ID:             id,
		DefinitionName: name,
		State:          SagaStateCreated,
		CompletedSteps: make([]string, 0),
		Compensated:    make([]string, 0),
		StepResults:    make(map[string]any),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// TransitionTo applies a state transition.
func (e *Execution) TransitionTo(next SagaState) error {
	if e == nil {
		return fmt.Errorf("saga execution cannot be nil")
	}
	if err := ValidateTransition(e.State, next); err != nil {
		return err
	}

	now := time.Now().UTC()
	if e.State == SagaStateCreated && next == SagaStateRunning {
		start := now
		e.StartedAt = &start
	}
	if next.IsTerminal() {
		done := now
		e.CompletedAt = &done
	}
	e.State = next
	e.UpdatedAt = now
	return nil
}

// appendRecord adds a step record and its log line.
func (e *Execution) appendRecord(rec order.StepRecord) {
	e.Records = append(e.Records, rec)
	if rec.Description != "" {
		e.Log = append(e.Log, rec.Description)
	}
	e.UpdatedAt = time.Now().UTC()
}

// MarkStepCompleted records a completed step and output.
func (e *Execution) MarkStepCompleted(stepID string, result any) {
	if e == nil {
		return
	}
	e.CompletedSteps = append(e.CompletedSteps, stepID)
	if e.StepResults == nil {
		e.StepResults = make(map[string]any)
	}
	e.StepResults[stepID] = result
	e.UpdatedAt = time.Now().UTC()
}

// MarkStepCompensated records a compensated step.
func (e *Execution) MarkStepCompensated(stepID string) {
	if e == nil {
		return
	}
	e.Compensated = append(e.Compensated, stepID)
	e.UpdatedAt = time.Now().UTC()
}

// SetFailure records the failed step and its error. stepID is empty when
// forward progress stopped between steps.
func (e *Execution) SetFailure(stepID string, err error) {
	if e == nil {
		return
	}
	e.FailedStep = stepID
	e.Failure = err
	e.UpdatedAt = time.Now().UTC()
}

// Record returns the record of a step, if it ran.
func (e *Execution) Record(stepID string) (order.StepRecord, bool) {
	for _, rec := range e.Records {
		if rec.Name == stepID {
			return rec, true
		}
	}
	return order.StepRecord{}, false
}
