// Package saga provides a sequential saga engine: ordered steps, reverse
// best-effort compensation and structured execution events.
package saga

import (
	"context"
	"fmt"
	"time"
)

// ActionFunc executes a forward step in a Saga.
type ActionFunc func(ctx context.Context, stepCtx *StepContext) (any, error)

// CompensationFunc executes the reverse operation for a step.
type CompensationFunc func(ctx context.Context, compensationCtx *CompensationContext) error

// DescribeFunc renders a human-readable line for a successful step result.
type DescribeFunc func(result any) string

// StepContext carries runtime information for forward step execution.
type StepContext struct {
	SagaID  string
	StepID  string
	Input   any
	Results map[string]any
}

// CompensationContext carries runtime information for compensation execution.
type CompensationContext struct {
	SagaID     string
	StepID     string
	FailedStep string
	Failure    error
	Attempt    int
	Input      any
	Result     any
	AllResults map[string]any
}

// Step defines one executable unit in a Saga.
type Step struct {
	ID               string
	Action           ActionFunc
	Compensation     CompensationFunc
	CompensationName string
	Timeout          time.Duration
	// Critical steps trigger compensation when they fail. Non-critical
	// failures are recorded and the saga moves on.
	Critical bool
	Describe DescribeFunc
}

// compensationName returns the recorded action name of the compensation.
func (s *Step) compensationName() string {
	if s.CompensationName != "" {
		return s.CompensationName
	}
	return "compensate-" + s.ID
}

func (s *Step) describe(result any) string {
	if s.Describe != nil {
		return s.Describe(result)
	}
	return s.ID + " completed"
}

// StepOption configures a step definition.
type StepOption func(step *Step) error

// Action configures the forward action function.
func Action(fn ActionFunc) StepOption {
	return func(step *Step) error {
		step.Action = fn
		return nil
	}
}

// Compensate configures the compensation function.
func Compensate(fn CompensationFunc) StepOption {
	return func(step *Step) error {
		step.Compensation = fn
		return nil
	}
}

// CompensateAs configures the compensation function with a recorded name.
func CompensateAs(name string, fn CompensationFunc) StepOption {
	return func(step *Step) error {
		if name == "" {
			return fmt.Errorf("compensation name cannot be empty")
		}
		step.Compensation = fn
		step.CompensationName = name
		return nil
	}
}

// StepTimeout configures per-step timeout.
func StepTimeout(timeout time.Duration) StepOption {
	return func(step *Step) error {
		step.Timeout = timeout
		return nil
	}
}

// NonCritical marks a step whose failure does not roll the saga back.
func NonCritical() StepOption {
	return func(step *Step) error {
		step.Critical = false
		return nil
	}
}

// Describe configures how a successful result is rendered in the step log.
func Describe(fn DescribeFunc) StepOption {
	return func(step *Step) error {
		step.Describe = fn
		return nil
	}
}
