package saga

import (
	"fmt"
	"time"
)

// CompensationRetryConfig controls retry behavior for compensation execution.
type CompensationRetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultRetryConfig returns 3 retries starting at 100ms, doubling up to 5s.
func DefaultRetryConfig() CompensationRetryConfig {
	return CompensationRetryConfig{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
	}
}

// SagaDefinition describes a sequential Saga. Steps run in StepOrder.
type SagaDefinition struct {
	Name               string
	Steps              map[string]*Step
	StepOrder          []string
	Timeout            time.Duration
	DefaultStepTimeout time.Duration
	Retry              CompensationRetryConfig
}

// Builder incrementally constructs SagaDefinition instances.
type Builder struct {
	def  *SagaDefinition
	errs []error
}

// New creates a Saga definition builder.
func New(name string) *Builder {
	return &Builder{
		def: &SagaDefinition{
			Name:               name,
			Steps:              make(map[string]*Step),
			StepOrder:          make([]string, 0),
			DefaultStepTimeout: 30 * time.Second,
			Retry:              DefaultRetryConfig(),
		},
	}
}

// Step appends a step to the saga definition.
func (b *Builder) Step(id string, opts ...StepOption) *Builder {
	step := &Step{
		ID:       id,
		Critical: true,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(step); err != nil {
			b.errs = append(b.errs, fmt.Errorf("step %q: %w", id, err))
		}
	}

	if _, exists := b.def.Steps[id]; exists {
		b.errs = append(b.errs, fmt.Errorf("duplicate step ID: %s", id))
		return b
	}

	b.def.Steps[id] = step
	b.def.StepOrder = append(b.def.StepOrder, id)
	return b
}

// WithTimeout sets the Saga-level deadline. It is checked between steps.
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.def.Timeout = timeout
	return b
}

// WithDefaultStepTimeout sets default timeout for steps without explicit timeout.
func (b *Builder) WithDefaultStepTimeout(timeout time.Duration) *Builder {
	b.def.DefaultStepTimeout = timeout
	return b
}

// WithRetryConfig configures compensation retries.
func (b *Builder) WithRetryConfig(cfg CompensationRetryConfig) *Builder {
	b.def.Retry = cfg
	return b
}

// Build validates and returns the saga definition.
func (b *Builder) Build() (*SagaDefinition, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	if err := b.def.Validate(); err != nil {
		return nil, err
	}
	return b.def.clone(), nil
}

// Validate validates saga structure.
func (d *SagaDefinition) Validate() error {
	if d == nil {
		return fmt.Errorf("saga definition cannot be nil")
	}
	if d.Name == "" {
		return fmt.Errorf("saga name cannot be empty")
	}
	if len(d.StepOrder) == 0 {
		return fmt.Errorf("saga must define at least one step")
	}
	if len(d.StepOrder) != len(d.Steps) {
		return fmt.Errorf("saga step order lists %d steps, definition has %d", len(d.StepOrder), len(d.Steps))
	}
	if d.Timeout < 0 {
		return fmt.Errorf("saga timeout cannot be negative")
	}
	if d.DefaultStepTimeout < 0 {
		return fmt.Errorf("default step timeout cannot be negative")
	}
	if d.Retry.MaxRetries < 0 {
		return fmt.Errorf("compensation max retries cannot be negative")
	}
	if d.Retry.BackoffFactor < 1 {
		return fmt.Errorf("compensation backoff factor must be >= 1")
	}

	for _, id := range d.StepOrder {
		step := d.Steps[id]
		if step == nil {
			return fmt.Errorf("step %q is nil", id)
		}
		if step.ID == "" {
			return fmt.Errorf("step ID cannot be empty")
		}
		if step.Action == nil {
			return fmt.Errorf("step %q missing action", step.ID)
		}
		if step.Timeout < 0 {
			return fmt.Errorf("step %q timeout cannot be negative", step.ID)
		}
		if !step.Critical && step.Compensation != nil {
			return fmt.Errorf("step %q is non-critical and cannot define a compensation", step.ID)
		}
	}
	return nil
}

// timeoutFor returns the effective timeout of a step.
func (d *SagaDefinition) timeoutFor(step *Step) time.Duration {
	if step.Timeout > 0 {
		return step.Timeout
	}
	return d.DefaultStepTimeout
}

func (d *SagaDefinition) clone() *SagaDefinition {
	steps := make(map[string]*Step, len(d.Steps))
	for id, step := range d.Steps {
		if step == nil {
			continue
		}
		copied := *step
		steps[id] = &copied
	}

	order := make([]string, len(d.StepOrder))
	copy(order, d.StepOrder)

	return &SagaDefinition{
		Name:               d.Name,
		Steps:              steps,
		StepOrder:          order,
		Timeout:            d.Timeout,
		DefaultStepTimeout: d.DefaultStepTimeout,
		Retry:              d.Retry,
	}
}
