package order

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidRequest is matched by every *ValidationError.
var ErrInvalidRequest = errors.New("invalid order request")

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when a request is malformed. No step has run.
type ValidationError struct {
	Fields []FieldError
	Reason string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidRequest }

// NewValidationError builds a ValidationError without field details.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// UnknownProviderError is returned when a provider id is not registered.
type UnknownProviderError struct {
	Provider string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown payment provider %q", e.Provider)
}

// InsufficientStockError is a business decline at reserve-inventory.
// Available is negative when the stock level is not known.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	if e.Available < 0 {
		return fmt.Sprintf("insufficient stock for %s: requested %d", e.ProductID, e.Requested)
	}
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

// PaymentDeclinedError is a business decline from a payment provider.
type PaymentDeclinedError struct {
	Provider string
	Reason   string
}

func (e *PaymentDeclinedError) Error() string {
	return fmt.Sprintf("payment declined by %s: %s", e.Provider, e.Reason)
}

// PaymentProviderUnavailableError is a transport failure talking to a provider.
type PaymentProviderUnavailableError struct {
	Provider string
	Cause    error
}

func (e *PaymentProviderUnavailableError) Error() string {
	return fmt.Sprintf("payment provider %s unavailable: %v", e.Provider, e.Cause)
}

func (e *PaymentProviderUnavailableError) Unwrap() error { return e.Cause }

// ShippingUnavailableError is returned when shipping cannot quote or ship.
type ShippingUnavailableError struct {
	Country string
	Cause   error
}

func (e *ShippingUnavailableError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("shipping unavailable to %q", e.Country)
	}
	return fmt.Sprintf("shipping unavailable to %q: %v", e.Country, e.Cause)
}

func (e *ShippingUnavailableError) Unwrap() error { return e.Cause }

// StepTimeoutError is returned when a step exceeds its time budget.
type StepTimeoutError struct {
	Step    string
	Timeout time.Duration
	Cause   error
}

func (e *StepTimeoutError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("step %q timed out after %s", e.Step, e.Timeout)
	}
	return fmt.Sprintf("step %q timed out after %s: %v", e.Step, e.Timeout, e.Cause)
}

func (e *StepTimeoutError) Unwrap() error { return e.Cause }

// SagaInterruptedError is recorded when forward progress was stopped between steps.
type SagaInterruptedError struct {
	Before string
	Reason string
}

func (e *SagaInterruptedError) Error() string {
	return fmt.Sprintf("saga interrupted before %q: %s", e.Before, e.Reason)
}

// CompensationFailure is one rollback action that did not succeed.
type CompensationFailure struct {
	Step   string
	Action string
	Err    error
}

// CompensationFailedError is the terminal outcome when rollback itself failed.
// It names the original failure and every failed compensation.
type CompensationFailedError struct {
	SagaID   string
	Original error
	Failures []CompensationFailure
}

func (e *CompensationFailedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s (%s): %v", f.Action, f.Step, f.Err))
	}
	return fmt.Sprintf("saga %s compensation failed after original failure %v; failed compensations: %s",
		e.SagaID, e.Original, strings.Join(parts, ", "))
}

// Unwrap exposes the original failure and each compensation error.
func (e *CompensationFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	if e.Original != nil {
		errs = append(errs, e.Original)
	}
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// CancellationIncompleteError is returned when a cancellation was attempted
// but at least one of its actions failed. Actions that succeeded are not
// undone.
type CancellationIncompleteError struct {
	OrderID  string
	Failures []error
}

func (e *CancellationIncompleteError) Error() string {
	return fmt.Sprintf("cancellation of %s incomplete: %v", e.OrderID, errors.Join(e.Failures...))
}

// Unwrap exposes each failed action.
func (e *CancellationIncompleteError) Unwrap() []error { return e.Failures }

// IsHardFailure reports whether err must be propagated to the caller
// instead of being folded into an unsuccessful result.
func IsHardFailure(err error) bool {
	var (
		ve *ValidationError
		up *UnknownProviderError
		cf *CompensationFailedError
	)
	return errors.As(err, &ve) || errors.As(err, &up) || errors.As(err, &cf)
}
