// Package signal provides the Signal Bus used to reach running orders.
//
// A signal targets one order id. The only pattern carried today is
// Interrupt: stop forward progress of a placement and roll it back.
package signal

import (
	"encoding/json"
	"time"
)

// SignalType defines the type of signal.
type SignalType string

const (
	// SignalInterrupt asks a running order placement to stop between steps.
	SignalInterrupt SignalType = "interrupt"
)

// Signal represents a message sent through the Signal Bus.
type Signal struct {
	// Type is the signal type.
	Type SignalType `json:"type"`

	// OrderID is the target order identifier.
	OrderID string `json:"order_id"`

	// Payload is the signal-specific data.
	Payload json.RawMessage `json:"payload"`

	// SentAt is the timestamp when the signal was sent.
	SentAt time.Time `json:"sent_at"`
}

// InterruptPayload is the payload for an Interrupt signal.
type InterruptPayload struct {
	// Reason is the reason for the interruption.
	Reason string `json:"reason"`

	// RequestedBy names the caller that asked for the interrupt.
	RequestedBy string `json:"requested_by,omitempty"`
}
