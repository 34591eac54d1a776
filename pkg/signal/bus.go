package signal

import "context"

// Bus defines the interface for signal delivery to running orders.
type Bus interface {
	// Publish sends a signal to the specified order.
	Publish(ctx context.Context, signal *Signal) error

	// Subscribe creates a channel that receives signals for the given order ID.
	Subscribe(ctx context.Context, orderID string) (<-chan *Signal, error)

	// Unsubscribe removes the subscription for the given order ID.
	Unsubscribe(orderID string) error

	// Close shuts down the signal bus and releases resources.
	Close() error

	// Healthy returns true if the signal bus is operational.
	Healthy() bool
}
