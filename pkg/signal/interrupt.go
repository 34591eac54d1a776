package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SendInterrupt sends an Interrupt signal to a running order.
func SendInterrupt(ctx context.Context, bus Bus, orderID, reason, requestedBy string) error {
	if orderID == "" {
		return fmt.Errorf("order_id cannot be empty")
	}

	payload, err := json.Marshal(InterruptPayload{
		Reason:      reason,
		RequestedBy: requestedBy,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal interrupt payload: %w", err)
	}

	return bus.Publish(ctx, &Signal{
		Type:    SignalInterrupt,
		OrderID: orderID,
		Payload: payload,
		SentAt:  time.Now(),
	})
}

// ParseInterruptPayload extracts the InterruptPayload from a signal.
func ParseInterruptPayload(sig *Signal) (*InterruptPayload, error) {
	if sig.Type != SignalInterrupt {
		return nil, fmt.Errorf("expected interrupt signal, got %s", sig.Type)
	}
	var p InterruptPayload
	if err := json.Unmarshal(sig.Payload, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal interrupt payload: %w", err)
	}
	return &p, nil
}

// InterruptReasons forwards the reasons of interrupt signals on ch until ch
// closes or ctx is done. Other signal types and undecodable payloads are
// skipped. The returned channel buffers one reason; later ones are dropped
// because the first interrupt already stops the order.
func InterruptReasons(ctx context.Context, ch <-chan *Signal) <-chan string {
	out := make(chan string, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-ch:
				if !ok {
					return
				}
				if sig == nil || sig.Type != SignalInterrupt {
					continue
				}
				p, err := ParseInterruptPayload(sig)
				if err != nil {
					metricsRecorder().RecordSignalFailed("consumer", string(sig.Type), "decode_failed")
					continue
				}
				reason := p.Reason
				if reason == "" {
					reason = "interrupted"
				}
				select {
				case out <- reason:
				default:
				}
			}
		}
	}()
	return out
}
