package sim

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goclaw/fulfillment/pkg/gateway"
	"golang.org/x/time/rate"
)

// Channel is a delivery medium.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// ChannelForRecipient picks the medium from the recipient format.
func ChannelForRecipient(recipient string) Channel {
	switch {
	case strings.Contains(recipient, "@"):
		return ChannelEmail
	case strings.HasPrefix(recipient, "+"):
		return ChannelSMS
	default:
		return ChannelPush
	}
}

// Message is one delivered notification.
type Message struct {
	Kind      gateway.NotificationKind
	Channel   Channel
	Recipient string
	Payload   map[string]any
	SentAt    time.Time
}

// NotifierConfig configures per-recipient throttling.
type NotifierConfig struct {
	RatePerSecond float64
	Burst         int
}

// Notifier records notifications and throttles each recipient. It keeps the
// most recent DefaultRetention messages.
type Notifier struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	limit     rate.Limit
	burst     int
	outbox    []Message
	retention int
	failWith  error
}

// NewNotifier creates a notifier. A non-positive rate disables throttling.
func NewNotifier(cfg NotifierConfig) *Notifier {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Notifier{
		limiters:  make(map[string]*rate.Limiter),
		limit:     limit,
		burst:     burst,
		retention: DefaultRetention,
	}
}

// SetRetention changes how many delivered messages and recipient limiters are
// kept. A non-positive value restores DefaultRetention.
func (n *Notifier) SetRetention(size int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if size <= 0 {
		size = DefaultRetention
	}
	n.retention = size
	n.trimOutbox()
}

func (n *Notifier) trimOutbox() {
	if extra := len(n.outbox) - n.retention; extra > 0 {
		n.outbox = n.outbox[extra:]
	}
}

// SetFailure makes every Send fail with err until reset with nil.
func (n *Notifier) SetFailure(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failWith = err
}

// allow reports whether recipient is within its rate. Unthrottled notifiers
// keep no limiters.
func (n *Notifier) allow(recipient string) bool {
	if n.limit == rate.Inf {
		return true
	}
	l, ok := n.limiters[recipient]
	if !ok {
		if len(n.limiters) >= n.retention {
			n.dropIdleLimiters()
		}
		l = rate.NewLimiter(n.limit, n.burst)
		n.limiters[recipient] = l
	}
	return l.Allow()
}

// dropIdleLimiters forgets recipients whose bucket has refilled, since a
// fresh limiter behaves the same.
func (n *Notifier) dropIdleLimiters() {
	full := float64(n.burst)
	for recipient, l := range n.limiters {
		if l.Tokens() >= full {
			delete(n.limiters, recipient)
		}
	}
}

// Send delivers a notification or reports why it could not.
func (n *Notifier) Send(ctx context.Context, kind gateway.NotificationKind, recipient string, payload map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.failWith != nil {
		return &gateway.UnavailableError{Service: "notification", Op: string(kind), Cause: n.failWith}
	}
	if recipient == "" {
		return fmt.Errorf("send %s: empty recipient", kind)
	}
	if !n.allow(recipient) {
		return fmt.Errorf("send %s to %s: %w", kind, recipient, gateway.ErrRateLimited)
	}

	n.outbox = append(n.outbox, Message{
		Kind:      kind,
		Channel:   ChannelForRecipient(recipient),
		Recipient: recipient,
		Payload:   payload,
		SentAt:    time.Now(),
	})
	n.trimOutbox()
	return nil
}

// Sent returns a copy of the delivered messages.
func (n *Notifier) Sent() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Message, len(n.outbox))
	copy(out, n.outbox)
	return out
}
