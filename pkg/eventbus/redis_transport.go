package eventbus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTransport carries order events over Redis Pub/Sub so several
// service instances share one event stream.
type RedisTransport struct {
	client        redis.UniversalClient
	channelPrefix string
}

// NewRedisTransport creates a Redis-backed transport.
func NewRedisTransport(client redis.UniversalClient, channelPrefix string) (*RedisTransport, error) {
	if client == nil {
		return nil, fmt.Errorf("eventbus: redis client cannot be nil")
	}
	if channelPrefix == "" {
		channelPrefix = "fulfillment:events:"
	}
	return &RedisTransport{client: client, channelPrefix: channelPrefix}, nil
}

// Publish publishes payload on the channel derived from subject.
func (t *RedisTransport) Publish(ctx context.Context, subject string, payload []byte) error {
	if subject == "" {
		return fmt.Errorf("eventbus: subject cannot be empty")
	}
	return t.client.Publish(ctx, t.channelPrefix+subject, payload).Err()
}

// Subscribe pattern-subscribes on Redis. Redis globs are wider than subject
// wildcards, so deliveries are filtered with subjectMatches.
func (t *RedisTransport) Subscribe(pattern string, buffer int) (*Subscription, error) {
	if pattern == "" {
		return nil, fmt.Errorf("eventbus: subscription pattern cannot be empty")
	}
	if buffer <= 0 {
		buffer = 32
	}

	ctx, cancel := context.WithCancel(context.Background())
	pubsub := t.client.PSubscribe(ctx, t.channelPrefix+redisGlob(pattern))
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, fmt.Errorf("eventbus: redis subscribe: %w", err)
	}

	ch := make(chan Message, buffer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		redisCh := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-redisCh:
				if !ok {
					return
				}
				subject := strings.TrimPrefix(msg.Channel, t.channelPrefix)
				if !subjectMatches(pattern, subject) {
					continue
				}
				select {
				case ch <- Message{Subject: subject, Payload: []byte(msg.Payload), Timestamp: time.Now().UTC()}:
				default:
				}
			}
		}
	}()

	return &Subscription{
		ch: ch,
		release: func() {
			cancel()
			_ = pubsub.Close()
			<-done
		},
	}, nil
}

// redisGlob converts a subject pattern into a Redis PSUBSCRIBE glob. A "*"
// segment is already a glob.
func redisGlob(pattern string) string {
	if strings.HasSuffix(pattern, ".>") {
		return strings.TrimSuffix(pattern, ">") + "*"
	}
	return pattern
}
