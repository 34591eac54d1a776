package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/goclaw/fulfillment/pkg/storage"
	"github.com/redis/go-redis/v9"
)

func requireRedisClient(tb testing.TB) redis.UniversalClient {
	tb.Helper()

	addr := os.Getenv("FULFILLMENT_REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  500 * time.Millisecond,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		tb.Skipf("redis is not available at %s: %v", addr, err)
	}

	tb.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

// TestRedisStorageSuite runs the full storage test suite against RedisStorage.
func TestRedisStorageSuite(t *testing.T) {
	client := requireRedisClient(t)

	suite := &storage.StorageTestSuite{
		NewStorage: func(t *testing.T) storage.Storage {
			prefix := fmt.Sprintf("fulfillment:test:store:%d:", time.Now().UnixNano())
			s, err := NewRedisStorage(context.Background(), client, prefix)
			if err != nil {
				t.Fatalf("NewRedisStorage failed: %v", err)
			}
			t.Cleanup(func() {
				keys, _ := client.Keys(context.Background(), prefix+"*").Result()
				if len(keys) > 0 {
					client.Del(context.Background(), keys...)
				}
			})
			return s
		},
	}

	suite.RunAllTests(t)
}

func TestNewRedisStorage_Unavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	_, err := NewRedisStorage(context.Background(), client, "")
	if err == nil {
		t.Fatal("expected error for unreachable redis")
	}
	if _, ok := err.(*storage.StorageUnavailableError); !ok {
		t.Fatalf("expected StorageUnavailableError, got %T", err)
	}
}
