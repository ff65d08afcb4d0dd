package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrIdempotencyInProgress means another request holding the same key has not
// finished yet.
var ErrIdempotencyInProgress = errors.New("request with this idempotency key is still in progress")

const pendingMarker = "pending"

// IdempotencyStore remembers which order an Idempotency-Key produced.
type IdempotencyStore interface {
	// Claim takes the key. It returns the order id when the key already
	// completed, "" when the caller now holds the key, or ErrIdempotencyInProgress.
	Claim(ctx context.Context, scope, key string) (string, error)
	Complete(ctx context.Context, scope, key, orderID string) error
	Release(ctx context.Context, scope, key string) error
}

// RedisIdempotencyStore holds an in-progress claim for lease and a completed
// key for ttl. A claim left behind by a crashed request frees itself once the
// lease runs out.
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
	lease  time.Duration
}

func NewRedisIdempotencyStore(client *redis.Client, ttl, lease time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if lease <= 0 || lease > ttl {
		lease = time.Minute
	}
	return &RedisIdempotencyStore{client: client, ttl: ttl, lease: lease}
}

func idempotencyKey(scope, key string) string {
	return fmt.Sprintf("order:idempotency:%s:%s", scope, key)
}

func (s *RedisIdempotencyStore) Claim(ctx context.Context, scope, key string) (string, error) {
	k := idempotencyKey(scope, key)
	set, err := s.client.SetNX(ctx, k, pendingMarker, s.lease).Result()
	if err != nil {
		return "", fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	if set {
		return "", nil
	}

	val, err := s.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between the two calls
		return "", ErrIdempotencyInProgress
	}
	if err != nil {
		return "", fmt.Errorf("failed to read idempotency key: %w", err)
	}
	if val == pendingMarker {
		return "", ErrIdempotencyInProgress
	}
	return val, nil
}

func (s *RedisIdempotencyStore) Complete(ctx context.Context, scope, key, orderID string) error {
	if err := s.client.Set(ctx, idempotencyKey(scope, key), orderID, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}
	return nil
}

// Release drops a claim whose request failed so the client may retry.
func (s *RedisIdempotencyStore) Release(ctx context.Context, scope, key string) error {
	return s.client.Del(ctx, idempotencyKey(scope, key)).Err()
}
