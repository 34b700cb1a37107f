package redis

import (
	"context"
	"fmt"
	"time"

	"payment-ledger/internal/core/ports"

	goredis "github.com/redis/go-redis/v9"
)

// RateLimitStore implements ports.RateLimitStore with fixed-window counters.
type RateLimitStore struct {
	client *goredis.Client
	prefix string
}

// NewRateLimitStore creates a new Redis-backed rate limit store.
func NewRateLimitStore(client *goredis.Client) *RateLimitStore {
	return &RateLimitStore{
		client: client,
		prefix: "ledger:ratelimit:",
	}
}

// Allow checks if a request is within the rate limit.
// The counter key is scoped by windowID = unix time / window, so each window starts from zero.
func (s *RateLimitStore) Allow(ctx context.Context, key string, limit int64, window time.Duration) (*ports.RateLimitResult, error) {
	windowSecs := int64(window.Seconds())
	if windowSecs < 1 {
		windowSecs = 1
	}
	windowID := time.Now().Unix() / windowSecs
	redisKey := fmt.Sprintf("%s%s:%d", s.prefix, key, windowID)

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis rate limit incr: %w", err)
	}

	// First hit of a new window owns the expiry.
	if count == 1 {
		if err := s.client.Expire(ctx, redisKey, window+time.Second).Err(); err != nil {
			return nil, fmt.Errorf("redis rate limit expire: %w", err)
		}
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return &ports.RateLimitResult{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   (windowID + 1) * windowSecs,
	}, nil
}
