package redis_test

import (
	"context"
	"testing"
	"time"

	"payment-ledger/internal/adapter/storage/redis"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitStore_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := redis.NewRateLimitStore(client)
	ctx := context.Background()

	t.Run("allows requests within limit", func(t *testing.T) {
		for i := int64(1); i <= 3; i++ {
			result, err := store.Allow(ctx, "actor-1:refunds", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, result.Allowed, "request %d should be allowed", i)
			assert.Equal(t, int64(3), result.Limit)
			assert.Equal(t, 3-i, result.Remaining)
		}
	})

	t.Run("blocks requests over limit", func(t *testing.T) {
		result, err := store.Allow(ctx, "actor-1:refunds", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, result.Allowed)
		assert.Equal(t, int64(0), result.Remaining)
	})

	t.Run("different keys are independent", func(t *testing.T) {
		result, err := store.Allow(ctx, "actor-2:refunds", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, int64(4), result.Remaining)
	})

	t.Run("reset after window expires", func(t *testing.T) {
		key := "actor-3:payments"
		_, err := store.Allow(ctx, key, 1, time.Minute)
		require.NoError(t, err)

		result, err := store.Allow(ctx, key, 1, time.Minute)
		require.NoError(t, err)
		assert.False(t, result.Allowed)

		mr.FastForward(61 * time.Second)

		result, err = store.Allow(ctx, key, 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	})

	t.Run("sets correct ResetAt", func(t *testing.T) {
		result, err := store.Allow(ctx, "actor-4:reads", 10, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Greater(t, result.ResetAt, time.Now().Unix()-1)
	})
}
