package redisclient

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real server only when REDIS_TEST_ADDR is set.
func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rdb, err := NewRedisClient(context.Background(), Options{Addr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisPhysicianLocker(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	l := NewRedisPhysicianLocker(rdb, 2*time.Second)
	id := uuid.New()

	err := l.WithPhysicianLock(ctx, id, func(ctx context.Context) error {
		exists, err := rdb.Exists(ctx, lockKey(id)).Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), exists)

		// a second holder is turned away instead of waiting
		nested := l.WithPhysicianLock(ctx, id, func(context.Context) error {
			t.Error("nested fn must not run")
			return nil
		})
		assert.ErrorIs(t, nested, ErrLockNotAcquired)

		// other physicians are unaffected
		return l.WithPhysicianLock(ctx, uuid.New(), func(context.Context) error { return nil })
	})
	require.NoError(t, err)

	exists, err := rdb.Exists(ctx, lockKey(id)).Result()
	require.NoError(t, err)
	assert.Zero(t, exists, "key is released after fn returns")
}

func TestRedisPhysicianLocker_ReleaseKeepsForeignToken(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	l := &redisPhysicianLocker{client: rdb, ttl: time.Second}
	key := lockKey(uuid.New())

	require.NoError(t, rdb.Set(ctx, key, "someone-else", time.Second).Err())
	require.NoError(t, l.release(ctx, key, "my-token"))

	val, err := rdb.Get(ctx, key).Result()
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val)
}
