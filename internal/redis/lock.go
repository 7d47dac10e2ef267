// Package redisclient serializes writes to one physician's schedule. The
// Redis locker keys on lock:physician:<id> so every API replica contends on
// the same key; a holder that dies is released by the key's TTL. LocalLocker
// gives the same per-physician exclusion inside a single process.
package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("physician lock not acquired")
)

// Locker is used by the appointment service to serialize writes to one
// physician's schedule.
type Locker interface {
	WithPhysicianLock(ctx context.Context, physicianID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisPhysicianLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPhysicianLocker creates a locker that uses a per physician Redis key
func NewRedisPhysicianLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisPhysicianLocker{
		client: client,
		ttl:    ttl,
	}
}

func lockKey(physicianID uuid.UUID) string {
	return fmt.Sprintf("lock:physician:%s", physicianID.String())
}

func (l *redisPhysicianLocker) WithPhysicianLock(ctx context.Context, physicianID uuid.UUID, fn func(ctx context.Context) error) error {
	key := lockKey(physicianID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire physician lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		// release on a fresh context so a cancelled request still frees the key
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = l.release(relCtx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisPhysicianLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release physician lock: %w", err)
	}
	return nil
}
