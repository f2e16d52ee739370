package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

var heldScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return 1
end
return 0
`)

// RedisLocker holds leases as Redis keys set with NX and a millisecond TTL
type RedisLocker struct {
	client redis.UniversalClient
}

// NewRedisLocker creates a locker over client
func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client}
}

// TryAcquire polls SET NX until wait elapses
func (r *RedisLocker) TryAcquire(ctx context.Context, name string, wait, hold time.Duration) (string, error) {
	token := uuid.NewString()
	err := poll(ctx, wait, func() (bool, error) {
		ok, err := r.client.SetNX(ctx, name, token, hold).Result()
		if err != nil {
			return false, fmt.Errorf("failed to acquire %s: %w", name, err)
		}
		return ok, nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// Release deletes name only if token still owns it
func (r *RedisLocker) Release(ctx context.Context, name, token string) error {
	if err := releaseScript.Run(ctx, r.client, []string{name}, token).Err(); err != nil {
		return fmt.Errorf("failed to release %s: %w", name, err)
	}
	return nil
}

// IsHeld reports whether token still owns name
func (r *RedisLocker) IsHeld(ctx context.Context, name, token string) (bool, error) {
	n, err := heldScript.Run(ctx, r.client, []string{name}, token).Int()
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", name, err)
	}
	return n == 1, nil
}
