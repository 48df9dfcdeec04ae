package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only when this holder still owns it,
// so a lease that expired and was reacquired elsewhere is never released by
// the old holder.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
end
return 0`

// SweepLock is a Redis lease that elects one engine replica to run each
// sweep. A nil receiver or missing client always grants the lock, so a
// single-instance deployment works without Redis.
type SweepLock struct {
	client *redis.Client
	key    string
	holder string
}

// NewSweepLock builds the lock over a shared key.
func NewSweepLock(r *Redis, key string) *SweepLock {
	lock := &SweepLock{key: key, holder: uuid.NewString()}
	if r != nil {
		lock.client = r.Client
	}
	return lock
}

// TryLock attempts to take the lease for ttl. Returns false when another
// replica holds it.
func (l *SweepLock) TryLock(ctx context.Context, ttl time.Duration) (bool, error) {
	if l == nil || l.client == nil {
		return true, nil
	}
	return l.client.SetNX(ctx, l.key, l.holder, ttl).Result()
}

// Unlock releases the lease if this instance still holds it.
func (l *SweepLock) Unlock(ctx context.Context) error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Eval(ctx, releaseScript, []string{l.key}, l.holder).Err()
}
