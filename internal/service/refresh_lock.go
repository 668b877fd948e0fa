package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/prperemyshlev/wearable-sync/pkg/database"
)

// releaseScript deletes the lock only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RefreshLock is a Redis lock serialising token refreshes across processes
type RefreshLock struct {
	redis *database.Redis
	ttl   time.Duration
	wait  time.Duration
	poll  time.Duration
}

// NewRefreshLock creates a refresh lock. ttl bounds how long a crashed holder
// blocks others; wait bounds how long Acquire polls for a held lock.
func NewRefreshLock(redis *database.Redis, ttl, wait time.Duration) *RefreshLock {
	return &RefreshLock{redis: redis, ttl: ttl, wait: wait, poll: 50 * time.Millisecond}
}

// Acquire takes the lock for key, polling until wait elapses. acquired is
// false when another holder kept it for the whole wait. The returned release
// is always safe to call.
func (l *RefreshLock) Acquire(ctx context.Context, key string) (release func(), acquired bool, err error) {
	noop := func() {}
	if l == nil || l.redis == nil {
		return noop, true, nil
	}

	redisKey := fmt.Sprintf("refresh_lock:%s", key)
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.redis.Client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return noop, false, fmt.Errorf("failed to acquire refresh lock: %w", err)
		}
		if ok {
			return func() {
				// Released on a fresh context so a cancelled request still unlocks.
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
				defer cancel()
				_ = releaseScript.Run(releaseCtx, l.redis.Client, []string{redisKey}, token).Err()
			}, true, nil
		}

		if !time.Now().Before(deadline) {
			return noop, false, nil
		}

		select {
		case <-ctx.Done():
			return noop, false, ctx.Err()
		case <-time.After(l.poll):
		}
	}
}
