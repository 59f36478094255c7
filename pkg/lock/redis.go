package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"propman-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultRetryInterval = 50 * time.Millisecond

// releaseScript deletes the key only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock implements Locker with SET NX PX and a compare-and-delete
// release. The ttl is mandatory here: a crashed holder must not pin the key.
type RedisLock struct {
	client        redis.UniversalClient
	prefix        string
	retryInterval time.Duration
	logger        logger.ILogger
}

func NewRedisLock(client redis.UniversalClient, prefix string, log logger.ILogger) *RedisLock {
	return &RedisLock{
		client:        client,
		prefix:        prefix,
		retryInterval: defaultRetryInterval,
		logger:        log,
	}
}

func (l *RedisLock) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if ttl <= 0 {
		return nil, false, fmt.Errorf("redis lock for %s: ttl must be positive", key)
	}
	redisKey := l.prefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("try acquire lock for %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return l.releaser(redisKey, token), true, nil
}

func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	ticker := time.NewTicker(l.retryInterval)
	defer ticker.Stop()

	for {
		release, ok, err := l.TryAcquire(ctx, key, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return release, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock for %s: %w", key, ctx.Err())
		}
	}
}

func (l *RedisLock) releaser(redisKey, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			// the caller's context may already be cancelled
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
				// the key stays until its ttl runs out
				l.logger.Warn("LOCK", "Failed to release lock", map[string]interface{}{
					"key":   redisKey,
					"error": err.Error(),
				})
			}
		})
	}
}
