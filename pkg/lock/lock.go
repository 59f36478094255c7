package lock

import (
	"context"
	"time"
)

// Locker provides account-scoped mutual exclusion across requests and, with
// the Redis backend, across instances.
type Locker interface {
	// Acquire blocks until the lock for key is held or ctx is done.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
	// TryAcquire returns acquired=false immediately when key is already held.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}
