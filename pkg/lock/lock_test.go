package lock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"propman-be/internal/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLock(t *testing.T) (*RedisLock, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	l := NewRedisLock(client, "test:", logger.NewNopLogger())
	l.retryInterval = 5 * time.Millisecond
	return l, mr
}

func lockers(t *testing.T) map[string]Locker {
	rl, _ := newRedisLock(t)
	return map[string]Locker{
		"memory": NewMemoryLock(),
		"redis":  rl,
	}
}

func TestTryAcquire(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			release, ok, err := l.TryAcquire(ctx, "acct-1", time.Minute)
			require.NoError(t, err)
			require.True(t, ok)

			_, ok, err = l.TryAcquire(ctx, "acct-1", time.Minute)
			require.NoError(t, err)
			assert.False(t, ok, "second holder must be refused")

			other, ok, err := l.TryAcquire(ctx, "acct-2", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok, "keys are independent")
			other()

			release()
			release()

			again, ok, err := l.TryAcquire(ctx, "acct-1", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)
			again()
		})
	}
}

func TestTryAcquire_Concurrent(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			var winners int32
			var wg sync.WaitGroup
			start := make(chan struct{})
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					_, ok, err := l.TryAcquire(context.Background(), "acct", time.Minute)
					if err == nil && ok {
						atomic.AddInt32(&winners, 1)
					}
				}()
			}
			close(start)
			wg.Wait()
			assert.Equal(t, int32(1), winners)
		})
	}
}

func TestAcquire_WaitsForRelease(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			release, err := l.Acquire(context.Background(), "acct", time.Minute)
			require.NoError(t, err)

			go func() {
				time.Sleep(20 * time.Millisecond)
				release()
			}()

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			second, err := l.Acquire(ctx, "acct", time.Minute)
			require.NoError(t, err)
			second()
		})
	}
}

func TestAcquire_ContextCancelled(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			release, _, err := l.TryAcquire(context.Background(), "acct", time.Minute)
			require.NoError(t, err)
			defer release()

			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()
			_, err = l.Acquire(ctx, "acct", time.Minute)
			assert.ErrorIs(t, err, context.DeadlineExceeded)
		})
	}
}

func TestMemoryLock_TTLExpiry(t *testing.T) {
	l := NewMemoryLock()
	_, ok, _ := l.TryAcquire(context.Background(), "acct", 10*time.Millisecond)
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		release, ok, _ := l.TryAcquire(context.Background(), "acct", time.Minute)
		if ok {
			release()
		}
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestRedisLock_ExpiredHolderCannotReleaseNewOwner(t *testing.T) {
	l, mr := newRedisLock(t)
	ctx := context.Background()

	stale, ok, err := l.TryAcquire(ctx, "acct", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	fresh, ok, err := l.TryAcquire(ctx, "acct", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	stale()
	assert.True(t, mr.Exists("test:acct"), "stale release must not delete the new owner's key")

	fresh()
	assert.False(t, mr.Exists("test:acct"))
}

func TestRedisLock_RequiresTTL(t *testing.T) {
	l, _ := newRedisLock(t)
	_, _, err := l.TryAcquire(context.Background(), "acct", 0)
	assert.Error(t, err)
}

func TestMemoryLock_DropsIdleEntries(t *testing.T) {
	l := NewMemoryLock()
	ctx := context.Background()

	release, ok, _ := l.TryAcquire(ctx, "acct-1", time.Minute)
	require.True(t, ok)
	_, ok, _ = l.TryAcquire(ctx, "acct-1", time.Minute)
	require.False(t, ok)
	assert.Equal(t, 1, l.size())

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err := l.Acquire(waitCtx, "acct-1", time.Minute)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, l.size(), "the holder keeps the entry")

	release()
	assert.Zero(t, l.size())

	for i := 0; i < 100; i++ {
		r, err := l.Acquire(ctx, fmt.Sprintf("acct-%d", i), time.Minute)
		require.NoError(t, err)
		r()
	}
	assert.Zero(t, l.size())

	_, ok, _ = l.TryAcquire(ctx, "expiring", 10*time.Millisecond)
	require.True(t, ok)
	assert.Eventually(t, func() bool { return l.size() == 0 }, time.Second, 5*time.Millisecond)
}

type warnCounter struct {
	mu    sync.Mutex
	warns []string
}

func (w *warnCounter) Debug(module, message string, details map[string]interface{}) {}
func (w *warnCounter) Info(module, message string, details map[string]interface{})  {}
func (w *warnCounter) Error(module, message string, details map[string]interface{}) {}
func (w *warnCounter) Sync() error                                                  { return nil }

func (w *warnCounter) Warn(module, message string, details map[string]interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.warns = append(w.warns, module+": "+message)
}

func TestRedisLock_ReleaseFailureIsLogged(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	log := &warnCounter{}
	l := NewRedisLock(client, "test:", log)

	release, ok, err := l.TryAcquire(context.Background(), "acct", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	mr.Close()
	release()

	log.mu.Lock()
	defer log.mu.Unlock()
	assert.Equal(t, []string{"LOCK: Failed to release lock"}, log.warns)
}
