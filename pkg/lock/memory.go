package lock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryLock is a Locker for single-instance deployments and tests.
type MemoryLock struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

// lockEntry exists only while the key is held or waited on. refs counts the
// holder plus every waiter.
type lockEntry struct {
	held     bool
	refs     int
	released chan struct{} // signals one waiter on release
}

func NewMemoryLock() *MemoryLock {
	return &MemoryLock{
		locks: make(map[string]*lockEntry),
	}
}

func (l *MemoryLock) ref(key string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.locks[key]
	if !ok {
		e = &lockEntry{released: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	return e
}

func (l *MemoryLock) unref(key string, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropLocked(key, e)
}

func (l *MemoryLock) dropLocked(key string, e *lockEntry) {
	e.refs--
	if e.refs == 0 && !e.held {
		delete(l.locks, key)
	}
}

func (l *MemoryLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	e := l.ref(key)
	for {
		if release, ok := l.tryHold(key, e, ttl); ok {
			return release, nil
		}
		select {
		case <-e.released:
		case <-ctx.Done():
			l.unref(key, e)
			return nil, fmt.Errorf("acquire lock for %s: %w", key, ctx.Err())
		}
	}
}

func (l *MemoryLock) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	e := l.ref(key)
	release, ok := l.tryHold(key, e, ttl)
	if !ok {
		l.unref(key, e)
	}
	return release, ok, nil
}

// tryHold takes the key for the caller. On success the caller's ref passes
// to the holder and is dropped by release.
func (l *MemoryLock) tryHold(key string, e *lockEntry, ttl time.Duration) (func(), bool) {
	l.mu.Lock()
	if e.held {
		l.mu.Unlock()
		return nil, false
	}
	e.held = true
	l.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	release := func() {
		once.Do(func() {
			close(done)
			l.mu.Lock()
			e.held = false
			l.dropLocked(key, e)
			l.mu.Unlock()
			select {
			case e.released <- struct{}{}:
			default:
			}
		})
	}

	// ttl bounds how long a forgotten holder can block the key
	if ttl > 0 {
		go func() {
			timer := time.NewTimer(ttl)
			defer timer.Stop()
			select {
			case <-timer.C:
				release()
			case <-done:
			}
		}()
	}
	return release, true
}

// size reports how many keys are currently tracked.
func (l *MemoryLock) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
