// Package slotlock serializes work per key. Different keys never contend.
package slotlock

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrLockTimeout is returned when the lock could not be acquired in time.
// The guarded function does not run.
var ErrLockTimeout = errors.New("lock acquisition timed out")

type Manager struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

func New() *Manager {
	return &Manager{locks: make(map[string]*entry)}
}

// WithLock runs fn while holding the exclusive lock for key. A positive
// timeout bounds only the wait for the lock; once held, fn runs to completion
// and the lock is released even if fn panics. A non-positive timeout waits
// until ctx is done.
func (m *Manager) WithLock(ctx context.Context, key string, timeout time.Duration, fn func() error) error {
	e := m.acquireRef(key)
	defer m.releaseRef(key, e)

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := e.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrLockTimeout
	}
	defer e.sem.Release(1)

	return fn()
}

// Held reports how many keys currently have holders or waiters.
func (m *Manager) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func (m *Manager) acquireRef(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		m.locks[key] = e
	}
	e.refs++
	return e
}

func (m *Manager) releaseRef(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
}
