package locks

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// WriteLock is a mutual exclusion lock whose Lock can be abandoned through
// a context. The zero value is not usable; create one with NewWriteLock.
type WriteLock struct {
	semaphore *semaphore.Weighted
}

// NewWriteLock returns an unlocked WriteLock.
func NewWriteLock() *WriteLock {
	return &WriteLock{semaphore: semaphore.NewWeighted(1)}
}

// Lock blocks until the lock is acquired or ctx is done. It returns
// ctx.Err() in the latter case, in which case the lock is not held.
func (l *WriteLock) Lock(ctx context.Context) error {
	// A free lock is taken even if ctx is already done
	if l.semaphore.TryAcquire(1) {
		return nil
	}
	return l.semaphore.Acquire(ctx, 1)
}

// TryLock acquires the lock only if it is free.
func (l *WriteLock) TryLock() bool {
	return l.semaphore.TryAcquire(1)
}

// Unlock releases the lock. Unlocking an unlocked WriteLock panics.
func (l *WriteLock) Unlock() {
	l.semaphore.Release(1)
}
