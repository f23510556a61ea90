// Package ctxsync provides synchronization primitives whose blocking calls
// can be abandoned through a [context.Context].
package ctxsync

import (
	"context"
	"math"

	"golang.org/x/sync/semaphore"
)

// writerWeight is the semaphore weight taken by a writer. Readers take one.
const writerWeight = math.MaxInt32

// RWMutex is a reader/writer mutual exclusion lock. Waiters are served in
// the order they called Lock or RLock, so a waiting writer is not starved by
// a stream of readers.
type RWMutex struct {
	sem *semaphore.Weighted
}

// NewRWMutex creates a new unlocked RWMutex.
func NewRWMutex() *RWMutex {
	return &RWMutex{sem: semaphore.NewWeighted(writerWeight)}
}

// Lock locks m for writing. It blocks until the lock is available or ctx is
// done, in which case it returns the context error and m is left unchanged.
func (m *RWMutex) Lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.sem.Acquire(ctx, writerWeight)
}

// TryLock tries to lock m for writing and reports whether it succeeded.
func (m *RWMutex) TryLock() bool {
	return m.sem.TryAcquire(writerWeight)
}

// Unlock unlocks m for writing. It panics if m is not locked for writing.
func (m *RWMutex) Unlock() {
	m.sem.Release(writerWeight)
}

// RLock locks m for reading, with the same cancellation rules as Lock.
func (m *RWMutex) RLock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.sem.Acquire(ctx, 1)
}

// TryRLock tries to lock m for reading and reports whether it succeeded.
func (m *RWMutex) TryRLock() bool {
	return m.sem.TryAcquire(1)
}

// RUnlock undoes a single RLock call.
func (m *RWMutex) RUnlock() {
	m.sem.Release(1)
}
