// Package keylock hands out one mutual-exclusion lock per key.
// Locks are created on first use and never removed.
package keylock

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Key identifies the owner of a settings document: the document kind and the
// entity (guild, user, ...) id.
type Key struct {
	Kind string
	ID   uint64
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d", k.Kind, k.ID)
}

// Table maps keys to their locks. The zero value is not usable; use New.
type Table[K comparable] struct {
	mu    sync.RWMutex
	locks map[K]*semaphore.Weighted
}

func New[K comparable]() *Table[K] {
	return &Table[K]{
		locks: make(map[K]*semaphore.Weighted),
	}
}

// Acquire blocks until the lock for key is held or ctx is done.
// The returned release func must be called exactly once.
func (t *Table[K]) Acquire(ctx context.Context, key K) (release func(), err error) {
	sem := t.lock(key)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire %v: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() { sem.Release(1) })
	}, nil
}

// Len returns the number of keys that have been locked at least once.
func (t *Table[K]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.locks)
}

// lock returns the semaphore for key, creating it if needed. The table lock is
// only held for the lookup; waiting on the key happens outside it.
func (t *Table[K]) lock(key K) *semaphore.Weighted {
	t.mu.RLock()
	sem, ok := t.locks[key]
	t.mu.RUnlock()
	if ok {
		return sem
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if sem, ok := t.locks[key]; ok {
		return sem
	}
	sem = semaphore.NewWeighted(1)
	t.locks[key] = sem
	return sem
}
