// Package locks provides the per-schedule critical section around slot
// selection and reset. Slot availability is derived state, so two concurrent
// selections against one schedule could both observe "available" before
// either commits; the lock serializes them. The partial unique index on
// booked slots remains the hard backstop.
package locks

import (
	"context"
	"sync"
)

// Locker acquires an exclusive lock for a key and returns its release func.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Keyed is an in-process Locker: one mutex per key with reference counting so
// idle entries are dropped. Sufficient for single-instance deployments.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyed() *Keyed {
	return &Keyed{entries: map[string]*entry{}}
}

func (k *Keyed) Lock(_ context.Context, key string) (func(), error) {
	k.mu.Lock()
	e := k.entries[key]
	if e == nil {
		e = &entry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			e.mu.Unlock()
			k.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(k.entries, key)
			}
			k.mu.Unlock()
		})
	}
	return release, nil
}
