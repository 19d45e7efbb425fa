// Package locking provides the per-firm mutual-exclusion scope that keeps
// growth-charge proposals serialized.
package locking

import (
	"context"
	"sync"
)

// FirmLocker serializes critical sections per firm. Locks for different
// firms never contend.
type FirmLocker interface {
	Lock(ctx context.Context, firmID string) (release func(), err error)
}

// KeyedMutex is an in-process FirmLocker backed by one mutex per key.
// Suitable when a single replica owns the charge tables.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*entry)}
}

func (k *KeyedMutex) Lock(ctx context.Context, firmID string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	k.mu.Lock()
	e, ok := k.locks[firmID]
	if !ok {
		e = &entry{}
		k.locks[firmID] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	release := func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, firmID)
		}
		k.mu.Unlock()
	}
	return release, nil
}
