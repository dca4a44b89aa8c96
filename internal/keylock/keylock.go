// Package keylock serializes work per key inside one process.
package keylock

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// Map hands out one binary semaphore per key. Entries are dropped once no
// goroutine holds or waits for them, so the map only grows with contention.
type Map struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *Map {
	return &Map{entries: make(map[string]*entry)}
}

// Lock blocks until key is free or ctx is done. The returned func releases it.
func (m *Map) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		m.drop(key, e)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			m.drop(key, e)
		})
	}, nil
}

func (m *Map) drop(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
}

// Len reports how many keys are currently held or awaited.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
