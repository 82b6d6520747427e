// Package keylock provides per-key mutual exclusion.
//
// It serialises read-merge-write cycles on the same guild document within one
// process. Locks are reference counted and released from the map when the
// last holder unlocks, so the map does not grow with the number of keys ever
// seen. It offers no protection against other processes.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Map is a set of mutexes keyed by K. The zero value is ready to use.
type Map[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*entry
}

// Lock blocks until key is free and returns the function that releases it.
// The returned function must be called exactly once.
func (m *Map[K]) Lock(key K) (unlock func()) {
	m.mu.Lock()
	if m.locks == nil {
		m.locks = make(map[K]*entry)
	}
	e, ok := m.locks[key]
	if !ok {
		e = &entry{}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()

			m.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(m.locks, key)
			}
			m.mu.Unlock()
		})
	}
}

// Len returns the number of keys currently held or waited on.
func (m *Map[K]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
