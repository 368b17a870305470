package storage

import "sync"

// Listener observes mutations of a single store. It is called after every
// Add and Remove with the key, the new value and whether a value is present
// (false on removal). Listeners run outside the store's write lock.
type Listener[V any] func(key string, value V, present bool)

// Store is one keyed artifact store of a transaction bank. Keys are opaque
// to the store; cross-store consistency for a transaction is the bank's job.
// Concurrent Add/Get/Remove on the same key are safe, last writer wins.
type Store[V any] struct {
	mu        sync.RWMutex
	entries   map[string]V
	listeners []Listener[V]
}

func NewStore[V any]() *Store[V] {
	return &Store[V]{
		entries: make(map[string]V),
	}
}

// Add inserts or overwrites the value for key.
func (s *Store[V]) Add(key string, value V) {
	s.mu.Lock()
	s.entries[key] = value
	listeners := s.listeners
	s.mu.Unlock()
	for _, notify := range listeners {
		notify(key, value, true)
	}
}

// Get returns the value for key and whether it is present.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.entries[key]
	return value, ok
}

// Remove deletes the entry for key, a no-op if absent.
func (s *Store[V]) Remove(key string) {
	s.mu.Lock()
	_, ok := s.entries[key]
	delete(s.entries, key)
	listeners := s.listeners
	s.mu.Unlock()
	if !ok {
		return
	}
	var zero V
	for _, notify := range listeners {
		notify(key, zero, false)
	}
}

// Register attaches a mutation observer. The listener slice is replaced on
// registration so that notification fan-out never holds the write lock.
func (s *Store[V]) Register(listener Listener[V]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	listeners := make([]Listener[V], len(s.listeners), len(s.listeners)+1)
	copy(listeners, s.listeners)
	s.listeners = append(listeners, listener)
}

// Len returns the number of stored entries.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
