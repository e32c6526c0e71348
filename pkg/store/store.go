// Package store holds the in-process registries jobhub keeps per session
// and per storage scope, plus the adjustable clock that time-dependent
// components (draft timestamps, snapshot countdowns, session expiry) read.
package store

import (
	"cmp"
	"slices"
	"sync"

	"github.com/google/uuid"
)

type slot[T any] struct {
	seq   uint64
	value T
}

// Store is a concurrency-safe registry of T keyed by ID. Listing follows
// the order in which IDs were first registered.
type Store[T any] struct {
	mu     sync.RWMutex
	slots  map[string]slot[T]
	seq    uint64
	prefix string
}

// New creates an empty Store. Generated IDs look like "{prefix}_{uuid}".
func New[T any](prefix string) *Store[T] {
	return &Store[T]{slots: make(map[string]slot[T]), prefix: prefix}
}

// NextID returns a fresh random ID. It does not reserve it.
func (s *Store[T]) NextID() string {
	return s.prefix + "_" + uuid.NewString()
}

// Set registers value under id, keeping its original position when id is
// already present.
func (s *Store[T]) Set(id string, value T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(id, value)
}

func (s *Store[T]) setLocked(id string, value T) {
	sl, ok := s.slots[id]
	if !ok {
		s.seq++
		sl.seq = s.seq
	}
	sl.value = value
	s.slots[id] = sl
}

// Get returns the value registered under id.
func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.slots[id]
	return sl.value, ok
}

// LoadOrCreate returns the value under id, or registers the result of
// create when id is absent. create runs under the store lock at most once
// per missing id. created reports whether create ran.
func (s *Store[T]) LoadOrCreate(id string, create func() T) (value T, created bool) {
	if v, ok := s.Get(id); ok {
		return v, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok := s.slots[id]; ok {
		return sl.value, false
	}
	value = create()
	s.setLocked(id, value)
	return value, true
}

// Delete removes id and reports whether it was present.
func (s *Store[T]) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.slots[id]; !ok {
		return false
	}
	delete(s.slots, id)
	return true
}

// DeleteFunc removes every entry match accepts and returns their IDs in
// registration order.
func (s *Store[T]) DeleteFunc(match func(id string, value T) bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for _, id := range s.orderLocked() {
		if match(id, s.slots[id].value) {
			delete(s.slots, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// List returns every value in registration order.
func (s *Store[T]) List() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.orderLocked()
	out := make([]T, len(ids))
	for i, id := range ids {
		out[i] = s.slots[id].value
	}
	return out
}

// Keys returns every ID in registration order.
func (s *Store[T]) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orderLocked()
}

// Count returns the number of entries.
func (s *Store[T]) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}

// Reset drops every entry.
func (s *Store[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.slots)
}

func (s *Store[T]) orderLocked() []string {
	ids := make([]string, 0, len(s.slots))
	for id := range s.slots {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		return cmp.Compare(s.slots[a].seq, s.slots[b].seq)
	})
	return ids
}
