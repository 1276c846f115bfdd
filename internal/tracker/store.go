package tracker

import "sync"

// Store holds one tracker's published state. Snapshots are values, so
// readers never observe a half-applied update.
type Store[T any] struct {
	mu    sync.RWMutex
	state T
	subs  map[int]func(T)
	next  int
}

func NewStore[T any]() *Store[T] {
	return &Store[T]{subs: make(map[int]func(T))}
}

func (s *Store[T]) Snapshot() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers fn for every future snapshot. Call the returned
// function to unsubscribe.
func (s *Store[T]) Subscribe(fn func(T)) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// update applies mutate and notifies subscribers outside the lock.
func (s *Store[T]) update(mutate func(*T)) {
	s.mu.Lock()
	mutate(&s.state)
	snapshot := s.state
	subs := make([]func(T), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}
