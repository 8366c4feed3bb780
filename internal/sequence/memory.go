package sequence

import (
	"context"
	"sync"
)

// MemoryStore is a process-local Store used in tests and single-node development.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]int64)}
}

func (s *MemoryStore) Increment(_ context.Context, scope string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[scope]++
	return s.counters[scope], nil
}

func (s *MemoryStore) Current(_ context.Context, scope string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[scope], nil
}

func (s *MemoryStore) Set(_ context.Context, scope string, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[scope] = value
	return nil
}
