package audit

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps entries in process. It is used by tests and local runs without a database.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]Entry)}
}

func (s *MemoryStore) Append(_ context.Context, entries ...Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		e.Sequence = int64(len(s.entries[e.DocumentID]) + 1)
		s.entries[e.DocumentID] = append(s.entries[e.DocumentID], e)
	}
	return nil
}

func (s *MemoryStore) List(_ context.Context, documentID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.entries[documentID]), nil
}

var _ Store = (*MemoryStore)(nil)
