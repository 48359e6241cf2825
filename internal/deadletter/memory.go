package deadletter

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/bananahana720/RE-analysis-generator-sub002/internal/domain"
)

// MemoryStore keeps entries in process, in enqueue order.
type MemoryStore struct {
	mu      sync.Mutex
	entries []domain.DeadLetterEntry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Enqueue implements Store.
func (s *MemoryStore) Enqueue(_ context.Context, entry *domain.DeadLetterEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(entry.ID) >= 0 {
		return fmt.Errorf("enqueue DLQ: entry %s already exists", entry.ID)
	}
	s.entries = append(s.entries, *entry)
	return nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]domain.DeadLetterEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.DeadLetterEntry, 0)
	for i := range s.entries {
		if !filter.Matches(&s.entries[i]) {
			continue
		}
		out = append(out, s.entries[i])
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*domain.DeadLetterEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil, domain.ErrNotFound
	}
	e := s.entries[i]
	return &e, nil
}

// Remove implements Store.
func (s *MemoryStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("remove from DLQ %s: %w", id, domain.ErrNotFound)
	}
	s.entries = slices.Delete(s.entries, i, i+1)
	return nil
}

// Stats implements Store.
func (s *MemoryStore) Stats(_ context.Context) (*domain.DLQStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return statsOf(s.entries), nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.entries)), nil
}

func (s *MemoryStore) indexOf(id string) int {
	return slices.IndexFunc(s.entries, func(e domain.DeadLetterEntry) bool { return e.ID == id })
}
