// Package storage persists accepted listing records. Every backend is
// idempotent on the record's content id.
package storage

import (
	"context"
	"sync"

	"github.com/bananahana720/RE-analysis-generator-sub002/internal/domain"
)

// Backend names accepted by Config.Backend.
const (
	BackendMemory        = "memory"
	BackendElasticsearch = "elasticsearch"
	BackendPostgres      = "postgres"
)

// Repository stores records. Storing the same content twice yields the
// same id and a single stored record.
type Repository interface {
	Store(ctx context.Context, record domain.Record) (string, error)
	Get(ctx context.Context, contentID string) (*domain.Record, error)
}

// Config selects the storage backend.
type Config struct {
	Backend string `env:"STORAGE_BACKEND" yaml:"backend"`
}

// WithDefaults returns a copy of c with zero fields filled in.
func (c Config) WithDefaults() Config {
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
	return c
}

// MemoryRepository keeps records in a map.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]domain.Record
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]domain.Record)}
}

// Store implements Repository. The first record stored under an id wins.
func (r *MemoryRepository) Store(_ context.Context, record domain.Record) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[record.ContentID]; !exists {
		r.records[record.ContentID] = record
	}
	return record.ContentID, nil
}

// Get implements Repository.
func (r *MemoryRepository) Get(_ context.Context, contentID string) (*domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[contentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

// Len returns the number of stored records.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// All returns every stored record, in no particular order.
func (r *MemoryRepository) All() []domain.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out
}
