// Package deadletter keeps work items that could not be processed, with the
// last error and enough context to inspect and replay them.
package deadletter

import (
	"context"
	"slices"
	"time"

	"github.com/bananahana720/RE-analysis-generator-sub002/internal/domain"
)

// Backend names accepted by Config.Backend.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Store is an append-only dead-letter queue. Entries leave only through
// Remove, which the replayer calls after a successful resubmission.
type Store interface {
	Enqueue(ctx context.Context, entry *domain.DeadLetterEntry) error
	List(ctx context.Context, filter ListFilter) ([]domain.DeadLetterEntry, error)
	Get(ctx context.Context, id string) (*domain.DeadLetterEntry, error)
	Remove(ctx context.Context, id string) error
	Stats(ctx context.Context) (*domain.DLQStats, error)
	Count(ctx context.Context) (int64, error)
}

// ListFilter narrows List. Zero fields match everything.
type ListFilter struct {
	IDs       []string         `form:"id"         json:"ids,omitempty"`
	Source    string           `form:"source"     json:"source,omitempty"`
	ErrorCode domain.ErrorCode `form:"error_code" json:"error_code,omitempty"`
	Limit     int              `form:"limit"      json:"limit,omitempty"`
}

// Matches reports whether e passes the filter, ignoring Limit.
func (f ListFilter) Matches(e *domain.DeadLetterEntry) bool {
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, e.ID) {
		return false
	}
	if f.Source != "" && e.Source != f.Source {
		return false
	}
	if f.ErrorCode != "" && e.ErrorCode != f.ErrorCode {
		return false
	}
	return true
}

// IsZero reports whether the filter has no selector. Limit is not a selector.
func (f ListFilter) IsZero() bool {
	return len(f.IDs) == 0 && f.Source == "" && f.ErrorCode == ""
}

// Config selects and tunes the store backend.
type Config struct {
	Backend string `env:"DLQ_BACKEND" yaml:"backend"`
	// KeyPrefix namespaces the Redis keys.
	KeyPrefix string `yaml:"key_prefix"`
	// Table is the Postgres table name.
	Table string `yaml:"table"`
}

// WithDefaults returns a copy of c with zero fields filled in.
func (c Config) WithDefaults() Config {
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "harvester:dlq"
	}
	if c.Table == "" {
		c.Table = "dead_letter_queue"
	}
	return c
}

// statsOf aggregates entries the same way for every backend that cannot
// push the aggregation down.
func statsOf(entries []domain.DeadLetterEntry) *domain.DLQStats {
	stats := &domain.DLQStats{
		BySource:    map[string]int64{},
		ByErrorCode: map[domain.ErrorCode]int64{},
	}
	var oldest time.Time
	for i := range entries {
		e := &entries[i]
		stats.Total++
		stats.BySource[e.Source]++
		stats.ByErrorCode[e.ErrorCode]++
		if oldest.IsZero() || e.EnqueuedAt.Before(oldest) {
			oldest = e.EnqueuedAt
		}
	}
	if !oldest.IsZero() {
		stats.OldestEntry = &oldest
	}
	return stats
}
