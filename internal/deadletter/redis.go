package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/bananahana720/RE-analysis-generator-sub002/internal/domain"
)

// RedisStore keeps entries in a hash keyed by entry id, plus a list of ids
// in enqueue order.
type RedisStore struct {
	client   *redis.Client
	entries  string
	orderKey string
}

// NewRedisStore creates a store under keyPrefix.
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	return &RedisStore{
		client:   client,
		entries:  keyPrefix + ":entries",
		orderKey: keyPrefix + ":order",
	}
}

// Enqueue implements Store.
func (s *RedisStore) Enqueue(ctx context.Context, entry *domain.DeadLetterEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal DLQ entry: %w", err)
	}

	created, err := s.client.HSetNX(ctx, s.entries, entry.ID, data).Result()
	if err != nil {
		return fmt.Errorf("enqueue DLQ: %w", err)
	}
	if !created {
		return fmt.Errorf("enqueue DLQ: entry %s already exists", entry.ID)
	}

	if pushErr := s.client.RPush(ctx, s.orderKey, entry.ID).Err(); pushErr != nil {
		s.client.HDel(ctx, s.entries, entry.ID)
		return fmt.Errorf("enqueue DLQ order: %w", pushErr)
	}
	return nil
}

// List implements Store.
func (s *RedisStore) List(ctx context.Context, filter ListFilter) ([]domain.DeadLetterEntry, error) {
	all, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.DeadLetterEntry, 0, len(all))
	for i := range all {
		if !filter.Matches(&all[i]) {
			continue
		}
		out = append(out, all[i])
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, id string) (*domain.DeadLetterEntry, error) {
	data, err := s.client.HGet(ctx, s.entries, id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get DLQ entry: %w", err)
	}
	var e domain.DeadLetterEntry
	if unmarshalErr := json.Unmarshal([]byte(data), &e); unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal DLQ entry %s: %w", id, unmarshalErr)
	}
	return &e, nil
}

// Remove implements Store.
func (s *RedisStore) Remove(ctx context.Context, id string) error {
	var deleted *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.HDel(ctx, s.entries, id)
		pipe.LRem(ctx, s.orderKey, 1, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove from DLQ: %w", err)
	}
	if deleted.Val() == 0 {
		return fmt.Errorf("remove from DLQ %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Stats implements Store.
func (s *RedisStore) Stats(ctx context.Context) (*domain.DLQStats, error) {
	all, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	return statsOf(all), nil
}

// Count implements Store.
func (s *RedisStore) Count(ctx context.Context) (int64, error) {
	n, err := s.client.HLen(ctx, s.entries).Result()
	if err != nil {
		return 0, fmt.Errorf("count DLQ: %w", err)
	}
	return n, nil
}

func (s *RedisStore) all(ctx context.Context) ([]domain.DeadLetterEntry, error) {
	ids, err := s.client.LRange(ctx, s.orderKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list DLQ order: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	values, err := s.client.HMGet(ctx, s.entries, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("list DLQ entries: %w", err)
	}

	out := make([]domain.DeadLetterEntry, 0, len(values))
	for i, v := range values {
		data, ok := v.(string)
		if !ok {
			// Order list and hash drifted apart; the hash is authoritative.
			continue
		}
		var e domain.DeadLetterEntry
		if unmarshalErr := json.Unmarshal([]byte(data), &e); unmarshalErr != nil {
			return nil, fmt.Errorf("unmarshal DLQ entry %s: %w", ids[i], unmarshalErr)
		}
		out = append(out, e)
	}
	return out, nil
}
