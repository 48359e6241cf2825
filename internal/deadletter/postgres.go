package deadletter

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/bananahana720/RE-analysis-generator-sub002/internal/domain"
)

var entryColumns = []string{
	"id", "item_id", "source", "payload", "last_error", "error_code",
	"attempt_count", "first_seen_at", "enqueued_at", "context",
}

// entryContext is the diagnostic context stored alongside an entry.
type entryContext struct {
	Extraction *domain.ExtractionResult  `json:"extraction,omitempty"`
	Validation *domain.ValidationOutcome `json:"validation,omitempty"`
}

type entryRow struct {
	ID           string    `db:"id"`
	ItemID       string    `db:"item_id"`
	Source       string    `db:"source"`
	Payload      []byte    `db:"payload"`
	LastError    string    `db:"last_error"`
	ErrorCode    string    `db:"error_code"`
	AttemptCount int       `db:"attempt_count"`
	FirstSeenAt  time.Time `db:"first_seen_at"`
	EnqueuedAt   time.Time `db:"enqueued_at"`
	Context      []byte    `db:"context"`
}

func (r *entryRow) entry() (domain.DeadLetterEntry, error) {
	e := domain.DeadLetterEntry{
		ID:           r.ID,
		ItemID:       r.ItemID,
		Source:       r.Source,
		LastError:    r.LastError,
		ErrorCode:    domain.ErrorCode(r.ErrorCode),
		AttemptCount: r.AttemptCount,
		FirstSeenAt:  r.FirstSeenAt,
		EnqueuedAt:   r.EnqueuedAt,
	}
	if err := json.Unmarshal(r.Payload, &e.Payload); err != nil {
		return e, fmt.Errorf("unmarshal payload of %s: %w", r.ID, err)
	}
	if len(r.Context) > 0 {
		var c entryContext
		if err := json.Unmarshal(r.Context, &c); err != nil {
			return e, fmt.Errorf("unmarshal context of %s: %w", r.ID, err)
		}
		e.Extraction, e.Validation = c.Extraction, c.Validation
	}
	return e, nil
}

// PostgresStore keeps entries in a dead_letter_queue table.
type PostgresStore struct {
	db    *sqlx.DB
	table string
	psql  sq.StatementBuilderType
}

// NewPostgresStore creates a store on table.
func NewPostgresStore(db *sqlx.DB, table string) *PostgresStore {
	return &PostgresStore{
		db:    db,
		table: table,
		psql:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Enqueue implements Store.
func (s *PostgresStore) Enqueue(ctx context.Context, entry *domain.DeadLetterEntry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	diag, err := json.Marshal(entryContext{Extraction: entry.Extraction, Validation: entry.Validation})
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}

	query, args, err := s.psql.Insert(s.table).
		Columns(entryColumns...).
		Values(entry.ID, entry.ItemID, entry.Source, payload, entry.LastError, string(entry.ErrorCode),
			entry.AttemptCount, entry.FirstSeenAt, entry.EnqueuedAt, diag).
		ToSql()
	if err != nil {
		return fmt.Errorf("build enqueue query: %w", err)
	}
	if _, err = s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("enqueue DLQ: %w", err)
	}
	return nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]domain.DeadLetterEntry, error) {
	b := s.psql.Select(entryColumns...).From(s.table).OrderBy("enqueued_at", "id")
	if len(filter.IDs) > 0 {
		b = b.Where(sq.Eq{"id": filter.IDs})
	}
	if filter.Source != "" {
		b = b.Where(sq.Eq{"source": filter.Source})
	}
	if filter.ErrorCode != "" {
		b = b.Where(sq.Eq{"error_code": string(filter.ErrorCode)})
	}
	if filter.Limit > 0 {
		b = b.Limit(uint64(filter.Limit))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}
	var rows []entryRow
	if err = s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list DLQ: %w", err)
	}

	out := make([]domain.DeadLetterEntry, 0, len(rows))
	for i := range rows {
		e, convErr := rows[i].entry()
		if convErr != nil {
			return nil, convErr
		}
		out = append(out, e)
	}
	return out, nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.DeadLetterEntry, error) {
	query, args, err := s.psql.Select(entryColumns...).From(s.table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get query: %w", err)
	}
	var row entryRow
	err = s.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get DLQ entry: %w", err)
	}
	e, err := row.entry()
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Remove implements Store.
func (s *PostgresStore) Remove(ctx context.Context, id string) error {
	query, args, err := s.psql.Delete(s.table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build remove query: %w", err)
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("remove from DLQ: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("remove from DLQ %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

type groupCount struct {
	Key   string `db:"key"`
	Count int64  `db:"count"`
}

// Stats implements Store.
func (s *PostgresStore) Stats(ctx context.Context) (*domain.DLQStats, error) {
	stats := &domain.DLQStats{
		BySource:    map[string]int64{},
		ByErrorCode: map[domain.ErrorCode]int64{},
	}

	query, args, err := s.psql.Select("COUNT(*)", "MIN(enqueued_at)").From(s.table).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build stats query: %w", err)
	}
	var oldest sql.NullTime
	if err = s.db.QueryRowxContext(ctx, query, args...).Scan(&stats.Total, &oldest); err != nil {
		return nil, fmt.Errorf("get DLQ stats: %w", err)
	}
	if oldest.Valid {
		stats.OldestEntry = &oldest.Time
	}

	bySource, err := s.countBy(ctx, "source")
	if err != nil {
		return nil, err
	}
	for _, g := range bySource {
		stats.BySource[g.Key] = g.Count
	}
	byCode, err := s.countBy(ctx, "error_code")
	if err != nil {
		return nil, err
	}
	for _, g := range byCode {
		stats.ByErrorCode[domain.ErrorCode(g.Key)] = g.Count
	}
	return stats, nil
}

func (s *PostgresStore) countBy(ctx context.Context, column string) ([]groupCount, error) {
	query, args, err := s.psql.Select(column+" AS key", "COUNT(*) AS count").
		From(s.table).
		GroupBy(column).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build count by %s: %w", column, err)
	}
	var groups []groupCount
	if err = s.db.SelectContext(ctx, &groups, query, args...); err != nil {
		return nil, fmt.Errorf("count DLQ by %s: %w", column, err)
	}
	return groups, nil
}

// Count implements Store.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	query, args, err := s.psql.Select("COUNT(*)").From(s.table).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}
	var n int64
	if err = s.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, fmt.Errorf("count DLQ: %w", err)
	}
	return n, nil
}
