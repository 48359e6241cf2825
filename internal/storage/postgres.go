package storage

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

// PostgresRepository keeps records in the listings table.
type PostgresRepository struct {
	db   *sqlx.DB
	psql sq.StatementBuilderType
}

// NewPostgresRepository creates a repository on db.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{
		db:   db,
		psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

type listingRow struct {
	ContentID   string    `db:"content_id"`
	ItemID      string    `db:"item_id"`
	Source      string    `db:"source"`
	Method      string    `db:"method"`
	Confidence  float64   `db:"confidence"`
	Listing     []byte    `db:"listing"`
	ExtractedAt time.Time `db:"extracted_at"`
}

// Store implements Repository. A conflicting content id is left as is.
func (r *PostgresRepository) Store(ctx context.Context, record domain.Record) (string, error) {
	listing, err := json.Marshal(record.Listing)
	if err != nil {
		return "", fmt.Errorf("%w: marshal listing: %w", domain.ErrStorage, err)
	}

	query, args, err := r.psql.Insert("listings").
		Columns("content_id", "item_id", "source", "method", "confidence", "listing", "extracted_at").
		Values(record.ContentID, record.ItemID, record.Source, string(record.Method), record.Confidence, listing, record.ExtractedAt).
		Suffix("ON CONFLICT (content_id) DO NOTHING").
		ToSql()
	if err != nil {
		return "", fmt.Errorf("%w: build insert: %w", domain.ErrStorage, err)
	}
	if _, err = r.db.ExecContext(ctx, query, args...); err != nil {
		return "", fmt.Errorf("%w: insert %s: %w", domain.ErrStorage, record.ContentID, err)
	}
	return record.ContentID, nil
}

// Get implements Repository.
func (r *PostgresRepository) Get(ctx context.Context, contentID string) (*domain.Record, error) {
	query, args, err := r.psql.
		Select("content_id", "item_id", "source", "method", "confidence", "listing", "extracted_at").
		From("listings").
		Where(sq.Eq{"content_id": contentID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: build select: %w", domain.ErrStorage, err)
	}

	var row listingRow
	err = r.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", domain.ErrStorage, contentID, err)
	}

	rec := domain.Record{
		ContentID:   row.ContentID,
		ItemID:      row.ItemID,
		Source:      row.Source,
		Method:      domain.Method(row.Method),
		Confidence:  row.Confidence,
		ExtractedAt: row.ExtractedAt,
	}
	if unmarshalErr := json.Unmarshal(row.Listing, &rec.Listing); unmarshalErr != nil {
		return nil, fmt.Errorf("%w: unmarshal listing %s: %w", domain.ErrStorage, contentID, unmarshalErr)
	}
	return &rec, nil
}
