package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidDeadLetterEntry is returned when creating a DLQ entry with invalid fields.
var ErrInvalidDeadLetterEntry = errors.New("invalid dead letter entry")

// DeadLetterEntry records a work item that could not be processed, with
// enough context to diagnose and replay it.
type DeadLetterEntry struct {
	ID           string             `db:"id"            json:"id"`
	ItemID       string             `db:"item_id"       json:"item_id"`
	Source       string             `db:"source"        json:"source"`
	Payload      Payload            `db:"-"             json:"payload"`
	LastError    string             `db:"last_error"    json:"last_error"`
	ErrorCode    ErrorCode          `db:"error_code"    json:"error_code"`
	AttemptCount int                `db:"attempt_count" json:"attempt_count"`
	FirstSeenAt  time.Time          `db:"first_seen_at" json:"first_seen_at"`
	EnqueuedAt   time.Time          `db:"enqueued_at"   json:"enqueued_at"`
	Extraction   *ExtractionResult  `db:"-"             json:"extraction,omitempty"`
	Validation   *ValidationOutcome `db:"-"             json:"validation,omitempty"`
}

// NewDeadLetterEntry snapshots item and its final error.
func NewDeadLetterEntry(item WorkItem, lastErr error, now time.Time) (*DeadLetterEntry, error) {
	if item.ItemID == "" {
		return nil, fmt.Errorf("%w: item_id is required", ErrInvalidDeadLetterEntry)
	}
	if lastErr == nil {
		return nil, fmt.Errorf("%w: last error is required", ErrInvalidDeadLetterEntry)
	}

	return &DeadLetterEntry{
		ID:           uuid.NewString(),
		ItemID:       item.ItemID,
		Source:       item.Source,
		Payload:      item.Payload,
		LastError:    lastErr.Error(),
		ErrorCode:    Classify(lastErr),
		AttemptCount: item.AttemptCount,
		FirstSeenAt:  item.FirstSeenAt,
		EnqueuedAt:   now,
	}, nil
}

// WorkItem rebuilds a fresh work item for replay. The item id is kept so the
// replayed run can be correlated with the original; attempts start over.
func (d *DeadLetterEntry) WorkItem() WorkItem {
	return WorkItem{
		ItemID:      d.ItemID,
		Source:      d.Source,
		Payload:     d.Payload,
		FirstSeenAt: d.FirstSeenAt,
	}
}

// String returns a debug representation
func (d *DeadLetterEntry) String() string {
	return fmt.Sprintf("DLQ[%s] item=%s source=%s attempts=%d code=%s error=%s",
		d.ID, d.ItemID, d.Source, d.AttemptCount, d.ErrorCode, d.LastError)
}

// DLQStats holds dead-letter queue statistics
type DLQStats struct {
	Total       int64               `json:"total"`
	BySource    map[string]int64    `json:"by_source"`
	ByErrorCode map[ErrorCode]int64 `json:"by_error_code"`
	OldestEntry *time.Time          `json:"oldest_entry,omitempty"`
}
