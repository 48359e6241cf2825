package domain

import (
	"time"

	"github.com/google/uuid"
)

// FetchTarget describes a remote resource the fetch executor resolves.
type FetchTarget struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
	// UseBrowser routes the request through the colly transport.
	UseBrowser bool `json:"use_browser,omitempty"`
}

// Payload is either already-fetched content or a FetchTarget.
type Payload struct {
	Content     string       `json:"content,omitempty"`
	ContentType string       `json:"content_type,omitempty"`
	Target      *FetchTarget `json:"target,omitempty"`
}

// IsRemote reports whether the payload must be fetched first.
func (p Payload) IsRemote() bool {
	return p.Target != nil && p.Target.URL != ""
}

// WorkItem is a single unit of work owned by at most one worker at a time.
type WorkItem struct {
	ItemID       string    `json:"item_id"`
	Source       string    `json:"source"`
	Payload      Payload   `json:"payload"`
	AttemptCount int       `json:"attempt_count"`
	FirstSeenAt  time.Time `json:"first_seen_at"`
}

// NewWorkItem assigns an id and intake timestamp.
func NewWorkItem(source string, payload Payload, now time.Time) WorkItem {
	return WorkItem{
		ItemID:      uuid.NewString(),
		Source:      source,
		Payload:     payload,
		FirstSeenAt: now,
	}
}

// Normalize fills the id and timestamp of items read from external input
// and clamps a negative attempt count to zero.
func (w *WorkItem) Normalize(now time.Time) {
	if w.AttemptCount < 0 {
		w.AttemptCount = 0
	}
	if w.ItemID == "" {
		w.ItemID = uuid.NewString()
	}
	if w.FirstSeenAt.IsZero() {
		w.FirstSeenAt = now
	}
}
