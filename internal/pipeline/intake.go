package pipeline

import (
	"sync"

	"github.com/bananahana720/RE-analysis-generator-sub002/internal/domain"
)

// Intake is the queue of items waiting to be processed. Items interrupted
// by cancellation are pushed back here instead of being dropped.
type Intake struct {
	mu    sync.Mutex
	items []domain.WorkItem
}

// NewIntake creates an Intake holding items.
func NewIntake(items ...domain.WorkItem) *Intake {
	return &Intake{items: append([]domain.WorkItem(nil), items...)}
}

// Push appends items.
func (q *Intake) Push(items ...domain.WorkItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
}

// Requeue returns an interrupted item to the queue.
func (q *Intake) Requeue(item domain.WorkItem) {
	q.Push(item)
}

// Next removes and returns up to n items from the front of the queue.
func (q *Intake) Next(n int) []domain.WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	n = min(n, len(q.items))
	if n <= 0 {
		return nil
	}
	out := make([]domain.WorkItem, n)
	copy(out, q.items[:n])
	q.items = q.items[n:]
	return out
}

// Drain removes and returns everything in the queue.
func (q *Intake) Drain() []domain.WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.items
	q.items = nil
	return out
}

// Len returns the number of queued items.
func (q *Intake) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
