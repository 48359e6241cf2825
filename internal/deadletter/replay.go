package deadletter

import (
	"context"
	"errors"
	"fmt"

	infralogger "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/logger"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/domain"
)

// SubmitFunc resubmits a rebuilt work item for processing.
type SubmitFunc func(ctx context.Context, item domain.WorkItem) error

// Replayer moves dead-lettered items back into processing. It only runs
// when an operator asks for it.
type Replayer struct {
	store Store
	log   infralogger.Logger
}

// NewReplayer creates a Replayer over store.
func NewReplayer(store Store, log infralogger.Logger) *Replayer {
	return &Replayer{store: store, log: log}
}

// Replay resubmits every entry matching filter and removes each one whose
// submission succeeded. It returns how many were replayed; failed entries
// stay in the queue and their errors are joined into the returned error.
func (r *Replayer) Replay(ctx context.Context, filter ListFilter, submit SubmitFunc) (int, error) {
	entries, err := r.store.List(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("list entries to replay: %w", err)
	}

	var (
		replayed int
		errs     []error
	)
	for i := range entries {
		if ctxErr := ctx.Err(); ctxErr != nil {
			errs = append(errs, ctxErr)
			break
		}
		e := &entries[i]
		if submitErr := submit(ctx, e.WorkItem()); submitErr != nil {
			errs = append(errs, fmt.Errorf("replay %s: %w", e.ID, submitErr))
			continue
		}
		if removeErr := r.store.Remove(ctx, e.ID); removeErr != nil {
			errs = append(errs, fmt.Errorf("replay %s: resubmitted but not removed: %w", e.ID, removeErr))
			continue
		}
		replayed++
		r.log.Info("Replayed dead-letter entry",
			infralogger.String("dlq_id", e.ID),
			infralogger.String("item_id", e.ItemID),
			infralogger.String("error_code", string(e.ErrorCode)),
		)
	}
	return replayed, errors.Join(errs...)
}
