// Package pipeline runs work items through fetch, extraction, validation and
// storage with bounded concurrency, routing every item to exactly one of
// stored, dead-lettered or requeued.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/clock"
	infralogger "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/logger"
	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/retry"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/deadletter"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/domain"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/extraction"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/fetch"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/storage"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/telemetry"
)

// ErrMisconfigured is returned when a required dependency is missing.
var ErrMisconfigured = errors.New("pipeline misconfigured")

var errNoFetcher = errors.New("payload needs fetching but no fetcher is configured")

// Fetcher resolves remote payloads. *fetch.Executor satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, source string, target domain.FetchTarget) (*fetch.Response, error)
}

// Extractor turns content into fields. *extraction.Engine satisfies it.
type Extractor interface {
	Extract(ctx context.Context, in extraction.Input) domain.ExtractionResult
}

// Validator scores fields. *validation.Validator satisfies it.
type Validator interface {
	Validate(itemID string, fields domain.Fields) domain.ValidationOutcome
}

// Deps are the collaborators a Pipeline drives. Fetcher may be nil when
// every payload carries its content; Sink, Clock and Intake default.
type Deps struct {
	Fetcher    Fetcher
	Extractor  Extractor
	Validator  Validator
	Repository storage.Repository
	DeadLetter deadletter.Store
	Sink       telemetry.Sink
	Clock      clock.Clock
	Intake     *Intake
}

// Status is the terminal routing of one item within a call.
type Status string

const (
	StatusStored       Status = "stored"
	StatusRejected     Status = "rejected"
	StatusDeadLettered Status = "dead_lettered"
	StatusRequeued     Status = "requeued"
)

// ItemOutcome reports what happened to one item.
type ItemOutcome struct {
	Item   domain.WorkItem
	Status Status
	// ContentID is set for stored items.
	ContentID string
	// DeadLetterID is set for rejected and dead-lettered items.
	DeadLetterID string
	// Err is the error that ended processing; nil for stored items.
	Err error
}

// Summary counts outcomes. Rejected items are dead-lettered too but are
// counted only under Rejected.
type Summary struct {
	Accepted     int `json:"accepted"`
	Rejected     int `json:"rejected"`
	DeadLettered int `json:"dead_lettered"`
	Requeued     int `json:"requeued"`
}

// Total is the number of items the summary accounts for.
func (s Summary) Total() int {
	return s.Accepted + s.Rejected + s.DeadLettered + s.Requeued
}

// Add returns the sum of s and o.
func (s Summary) Add(o Summary) Summary {
	return Summary{
		Accepted:     s.Accepted + o.Accepted,
		Rejected:     s.Rejected + o.Rejected,
		DeadLettered: s.DeadLettered + o.DeadLettered,
		Requeued:     s.Requeued + o.Requeued,
	}
}

func (s *Summary) count(st Status) {
	switch st {
	case StatusStored:
		s.Accepted++
	case StatusRejected:
		s.Rejected++
	case StatusDeadLettered:
		s.DeadLettered++
	case StatusRequeued:
		s.Requeued++
	}
}

// Pipeline is the orchestrator. One semaphore bounds items in flight across
// every concurrent ProcessBatch, Run and Stream call.
type Pipeline struct {
	deps  Deps
	cfg   Config
	sem   chan struct{}
	clock clock.Clock
	sink  telemetry.Sink
	log   infralogger.Logger
}

// New validates cfg and the required dependencies.
func New(deps Deps, cfg Config, log infralogger.Logger) (*Pipeline, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMisconfigured, err)
	}

	var missing []string
	if deps.Extractor == nil {
		missing = append(missing, "extractor")
	}
	if deps.Validator == nil {
		missing = append(missing, "validator")
	}
	if deps.Repository == nil {
		missing = append(missing, "repository")
	}
	if deps.DeadLetter == nil {
		missing = append(missing, "dead letter store")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrMisconfigured, strings.Join(missing, ", "))
	}

	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Sink == nil {
		deps.Sink = telemetry.Nop()
	}
	if deps.Intake == nil {
		deps.Intake = NewIntake()
	}
	if log == nil {
		log = infralogger.NewNop()
	}

	return &Pipeline{
		deps:  deps,
		cfg:   cfg,
		sem:   make(chan struct{}, cfg.Concurrency),
		clock: deps.Clock,
		sink:  deps.Sink,
		log:   log,
	}, nil
}

// Intake returns the queue Run consumes and cancellation refills.
func (p *Pipeline) Intake() *Intake { return p.deps.Intake }

// ProcessBatch processes items and blocks until each one is stored,
// dead-lettered or requeued. Per-item failures only show up in the summary;
// the error is non-nil only when ctx ended the batch early.
func (p *Pipeline) ProcessBatch(ctx context.Context, items []domain.WorkItem) (Summary, error) {
	start := p.clock.Now()
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.batch",
		trace.WithAttributes(attribute.Int("batch.size", len(items))))
	defer span.End()

	outcomes := make(chan ItemOutcome, len(items))
	var wg sync.WaitGroup
	for _, item := range items {
		if !p.acquire(ctx) {
			outcomes <- p.requeue(item, ctx.Err())
			continue
		}
		wg.Add(1)
		go func() {
			defer func() {
				p.release()
				wg.Done()
			}()
			outcomes <- p.processItem(ctx, item)
		}()
	}
	wg.Wait()
	close(outcomes)

	var summary Summary
	for o := range outcomes {
		summary.count(o.Status)
	}
	p.emitBatch(summary, p.clock.Now().Sub(start))
	span.SetAttributes(
		attribute.Int("batch.accepted", summary.Accepted),
		attribute.Int("batch.rejected", summary.Rejected),
		attribute.Int("batch.dead_lettered", summary.DeadLettered),
		attribute.Int("batch.requeued", summary.Requeued),
	)

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "cancelled")
		return summary, err
	}
	return summary, nil
}

// Run drains the intake in batches of BatchSize, pausing BatchPacing
// between batches. Items requeued during the run stay queued for the next
// one. On cancellation, unstarted items go back to the intake.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	pending := p.deps.Intake.Drain()
	var total Summary

	for batch := 0; len(pending) > 0; batch++ {
		if batch > 0 && p.cfg.BatchPacing > 0 {
			select {
			case <-ctx.Done():
				p.deps.Intake.Push(pending...)
				return total.Add(Summary{Requeued: len(pending)}), ctx.Err()
			case <-p.clock.After(p.cfg.BatchPacing):
			}
		}

		n := min(p.cfg.BatchSize, len(pending))
		summary, err := p.ProcessBatch(ctx, pending[:n])
		total = total.Add(summary)
		pending = pending[n:]
		if err != nil {
			p.deps.Intake.Push(pending...)
			return total.Add(Summary{Requeued: len(pending)}), err
		}
	}
	return total, nil
}

// Stream processes items from in as they arrive and yields each outcome as
// it completes. The returned channel closes once in is closed or ctx is
// done and every started item has finished. The caller must drain it.
func (p *Pipeline) Stream(ctx context.Context, in <-chan domain.WorkItem) <-chan ItemOutcome {
	out := make(chan ItemOutcome)

	go func() {
		var wg sync.WaitGroup
		defer func() {
			wg.Wait()
			close(out)
		}()

		for {
			var item domain.WorkItem
			select {
			case <-ctx.Done():
				return
			case it, ok := <-in:
				if !ok {
					return
				}
				item = it
			}

			if !p.acquire(ctx) {
				out <- p.requeue(item, ctx.Err())
				return
			}
			wg.Add(1)
			go func() {
				defer func() {
					p.release()
					wg.Done()
				}()
				out <- p.processItem(ctx, item)
			}()
		}
	}()

	return out
}

func (p *Pipeline) acquire(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case p.sem <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Pipeline) release() { <-p.sem }

// attemptState is what the latest attempt learned, kept for the DLQ entry.
type attemptState struct {
	extraction *domain.ExtractionResult
	validation *domain.ValidationOutcome
	contentID  string
}

// processItem runs the bounded retry loop for one item. Attempts are
// strictly sequential.
func (p *Pipeline) processItem(ctx context.Context, item domain.WorkItem) ItemOutcome {
	item.Normalize(p.clock.Now())
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.item", trace.WithAttributes(
		attribute.String("item.id", item.ItemID),
		attribute.String("item.source", item.Source),
	))
	defer span.End()
	ctx = infralogger.WithContext(ctx, p.log.With(
		infralogger.String("item_id", item.ItemID),
		infralogger.String("source", item.Source),
	))

	remaining := p.cfg.MaxAttempts - item.AttemptCount
	if remaining <= 0 {
		err := fmt.Errorf("%w: %d of %d attempts already used",
			domain.ErrAttemptsExhausted, item.AttemptCount, p.cfg.MaxAttempts)
		return p.finish(span, p.deadLetter(ctx, item, err, attemptState{}, StatusDeadLettered))
	}

	backoff := p.cfg.Backoff
	backoff.MaxAttempts = remaining
	backoff.Clock = p.clock
	backoff.Classify = classify

	var state attemptState
	res := retry.Do(ctx, backoff, func(ctx context.Context, _ int) error {
		item.AttemptCount++
		state = attemptState{}
		err := p.attempt(ctx, item, &state)
		if err != nil && ctx.Err() != nil {
			// The interrupted attempt does not count against the item.
			item.AttemptCount--
		}
		if err != nil {
			infralogger.FromContext(ctx).Debug("Attempt failed",
				infralogger.Int("attempt", item.AttemptCount),
				infralogger.Error(err),
			)
		}
		return err
	})

	var outcome ItemOutcome
	switch {
	case res.Outcome == retry.Success:
		outcome = ItemOutcome{Item: item, Status: StatusStored, ContentID: state.contentID}
	case ctx.Err() != nil:
		// Verdicts reached after cancellation are not final.
		outcome = p.requeue(item, res.Err)
	case res.Outcome == retry.TransientFailure:
		err := fmt.Errorf("%w after %d attempts: %w", domain.ErrAttemptsExhausted, item.AttemptCount, res.Err)
		outcome = p.deadLetter(ctx, item, err, state, StatusDeadLettered)
	case errors.Is(res.Err, domain.ErrValidationRejected):
		outcome = p.deadLetter(ctx, item, res.Err, state, StatusRejected)
	default:
		outcome = p.deadLetter(ctx, item, res.Err, state, StatusDeadLettered)
	}
	return p.finish(span, outcome)
}

func (p *Pipeline) finish(span trace.Span, o ItemOutcome) ItemOutcome {
	span.SetAttributes(
		attribute.String("item.status", string(o.Status)),
		attribute.Int("item.attempts", o.Item.AttemptCount),
	)
	if o.Err != nil {
		span.RecordError(o.Err)
		span.SetStatus(codes.Error, string(o.Status))
	}
	return o
}

// classify is the retry policy: storage failures are retried alongside the
// domain's transient errors.
func classify(err error) retry.Outcome {
	switch {
	case err == nil:
		return retry.Success
	case domain.IsTransient(err), errors.Is(err, domain.ErrStorage):
		return retry.TransientFailure
	default:
		return retry.TerminalFailure
	}
}

// attempt is one fetch, extract, validate, store pass.
func (p *Pipeline) attempt(ctx context.Context, item domain.WorkItem, state *attemptState) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
	defer cancel()

	in := extraction.Input{
		ItemID:      item.ItemID,
		Content:     item.Payload.Content,
		ContentType: item.Payload.ContentType,
	}
	if item.Payload.IsRemote() {
		if p.deps.Fetcher == nil {
			return errNoFetcher
		}
		resp, err := p.deps.Fetcher.Fetch(ctx, item.Source, *item.Payload.Target)
		if err != nil {
			return fmt.Errorf("fetch: %w", err)
		}
		in.Content = string(resp.Body)
		in.ContentType = resp.ContentType
		in.URL = resp.FinalURL
	}

	result := p.deps.Extractor.Extract(ctx, in)
	state.extraction = &result
	if result.Empty() {
		return fmt.Errorf("%w: %s", domain.ErrExtractionFailure, strings.Join(result.Notes, "; "))
	}

	outcome := p.deps.Validator.Validate(item.ItemID, result.Fields)
	state.validation = &outcome
	if !outcome.Accepted {
		return &domain.RejectedError{Outcome: outcome}
	}

	record, err := domain.NewRecord(item, result, outcome, p.clock.Now())
	if err != nil {
		return fmt.Errorf("build record: %w", err)
	}
	id, err := p.deps.Repository.Store(ctx, record)
	if err != nil {
		return err
	}
	state.contentID = id

	p.sink.Emit(telemetry.Event{
		Kind: telemetry.KindItemStored,
		Name: item.Source,
		Fields: map[string]any{
			"item_id":    item.ItemID,
			"content_id": id,
			"method":     string(result.Method),
			"confidence": outcome.Confidence,
			"attempts":   item.AttemptCount,
		},
	})
	return nil
}

// deadLetter writes the DLQ entry. If the write itself fails the item is
// requeued so it is not lost.
func (p *Pipeline) deadLetter(
	ctx context.Context,
	item domain.WorkItem,
	cause error,
	state attemptState,
	status Status,
) ItemOutcome {
	entry, err := domain.NewDeadLetterEntry(item, cause, p.clock.Now())
	if err != nil {
		p.log.Error("Cannot build dead letter entry", infralogger.String("item_id", item.ItemID), infralogger.Error(err))
		return p.requeue(item, err)
	}
	entry.Extraction = state.extraction
	entry.Validation = state.validation

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.DeadLetterTimeout)
	defer cancel()
	if err := p.deps.DeadLetter.Enqueue(dctx, entry); err != nil {
		p.log.Error("Dead letter enqueue failed, requeueing",
			infralogger.String("item_id", item.ItemID),
			infralogger.String("cause", cause.Error()),
			infralogger.Error(err),
		)
		return p.requeue(item, fmt.Errorf("dead letter enqueue: %w", err))
	}

	p.sink.Emit(telemetry.Event{
		Kind: telemetry.KindDeadLettered,
		Name: item.Source,
		Fields: map[string]any{
			"item_id":    item.ItemID,
			"entry_id":   entry.ID,
			"error_code": string(entry.ErrorCode),
			"attempts":   entry.AttemptCount,
			"last_error": entry.LastError,
		},
	})
	return ItemOutcome{Item: item, Status: status, DeadLetterID: entry.ID, Err: cause}
}

func (p *Pipeline) requeue(item domain.WorkItem, cause error) ItemOutcome {
	p.deps.Intake.Requeue(item)
	p.log.Info("Item requeued",
		infralogger.String("item_id", item.ItemID),
		infralogger.Int("attempts", item.AttemptCount),
		infralogger.Error(cause),
	)
	return ItemOutcome{Item: item, Status: StatusRequeued, Err: cause}
}

func (p *Pipeline) emitBatch(s Summary, elapsed time.Duration) {
	p.sink.Emit(telemetry.Event{
		Kind: telemetry.KindBatchCompleted,
		Name: "batch",
		Fields: map[string]any{
			"accepted":         s.Accepted,
			"rejected":         s.Rejected,
			"dead_lettered":    s.DeadLettered,
			"requeued":         s.Requeued,
			"duration_seconds": elapsed.Seconds(),
		},
	})
	p.log.Info("Batch completed",
		infralogger.Int("accepted", s.Accepted),
		infralogger.Int("rejected", s.Rejected),
		infralogger.Int("dead_lettered", s.DeadLettered),
		infralogger.Int("requeued", s.Requeued),
		infralogger.Duration("elapsed", elapsed),
	)
}
