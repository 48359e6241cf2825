package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infralogger "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/logger"
	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/retry"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/deadletter"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/domain"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/extraction"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/fetch"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/pipeline"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/storage"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/telemetry"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/validation"
)

type extractFunc func(ctx context.Context, in extraction.Input) domain.ExtractionResult

func (f extractFunc) Extract(ctx context.Context, in extraction.Input) domain.ExtractionResult {
	return f(ctx, in)
}

type validateFunc func(itemID string, fields domain.Fields) domain.ValidationOutcome

func (f validateFunc) Validate(itemID string, fields domain.Fields) domain.ValidationOutcome {
	return f(itemID, fields)
}

type fetchFunc func(ctx context.Context, source string, target domain.FetchTarget) (*fetch.Response, error)

func (f fetchFunc) Fetch(ctx context.Context, source string, target domain.FetchTarget) (*fetch.Response, error) {
	return f(ctx, source, target)
}

var acceptAll = validateFunc(func(itemID string, _ domain.Fields) domain.ValidationOutcome {
	return domain.ValidationOutcome{ItemID: itemID, Accepted: true, Confidence: 1}
})

// listingFor gives every item distinct fields so records get distinct ids.
func listingFor(in extraction.Input) domain.ExtractionResult {
	return domain.ExtractionResult{
		ItemID: in.ItemID,
		Method: domain.MethodFallback,
		Fields: domain.Fields{"price": 450000.0, "address": "listing " + in.ItemID},
	}
}

type fixture struct {
	repo     *storage.MemoryRepository
	dlq      *deadletter.MemoryStore
	recorder *telemetry.Recorder
	intake   *pipeline.Intake
}

func newFixture() *fixture {
	return &fixture{
		repo:     storage.NewMemoryRepository(),
		dlq:      deadletter.NewMemoryStore(),
		recorder: &telemetry.Recorder{},
		intake:   pipeline.NewIntake(),
	}
}

func (f *fixture) deps(ex pipeline.Extractor, v pipeline.Validator) pipeline.Deps {
	return pipeline.Deps{
		Extractor:  ex,
		Validator:  v,
		Repository: f.repo,
		DeadLetter: f.dlq,
		Sink:       f.recorder,
		Intake:     f.intake,
	}
}

func testConfig() pipeline.Config {
	return pipeline.Config{
		BatchSize:   10,
		Concurrency: 2,
		MaxAttempts: 3,
		Backoff:     retry.Config{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}
}

func newPipeline(t *testing.T, deps pipeline.Deps, cfg pipeline.Config) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New(deps, cfg, infralogger.NewNop())
	require.NoError(t, err)
	return p
}

func contentItem(id string) domain.WorkItem {
	return domain.WorkItem{
		ItemID:  id,
		Source:  "county",
		Payload: domain.Payload{Content: "3 bed home for $450,000", ContentType: "text/plain"},
	}
}

func deadLetters(t *testing.T, f *fixture) []domain.DeadLetterEntry {
	t.Helper()
	entries, err := f.dlq.List(context.Background(), deadletter.ListFilter{})
	require.NoError(t, err)
	return entries
}

func TestNew_MissingDependencies(t *testing.T) {
	t.Parallel()

	_, err := pipeline.New(pipeline.Deps{}, testConfig(), infralogger.NewNop())
	require.ErrorIs(t, err, pipeline.ErrMisconfigured)
	assert.Contains(t, err.Error(), "extractor, validator, repository, dead letter store")

	f := newFixture()
	cfg := testConfig()
	cfg.Concurrency = -1
	_, err = pipeline.New(f.deps(extractFunc(func(context.Context, extraction.Input) domain.ExtractionResult {
		return domain.ExtractionResult{}
	}), acceptAll), cfg, infralogger.NewNop())
	require.ErrorIs(t, err, pipeline.ErrMisconfigured)
}

func TestProcessBatch_FailsTwiceThenStoresOnce(t *testing.T) {
	t.Parallel()
	f := newFixture()

	var calls atomic.Int32
	ex := extractFunc(func(_ context.Context, in extraction.Input) domain.ExtractionResult {
		if calls.Add(1) <= 2 {
			return domain.ExtractionResult{ItemID: in.ItemID, Notes: []string{"nothing found"}}
		}
		return listingFor(in)
	})
	p := newPipeline(t, f.deps(ex, acceptAll), testConfig())

	summary, err := p.ProcessBatch(context.Background(), []domain.WorkItem{contentItem("item-1")})
	require.NoError(t, err)

	assert.Equal(t, pipeline.Summary{Accepted: 1}, summary)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 1, f.repo.Len())
	assert.Empty(t, deadLetters(t, f))

	stored := f.recorder.Events(telemetry.KindItemStored)
	require.Len(t, stored, 1)
	assert.Equal(t, 3, stored[0].Fields["attempts"])
	assert.Equal(t, "county", stored[0].Name)
}

func TestProcessBatch_ExhaustedKeepsMostRecentError(t *testing.T) {
	t.Parallel()
	f := newFixture()

	var calls atomic.Int32
	ex := extractFunc(func(_ context.Context, in extraction.Input) domain.ExtractionResult {
		n := calls.Add(1)
		return domain.ExtractionResult{ItemID: in.ItemID, Notes: []string{fmt.Sprintf("failure %d", n)}}
	})
	p := newPipeline(t, f.deps(ex, acceptAll), testConfig())

	summary, err := p.ProcessBatch(context.Background(), []domain.WorkItem{contentItem("item-1")})
	require.NoError(t, err)
	assert.Equal(t, pipeline.Summary{DeadLettered: 1}, summary)

	entries := deadLetters(t, f)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, "item-1", entry.ItemID)
	assert.Equal(t, 3, entry.AttemptCount)
	assert.Equal(t, domain.ErrorCodeExtraction, entry.ErrorCode)
	assert.Contains(t, entry.LastError, domain.ErrAttemptsExhausted.Error())
	assert.Contains(t, entry.LastError, "failure 3")
	assert.NotContains(t, entry.LastError, "failure 1")
	assert.NotContains(t, entry.LastError, "failure 2")
	require.NotNil(t, entry.Extraction)
	assert.Equal(t, []string{"failure 3"}, entry.Extraction.Notes)
	assert.Nil(t, entry.Validation)

	events := f.recorder.Events(telemetry.KindDeadLettered)
	require.Len(t, events, 1)
	assert.Equal(t, "EXTRACTION", events[0].Fields["error_code"])
}

func TestProcessBatch_RejectionIsTerminal(t *testing.T) {
	t.Parallel()
	f := newFixture()

	var calls atomic.Int32
	ex := extractFunc(func(_ context.Context, in extraction.Input) domain.ExtractionResult {
		calls.Add(1)
		return domain.ExtractionResult{ItemID: in.ItemID, Method: domain.MethodFallback, Fields: domain.Fields{"price": -500.0, "beds": 3.0}}
	})
	p := newPipeline(t, f.deps(ex, validation.New(validation.Config{})), testConfig())

	summary, err := p.ProcessBatch(context.Background(), []domain.WorkItem{contentItem("item-1")})
	require.NoError(t, err)

	assert.Equal(t, pipeline.Summary{Rejected: 1}, summary)
	assert.Equal(t, int32(1), calls.Load(), "rejections are not retried")
	assert.Zero(t, f.repo.Len())

	entries := deadLetters(t, f)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ErrorCodeRejected, entries[0].ErrorCode)
	assert.Equal(t, 1, entries[0].AttemptCount)
	require.NotNil(t, entries[0].Validation)
	assert.False(t, entries[0].Validation.Accepted)
	require.NotNil(t, entries[0].Extraction)
	assert.Equal(t, -500.0, entries[0].Extraction.Fields["price"])
}

func TestProcessBatch_AlreadyExhaustedItem(t *testing.T) {
	t.Parallel()
	f := newFixture()

	ex := extractFunc(func(context.Context, extraction.Input) domain.ExtractionResult {
		t.Error("extractor must not run")
		return domain.ExtractionResult{}
	})
	p := newPipeline(t, f.deps(ex, acceptAll), testConfig())

	item := contentItem("item-1")
	item.AttemptCount = 3
	summary, err := p.ProcessBatch(context.Background(), []domain.WorkItem{item})
	require.NoError(t, err)
	assert.Equal(t, pipeline.Summary{DeadLettered: 1}, summary)

	entries := deadLetters(t, f)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].LastError, "3 of 3 attempts already used")
}

func TestProcessBatch_NegativeAttemptCountStaysBounded(t *testing.T) {
	t.Parallel()
	f := newFixture()

	var calls atomic.Int32
	ex := extractFunc(func(_ context.Context, in extraction.Input) domain.ExtractionResult {
		calls.Add(1)
		return domain.ExtractionResult{ItemID: in.ItemID, Notes: []string{"nothing found"}}
	})
	p := newPipeline(t, f.deps(ex, acceptAll), testConfig())

	item := contentItem("item-1")
	item.AttemptCount = -5
	summary, err := p.ProcessBatch(context.Background(), []domain.WorkItem{item})
	require.NoError(t, err)
	assert.Equal(t, pipeline.Summary{DeadLettered: 1}, summary)
	assert.Equal(t, int32(3), calls.Load())

	entries := deadLetters(t, f)
	require.Len(t, entries, 1)
	assert.Equal(t, 3, entries[0].AttemptCount)
}

func TestProcessBatch_FetchesRemotePayload(t *testing.T) {
	t.Parallel()
	f := newFixture()

	fetcher := fetchFunc(func(_ context.Context, source string, target domain.FetchTarget) (*fetch.Response, error) {
		assert.Equal(t, "zillow", source)
		assert.Equal(t, "https://example.com/listing/1", target.URL)
		return &fetch.Response{
			StatusCode:  200,
			Body:        []byte("<html>$615,000</html>"),
			ContentType: "text/html",
			FinalURL:    "https://example.com/listing/1?ref=x",
		}, nil
	})
	var seen extraction.Input
	ex := extractFunc(func(_ context.Context, in extraction.Input) domain.ExtractionResult {
		seen = in
		return listingFor(in)
	})
	deps := f.deps(ex, acceptAll)
	deps.Fetcher = fetcher
	p := newPipeline(t, deps, testConfig())

	item := domain.WorkItem{
		ItemID:  "remote-1",
		Source:  "zillow",
		Payload: domain.Payload{Target: &domain.FetchTarget{URL: "https://example.com/listing/1"}},
	}
	summary, err := p.ProcessBatch(context.Background(), []domain.WorkItem{item})
	require.NoError(t, err)

	assert.Equal(t, pipeline.Summary{Accepted: 1}, summary)
	assert.Equal(t, "<html>$615,000</html>", seen.Content)
	assert.Equal(t, "text/html", seen.ContentType)
	assert.Equal(t, "https://example.com/listing/1?ref=x", seen.URL)
}

func TestProcessBatch_TerminalFetchErrorIsNotRetried(t *testing.T) {
	t.Parallel()
	f := newFixture()

	var fetches atomic.Int32
	fetcher := fetchFunc(func(_ context.Context, _ string, target domain.FetchTarget) (*fetch.Response, error) {
		fetches.Add(1)
		return nil, &domain.StatusError{URL: target.URL, StatusCode: 404}
	})
	deps := f.deps(extractFunc(func(_ context.Context, in extraction.Input) domain.ExtractionResult {
		return listingFor(in)
	}), acceptAll)
	deps.Fetcher = fetcher
	p := newPipeline(t, deps, testConfig())

	item := domain.WorkItem{
		ItemID:  "gone",
		Source:  "zillow",
		Payload: domain.Payload{Target: &domain.FetchTarget{URL: "https://example.com/gone"}},
	}
	summary, err := p.ProcessBatch(context.Background(), []domain.WorkItem{item})
	require.NoError(t, err)

	assert.Equal(t, pipeline.Summary{DeadLettered: 1}, summary)
	assert.Equal(t, int32(1), fetches.Load())
	entries := deadLetters(t, f)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ErrorCodeHTTPStatus, entries[0].ErrorCode)
}

func TestProcessBatch_RemotePayloadWithoutFetcher(t *testing.T) {
	t.Parallel()
	f := newFixture()
	p := newPipeline(t, f.deps(extractFunc(func(_ context.Context, in extraction.Input) domain.ExtractionResult {
		return listingFor(in)
	}), acceptAll), testConfig())

	item := domain.WorkItem{
		ItemID:  "remote-1",
		Source:  "zillow",
		Payload: domain.Payload{Target: &domain.FetchTarget{URL: "https://example.com/listing/1"}},
	}
	summary, err := p.ProcessBatch(context.Background(), []domain.WorkItem{item})
	require.NoError(t, err)
	assert.Equal(t, pipeline.Summary{DeadLettered: 1}, summary)
}

type flakyRepo struct {
	*storage.MemoryRepository
	failures atomic.Int32
}

func (r *flakyRepo) Store(ctx context.Context, record domain.Record) (string, error) {
	if r.failures.Add(-1) >= 0 {
		return "", fmt.Errorf("%w: connection reset", domain.ErrStorage)
	}
	return r.MemoryRepository.Store(ctx, record)
}

func TestProcessBatch_StorageFailureIsRetried(t *testing.T) {
	t.Parallel()
	f := newFixture()

	repo := &flakyRepo{MemoryRepository: f.repo}
	repo.failures.Store(1)
	deps := f.deps(extractFunc(func(_ context.Context, in extraction.Input) domain.ExtractionResult {
		return listingFor(in)
	}), acceptAll)
	deps.Repository = repo
	p := newPipeline(t, deps, testConfig())

	summary, err := p.ProcessBatch(context.Background(), []domain.WorkItem{contentItem("item-1")})
	require.NoError(t, err)
	assert.Equal(t, pipeline.Summary{Accepted: 1}, summary)
	assert.Equal(t, 1, f.repo.Len())
}

type brokenDLQ struct {
	deadletter.Store
}

func (brokenDLQ) Enqueue(context.Context, *domain.DeadLetterEntry) error {
	return errors.New("redis: connection refused")
}

func TestProcessBatch_DeadLetterFailureRequeues(t *testing.T) {
	t.Parallel()
	f := newFixture()

	deps := f.deps(extractFunc(func(_ context.Context, in extraction.Input) domain.ExtractionResult {
		return domain.ExtractionResult{ItemID: in.ItemID}
	}), acceptAll)
	deps.DeadLetter = brokenDLQ{Store: f.dlq}
	p := newPipeline(t, deps, testConfig())

	summary, err := p.ProcessBatch(context.Background(), []domain.WorkItem{contentItem("item-1")})
	require.NoError(t, err)
	assert.Equal(t, pipeline.Summary{Requeued: 1}, summary)

	requeued := f.intake.Drain()
	require.Len(t, requeued, 1)
	assert.Equal(t, "item-1", requeued[0].ItemID)
	assert.Equal(t, 3, requeued[0].AttemptCount)
}

func TestProcessBatch_ConcurrencyIsBounded(t *testing.T) {
	t.Parallel()
	f := newFixture()

	var inFlight, peak atomic.Int32
	ex := extractFunc(func(_ context.Context, in extraction.Input) domain.ExtractionResult {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return listingFor(in)
	})
	p := newPipeline(t, f.deps(ex, acceptAll), testConfig())

	items := make([]domain.WorkItem, 12)
	for i := range items {
		items[i] = contentItem("item-" + strconv.Itoa(i))
	}
	summary, err := p.ProcessBatch(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, pipeline.Summary{Accepted: 12}, summary)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, 12, f.repo.Len())
}

func TestProcessBatch_CancellationRequeuesInFlight(t *testing.T) {
	t.Parallel()
	f := newFixture()

	started := make(chan struct{})
	var once sync.Once
	ex := extractFunc(func(ctx context.Context, in extraction.Input) domain.ExtractionResult {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return domain.ExtractionResult{ItemID: in.ItemID, Notes: []string{"cancelled"}}
	})
	cfg := testConfig()
	cfg.Concurrency = 1
	p := newPipeline(t, f.deps(ex, acceptAll), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	items := []domain.WorkItem{contentItem("a"), contentItem("b"), contentItem("c")}
	summary, err := p.ProcessBatch(ctx, items)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, pipeline.Summary{Requeued: 3}, summary)
	assert.Empty(t, deadLetters(t, f))
	assert.Zero(t, f.repo.Len())

	requeued := f.intake.Drain()
	require.Len(t, requeued, 3)
	for _, item := range requeued {
		assert.Zero(t, item.AttemptCount, "interrupted attempts are not counted: %s", item.ItemID)
	}
}

func TestProcessBatch_EmitsBatchCompleted(t *testing.T) {
	t.Parallel()
	f := newFixture()

	ex := extractFunc(func(_ context.Context, in extraction.Input) domain.ExtractionResult {
		if in.ItemID == "bad" {
			return domain.ExtractionResult{ItemID: in.ItemID, Fields: domain.Fields{"price": -1.0}}
		}
		return listingFor(in)
	})
	rejectNegative := validateFunc(func(itemID string, fields domain.Fields) domain.ValidationOutcome {
		price, _ := fields.Number("price")
		return domain.ValidationOutcome{ItemID: itemID, Accepted: price > 0, Confidence: 0.5}
	})
	p := newPipeline(t, f.deps(ex, rejectNegative), testConfig())

	_, err := p.ProcessBatch(context.Background(), []domain.WorkItem{contentItem("good"), contentItem("bad")})
	require.NoError(t, err)

	events := f.recorder.Events(telemetry.KindBatchCompleted)
	require.Len(t, events, 1)
	assert.Equal(t, 1, events[0].Fields["accepted"])
	assert.Equal(t, 1, events[0].Fields["rejected"])
	assert.Equal(t, 0, events[0].Fields["dead_lettered"])
	assert.Equal(t, 0, events[0].Fields["requeued"])
}

func TestRun_DrainsIntakeInBatches(t *testing.T) {
	t.Parallel()
	f := newFixture()

	for i := range 5 {
		f.intake.Push(contentItem("item-" + strconv.Itoa(i)))
	}
	cfg := testConfig()
	cfg.BatchSize = 2
	cfg.BatchPacing = time.Millisecond
	p := newPipeline(t, f.deps(extractFunc(func(_ context.Context, in extraction.Input) domain.ExtractionResult {
		return listingFor(in)
	}), acceptAll), cfg)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, pipeline.Summary{Accepted: 5}, summary)
	assert.Len(t, f.recorder.Events(telemetry.KindBatchCompleted), 3)
	assert.Zero(t, f.intake.Len())
}

func TestRun_CancelledReturnsPendingToIntake(t *testing.T) {
	t.Parallel()
	f := newFixture()

	for i := range 4 {
		f.intake.Push(contentItem("item-" + strconv.Itoa(i)))
	}
	p := newPipeline(t, f.deps(extractFunc(func(_ context.Context, in extraction.Input) domain.ExtractionResult {
		return listingFor(in)
	}), acceptAll), testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := p.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 4, summary.Requeued)
	assert.Equal(t, 4, f.intake.Len())
}

func TestStream_YieldsEveryOutcome(t *testing.T) {
	t.Parallel()
	f := newFixture()

	ex := extractFunc(func(_ context.Context, in extraction.Input) domain.ExtractionResult {
		if in.ItemID == "empty" {
			return domain.ExtractionResult{ItemID: in.ItemID}
		}
		return listingFor(in)
	})
	p := newPipeline(t, f.deps(ex, acceptAll), testConfig())

	in := make(chan domain.WorkItem)
	go func() {
		defer close(in)
		for _, id := range []string{"one", "two", "empty"} {
			in <- contentItem(id)
		}
	}()

	got := map[string]pipeline.Status{}
	for o := range p.Stream(context.Background(), in) {
		got[o.Item.ItemID] = o.Status
		if o.Status == pipeline.StatusStored {
			assert.NotEmpty(t, o.ContentID)
		}
	}

	assert.Equal(t, map[string]pipeline.Status{
		"one":   pipeline.StatusStored,
		"two":   pipeline.StatusStored,
		"empty": pipeline.StatusDeadLettered,
	}, got)
}

func TestSummary_AddAndTotal(t *testing.T) {
	t.Parallel()

	s := pipeline.Summary{Accepted: 1, Rejected: 2}.Add(pipeline.Summary{DeadLettered: 3, Requeued: 4})
	assert.Equal(t, pipeline.Summary{Accepted: 1, Rejected: 2, DeadLettered: 3, Requeued: 4}, s)
	assert.Equal(t, 10, s.Total())
}
