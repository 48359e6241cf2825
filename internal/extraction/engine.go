// Package extraction turns raw listing content into candidate fields, by
// prompting a language model or, when that is unavailable, by deterministic
// patterns.
package extraction

import (
	"context"
	"errors"
	"fmt"

	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/circuitbreaker"
	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/clock"
	infralogger "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/logger"
	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/retry"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/domain"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/llm"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/telemetry"
)

// Engine extracts listing fields. It is safe for concurrent use.
type Engine struct {
	cfg      Config
	client   llm.Client
	fallback *Fallback
	clock    clock.Clock
	sink     telemetry.Sink
	log      infralogger.Logger
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock injects the time source used for retry backoff.
func WithClock(c clock.Clock) Option { return func(e *Engine) { e.clock = c } }

// WithSink sets the telemetry sink.
func WithSink(s telemetry.Sink) Option { return func(e *Engine) { e.sink = s } }

// WithLogger sets the logger.
func WithLogger(l infralogger.Logger) Option { return func(e *Engine) { e.log = l } }

// NewEngine creates an Engine. client may be nil, in which case every item
// takes the fallback path.
func NewEngine(client llm.Client, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg.WithDefaults(),
		client:   client,
		fallback: NewFallback(),
		clock:    clock.Real(),
		sink:     telemetry.Nop(),
		log:      infralogger.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Input is the content handed to Extract.
type Input struct {
	ItemID      string
	Content     string
	ContentType string
	// URL is the page address, when known. It helps readability resolve
	// relative links.
	URL string
}

// Extract never fails. When nothing can be extracted the result has no
// fields and the notes say why.
func (e *Engine) Extract(ctx context.Context, in Input) domain.ExtractionResult {
	doc := Preprocess(in.Content, in.ContentType, in.URL, e.cfg.MinReadableChars)
	result := domain.ExtractionResult{ItemID: in.ItemID}

	if doc.Kind == KindJSON {
		if fields := DecodeJSONContent(in.Content); len(fields) > 0 {
			result.Fields = fields
			result.Method = domain.MethodFallback
			result.Notes = append(result.Notes, "decoded json content")
			e.emit(in.ItemID, result)
			return result
		}
		result.Notes = append(result.Notes, "json content had no recognised fields")
	}

	switch s := e.capability().(type) {
	case PrimaryStrategy:
		fields, raw, err := e.primary(ctx, s.Client, doc, &result)
		result.RawModelOutput = raw
		if err == nil {
			result.Fields = fields
			result.Method = domain.MethodLLMPrimary
			break
		}
		result.Notes = append(result.Notes, "primary failed: "+err.Error())
		e.runFallback(doc, &result)
	case FallbackStrategy:
		result.Notes = append(result.Notes, "primary skipped: "+s.Reason)
		e.runFallback(doc, &result)
	}

	if result.Empty() {
		e.log.Warn("Extraction produced no fields",
			infralogger.String("item_id", in.ItemID),
			infralogger.String("kind", doc.Kind.String()),
			infralogger.Strings("notes", result.Notes),
			infralogger.Error(domain.ErrExtractionFailure),
		)
	}
	e.emit(in.ItemID, result)
	return result
}

func (e *Engine) runFallback(doc Document, result *domain.ExtractionResult) {
	result.Fields = e.fallback.Extract(doc)
	result.Method = domain.MethodFallback
}

// primary prompts the model with bounded retries. Unparseable replies count
// as failed attempts. An open circuit or a cancelled context stops retrying
// at once.
func (e *Engine) primary(ctx context.Context, client llm.Client, doc Document, result *domain.ExtractionResult) (domain.Fields, string, error) {
	content, truncated := Truncate(doc.Text, e.cfg.TokenBudget)
	if truncated {
		result.Notes = append(result.Notes, fmt.Sprintf("content truncated to %d tokens", e.cfg.TokenBudget))
	}
	if content == "" {
		return nil, "", ErrNoUsableContent
	}
	prompt := BuildPrompt(content)

	backoff := e.cfg.Backoff
	backoff.MaxAttempts = e.cfg.LLMMaxAttempts
	backoff.Clock = e.clock
	backoff.Classify = classifyLLM

	var (
		fields domain.Fields
		raw    string
	)
	res := retry.Do(ctx, backoff, func(ctx context.Context, attempt int) error {
		out, err := client.Complete(ctx, prompt, SystemPrompt(), e.cfg.MaxTokens)
		if err != nil {
			return err
		}
		raw = out
		parsed, err := ParseModelOutput(out)
		if err != nil {
			e.log.Debug("Unusable model output",
				infralogger.Int("attempt", attempt),
				infralogger.Error(err),
			)
			return err
		}
		fields = parsed
		return nil
	})
	if res.Outcome != retry.Success {
		return nil, raw, fmt.Errorf("%d attempts: %w", res.Attempts, res.Err)
	}
	return fields, raw, nil
}

func classifyLLM(err error) retry.Outcome {
	switch {
	case err == nil:
		return retry.Success
	case errors.Is(err, circuitbreaker.ErrCircuitOpen),
		errors.Is(err, context.Canceled),
		errors.Is(err, llm.ErrNotConfigured):
		return retry.TerminalFailure
	default:
		return retry.TransientFailure
	}
}

func (e *Engine) emit(itemID string, r domain.ExtractionResult) {
	e.sink.Emit(telemetry.Event{
		Kind: telemetry.KindExtraction,
		Name: itemID,
		Fields: map[string]any{
			"method": string(r.Method),
			"fields": len(r.Fields),
		},
	})
}
