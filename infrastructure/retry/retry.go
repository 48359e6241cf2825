// Package retry runs an operation in an explicit bounded loop with
// exponential backoff, classifying each attempt as an Outcome.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/clock"
)

// ErrMaxAttemptsExceeded wraps the last error once every attempt has failed transiently.
var ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")

// Outcome is the classification of a single attempt.
type Outcome int

const (
	// Success means the attempt produced a usable result.
	Success Outcome = iota
	// TransientFailure means the attempt may succeed if repeated.
	TransientFailure
	// TerminalFailure means repeating the attempt is pointless.
	TerminalFailure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case TransientFailure:
		return "transient"
	case TerminalFailure:
		return "terminal"
	default:
		return "unknown"
	}
}

// Classifier maps an attempt error to an Outcome. nil always maps to Success.
type Classifier func(error) Outcome

// Config configures retry behavior
type Config struct {
	// MaxAttempts counts the initial attempt.
	MaxAttempts  int           `env:"RETRY_MAX_ATTEMPTS" yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	// Jitter spreads each delay uniformly over [d*(1-Jitter), d*(1+Jitter)].
	Jitter   float64     `yaml:"jitter"`
	Classify Classifier  `yaml:"-"`
	Clock    clock.Clock `yaml:"-"`
}

// DefaultConfig returns a default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Classify:     DefaultClassify,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.Multiplier <= 0 {
		c.Multiplier = d.Multiplier
	}
	if c.Classify == nil {
		c.Classify = d.Classify
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	return c
}

// Backoff returns the delay to wait after the given 1-based attempt.
func (c Config) Backoff(attempt int) time.Duration {
	c = c.WithDefaults()
	delay := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt-1))
	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	if c.Jitter > 0 {
		delay *= 1 - c.Jitter + 2*c.Jitter*rand.Float64() //nolint:gosec // jitter only
	}
	return time.Duration(delay)
}

var retryablePatterns = []string{
	"timeout",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"no such host",
	"temporary failure",
	"network is unreachable",
	"eof",
}

// DefaultClassify treats network timeouts and common connection failures as
// transient and everything else as terminal.
func DefaultClassify(err error) Outcome {
	if err == nil {
		return Success
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return TransientFailure
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return TransientFailure
		}
	}
	return TerminalFailure
}

// Result describes how a Do loop finished.
type Result struct {
	Outcome  Outcome
	Attempts int
	// Err is the error from the last attempt; nil on Success.
	Err error
}

// Do calls fn until it succeeds, fails terminally, or MaxAttempts is reached.
// The attempt number passed to fn starts at 1. Context cancellation ends the
// loop with a TerminalFailure wrapping ctx.Err().
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context, attempt int) error) Result {
	cfg = cfg.WithDefaults()

	var res Result
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{Outcome: TerminalFailure, Attempts: res.Attempts, Err: lastOr(res.Err, err)}
		}

		err := fn(ctx, attempt)
		res = Result{Outcome: cfg.Classify(err), Attempts: attempt, Err: err}
		if err == nil {
			res.Outcome = Success
		}
		if res.Outcome != TransientFailure || attempt == cfg.MaxAttempts {
			return res
		}

		select {
		case <-ctx.Done():
			return Result{Outcome: TerminalFailure, Attempts: attempt, Err: lastOr(err, ctx.Err())}
		case <-cfg.Clock.After(cfg.Backoff(attempt)):
		}
	}
	return res
}

func lastOr(last, ctxErr error) error {
	if last == nil {
		return ctxErr
	}
	return fmt.Errorf("%w (last attempt: %w)", ctxErr, last)
}

// Retry is the error-returning form of Do. Exhausted transient failures are
// wrapped in ErrMaxAttemptsExceeded.
func Retry(ctx context.Context, cfg Config, fn func() error) error {
	res := Do(ctx, cfg, func(context.Context, int) error { return fn() })
	if res.Outcome == TransientFailure {
		return fmt.Errorf("%w after %d attempts: %w", ErrMaxAttemptsExceeded, res.Attempts, res.Err)
	}
	return res.Err
}
