// Package ratelimit admits outbound requests per source under a sliding
// window ceiling that keeps a safety margin in reserve.
package ratelimit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/clock"
	infralogger "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/logger"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/domain"
)

// Usage is a snapshot of one source's window.
type Usage struct {
	Source   string `json:"source"`
	Count    int    `json:"count"`
	Capacity int    `json:"capacity"`
}

// window is the timestamp log for one source. Its mutex is the only lock
// held while timestamps are read or written.
type window struct {
	mu       sync.Mutex
	capacity int
	span     time.Duration
	stamps   []time.Time
}

// prune drops timestamps that have left the trailing window. Caller holds mu.
func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

// reserve records now and returns zero if there is room; otherwise it
// returns how long until the oldest timestamp leaves the window.
func (w *window) reserve(now time.Time) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(now)
	if len(w.stamps) < w.capacity {
		w.stamps = append(w.stamps, now)
		return 0
	}
	if len(w.stamps) == 0 {
		// Zero capacity admits nothing.
		return w.span
	}
	return w.stamps[0].Add(w.span).Sub(now)
}

func (w *window) usage(now time.Time) (count, capacity int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(now)
	return len(w.stamps), w.capacity
}

// Limiter is a set of independent per-source sliding windows.
type Limiter struct {
	cfg    Config
	clock  clock.Clock
	logger infralogger.Logger

	mu      sync.Mutex
	windows map[string]*window
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithClock injects the time source.
func WithClock(c clock.Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

// WithLogger sets the logger used for wait diagnostics.
func WithLogger(log infralogger.Logger) Option {
	return func(l *Limiter) { l.logger = log }
}

// New creates a Limiter. cfg is expected to be validated already.
func New(cfg Config, opts ...Option) *Limiter {
	l := &Limiter{
		cfg:     cfg.WithDefaults(),
		clock:   clock.Real(),
		logger:  infralogger.NewNop(),
		windows: make(map[string]*window),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// windowFor returns the window for source, creating it on first use. Only
// the registry lock is taken here.
func (l *Limiter) windowFor(source string) *window {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[source]
	if !ok {
		capacity, span := l.cfg.limitFor(source)
		w = &window{capacity: capacity, span: span, stamps: make([]time.Time, 0, capacity)}
		l.windows[source] = w
	}
	return w
}

// Acquire blocks until a request for source fits in its window. It never
// fails on its own; the only error is ctx.Err().
func (l *Limiter) Acquire(ctx context.Context, source string) error {
	return l.acquire(ctx, source, -1)
}

// AcquireWithin is Acquire with a bound on the total wait. If admitting the
// caller would take longer than maxWait it returns ErrRateLimitExceeded
// without sleeping the remainder.
func (l *Limiter) AcquireWithin(ctx context.Context, source string, maxWait time.Duration) error {
	if maxWait <= 0 {
		maxWait = l.cfg.MaxWait
	}
	return l.acquire(ctx, source, maxWait)
}

func (l *Limiter) acquire(ctx context.Context, source string, maxWait time.Duration) error {
	w := l.windowFor(source)
	var waited time.Duration

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		wait := w.reserve(l.clock.Now())
		if wait <= 0 {
			return nil
		}

		if maxWait >= 0 && waited+wait > maxWait {
			return fmt.Errorf("%w: source %s needs %v more (bound %v)",
				domain.ErrRateLimitExceeded, source, wait, maxWait)
		}

		l.logger.Debug("Rate limit window full, waiting",
			infralogger.String("source", source),
			infralogger.Duration("wait", wait),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(wait):
			waited += wait
		}
	}
}

// Usage reports the number of requests in source's trailing window and the
// effective capacity.
func (l *Limiter) Usage(source string) Usage {
	count, capacity := l.windowFor(source).usage(l.clock.Now())
	return Usage{Source: source, Count: count, Capacity: capacity}
}

// Sources lists every source seen so far.
func (l *Limiter) Sources() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, 0, len(l.windows))
	for name := range l.windows {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
