package fetch

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/clock"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/domain"
)

// Pacer spaces requests to the same host and adds a random human-like
// pause before each one.
type Pacer struct {
	limit rate.Limit
	burst int
	min   time.Duration
	max   time.Duration
	clock clock.Clock

	mu    sync.Mutex
	hosts map[string]*rate.Limiter
	rng   *rand.Rand
}

// NewPacer creates a Pacer from cfg. A zero HostRate disables host spacing.
func NewPacer(cfg Config, clk clock.Clock, rng *rand.Rand) *Pacer {
	limit := rate.Inf
	if cfg.HostRate > 0 {
		limit = rate.Limit(cfg.HostRate)
	}
	if clk == nil {
		clk = clock.Real()
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // pacing jitter only
	}
	return &Pacer{
		limit: limit,
		burst: max(cfg.HostBurst, 1),
		min:   cfg.MinDelay,
		max:   cfg.MaxDelay,
		clock: clk,
		hosts: make(map[string]*rate.Limiter),
		rng:   rng,
	}
}

func (p *Pacer) hostLimiter(host string) (*rate.Limiter, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	lim, ok := p.hosts[host]
	if !ok {
		lim = rate.NewLimiter(p.limit, p.burst)
		p.hosts[host] = lim
	}

	delay := p.min
	if span := p.max - p.min; span > 0 {
		delay += time.Duration(p.rng.Int64N(int64(span)))
	}
	return lim, delay
}

// Wait blocks until a request to host may be sent.
func (p *Pacer) Wait(ctx context.Context, host string) error {
	lim, delay := p.hostLimiter(host)
	if err := lim.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: host %s: %w", domain.ErrRateLimitExceeded, host, err)
	}
	if delay <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.clock.After(delay):
		return nil
	}
}
