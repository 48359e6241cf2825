package ratelimit_test

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/clock"
	infraconfig "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/config"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/domain"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/ratelimit"
)

const testSource = "county-api"

func newLimiter(t *testing.T, cfg ratelimit.Config) (*ratelimit.Limiter, *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC))
	return ratelimit.New(cfg, ratelimit.WithClock(fc)), fc
}

func TestEffectiveCapacity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 90, ratelimit.EffectiveCapacity(100, 0.1))
	assert.Equal(t, 7, ratelimit.EffectiveCapacity(10, 0.3))
	assert.Equal(t, 100, ratelimit.EffectiveCapacity(100, 0))
	assert.Zero(t, ratelimit.EffectiveCapacity(1, 0.5))
}

func TestConfig_ExplicitZeroMarginIsKept(t *testing.T) {
	t.Parallel()

	cfg := ratelimit.Config{Ceiling: 100, SafetyMargin: ratelimit.Margin(0)}.WithDefaults()
	require.NoError(t, cfg.Validate())
	assert.Zero(t, *cfg.SafetyMargin)

	l, _ := newLimiter(t, cfg)
	assert.Equal(t, 100, l.Usage(testSource).Capacity)

	unset := ratelimit.Config{Ceiling: 100}.WithDefaults()
	assert.InDelta(t, ratelimit.DefaultSafetyMargin, *unset.SafetyMargin, 1e-9)
}

func TestAcquire_NinetyFirstRequestBlocksUntilCapacityFrees(t *testing.T) {
	t.Parallel()
	l, fc := newLimiter(t, ratelimit.Config{Ceiling: 100, Window: time.Hour, SafetyMargin: ratelimit.Margin(0.1)})
	ctx := context.Background()

	for range 90 {
		require.NoError(t, l.Acquire(ctx, testSource))
	}
	assert.Equal(t, ratelimit.Usage{Source: testSource, Count: 90, Capacity: 90}, l.Usage(testSource))

	done := make(chan error, 1)
	go func() { done <- l.Acquire(ctx, testSource) }()

	require.Eventually(t, func() bool { return fc.Waiters() == 1 }, time.Second, time.Millisecond)
	select {
	case err := <-done:
		t.Fatalf("91st acquire returned early: %v", err)
	default:
	}

	fc.Advance(time.Hour)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("91st acquire never admitted")
	}
	assert.Equal(t, 1, l.Usage(testSource).Count)
}

func TestAcquire_CancellationIsTheOnlyError(t *testing.T) {
	t.Parallel()
	l, fc := newLimiter(t, ratelimit.Config{Ceiling: 1, Window: time.Minute, SafetyMargin: ratelimit.Margin(0)})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Acquire(ctx, testSource))

	done := make(chan error, 1)
	go func() { done <- l.Acquire(ctx, testSource) }()
	require.Eventually(t, func() bool { return fc.Waiters() == 1 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestAcquireWithin_ReportsExceededWait(t *testing.T) {
	t.Parallel()
	l, fc := newLimiter(t, ratelimit.Config{Ceiling: 2, Window: time.Minute, SafetyMargin: ratelimit.Margin(0.01)})
	ctx := context.Background()

	require.NoError(t, l.AcquireWithin(ctx, testSource, time.Second))
	fc.Advance(10 * time.Second)

	err := l.AcquireWithin(ctx, testSource, 5*time.Second)
	require.ErrorIs(t, err, domain.ErrRateLimitExceeded)
	assert.Equal(t, 1, l.Usage(testSource).Count)

	fc.Advance(50 * time.Second)
	require.NoError(t, l.AcquireWithin(ctx, testSource, 5*time.Second))
}

func TestAcquire_SourcesAreIsolated(t *testing.T) {
	t.Parallel()
	l, _ := newLimiter(t, ratelimit.Config{
		Ceiling:      10,
		Window:       time.Minute,
		SafetyMargin: ratelimit.Margin(0.5),
		Sources: map[string]ratelimit.SourceLimit{
			"zillow": {Ceiling: 2},
		},
	})
	ctx := context.Background()

	require.NoError(t, l.AcquireWithin(ctx, "zillow", time.Nanosecond))
	require.ErrorIs(t, l.AcquireWithin(ctx, "zillow", time.Nanosecond), domain.ErrRateLimitExceeded)

	for range 5 {
		require.NoError(t, l.AcquireWithin(ctx, "redfin", time.Nanosecond))
	}
	assert.Equal(t, 1, l.Usage("zillow").Capacity)
	assert.Equal(t, 5, l.Usage("redfin").Capacity)
	assert.Equal(t, []string{"redfin", "zillow"}, l.Sources())
}

func TestAcquire_WindowNeverExceedsEffectiveCapacity(t *testing.T) {
	t.Parallel()

	const (
		ceiling = 20
		margin  = 0.25
		span    = time.Minute
	)
	l, fc := newLimiter(t, ratelimit.Config{Ceiling: ceiling, Window: span, SafetyMargin: ratelimit.Margin(margin)})
	capacity := ratelimit.EffectiveCapacity(ceiling, margin)
	rng := rand.New(rand.NewPCG(7, 11))
	ctx := context.Background()

	var admitted []time.Time
	for range 2000 {
		fc.Advance(time.Duration(rng.IntN(4000)) * time.Millisecond)
		if err := l.AcquireWithin(ctx, testSource, time.Nanosecond); err != nil {
			require.ErrorIs(t, err, domain.ErrRateLimitExceeded)
			continue
		}
		now := fc.Now()
		admitted = append(admitted, now)

		inWindow := 0
		for _, ts := range admitted {
			if ts.After(now.Add(-span)) {
				inWindow++
			}
		}
		require.LessOrEqual(t, inWindow, capacity)
	}
	assert.NotEmpty(t, admitted)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := ratelimit.Config{}.WithDefaults()
	require.NoError(t, cfg.Validate())

	cfg.SafetyMargin = ratelimit.Margin(1)
	assert.Error(t, cfg.Validate())

	tests := []struct {
		name  string
		cfg   ratelimit.Config
		field string
	}{
		{
			name:  "margin leaves less than one request",
			cfg:   ratelimit.Config{Ceiling: 1, Window: time.Minute, SafetyMargin: ratelimit.Margin(0.5)},
			field: "rate_limit.ceiling",
		},
		{
			name: "source override leaves less than one request",
			cfg: ratelimit.Config{
				Ceiling: 100, Window: time.Minute, SafetyMargin: ratelimit.Margin(0.1),
				Sources: map[string]ratelimit.SourceLimit{"zillow": {Ceiling: 1}},
			},
			field: "rate_limit.sources.zillow.ceiling",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var verr *infraconfig.ValidationError
			require.ErrorAs(t, tt.cfg.Validate(), &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}
