package circuitbreaker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/circuitbreaker"
	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/clock"
)

var errBoom = errors.New("boom")

func newBreaker(t *testing.T, threshold int, timeout time.Duration) (*circuitbreaker.Breaker, *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	b := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: threshold,
		Timeout:          timeout,
	}, circuitbreaker.WithClock(fc), circuitbreaker.WithName("llm-extract"))
	return b, fc
}

func fail() error { return errBoom }
func ok() error   { return nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()
	b, _ := newBreaker(t, 3, time.Minute)
	ctx := context.Background()

	for range 2 {
		require.ErrorIs(t, b.Execute(ctx, fail), errBoom)
	}
	assert.Equal(t, circuitbreaker.StateClosed, b.State())

	require.ErrorIs(t, b.Execute(ctx, fail), errBoom)
	assert.Equal(t, circuitbreaker.StateOpen, b.State())
}

func TestBreaker_SuccessResetsRollingCount(t *testing.T) {
	t.Parallel()
	b, _ := newBreaker(t, 3, time.Minute)
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)
	require.NoError(t, b.Execute(ctx, ok))
	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)

	assert.Equal(t, circuitbreaker.StateClosed, b.State())
}

func TestBreaker_OpenNeverInvokesWrappedFunction(t *testing.T) {
	t.Parallel()
	b, fc := newBreaker(t, 1, time.Minute)
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	require.Equal(t, circuitbreaker.StateOpen, b.State())

	calls := 0
	for range 10 {
		fc.Advance(5 * time.Second)
		err := b.Execute(ctx, func() error {
			calls++
			return nil
		})
		require.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	}
	assert.Zero(t, calls)
	assert.False(t, b.Allows())
}

func TestBreaker_HalfOpenProbeClosesOnSuccess(t *testing.T) {
	t.Parallel()
	b, fc := newBreaker(t, 1, time.Minute)
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	fc.Advance(time.Minute)
	assert.True(t, b.Allows())

	require.NoError(t, b.Execute(ctx, ok))
	assert.Equal(t, circuitbreaker.StateClosed, b.State())
}

func TestBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	t.Parallel()
	b, fc := newBreaker(t, 1, time.Minute)
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	fc.Advance(time.Minute)
	require.ErrorIs(t, b.Execute(ctx, fail), errBoom)
	assert.Equal(t, circuitbreaker.StateOpen, b.State())

	require.ErrorIs(t, b.Execute(ctx, ok), circuitbreaker.ErrCircuitOpen)
}

func TestBreaker_SingleProbeInHalfOpen(t *testing.T) {
	t.Parallel()
	b, fc := newBreaker(t, 1, time.Minute)
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	fc.Advance(time.Minute)

	probeStarted := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = b.Execute(ctx, func() error {
			close(probeStarted)
			<-release
			return nil
		})
	}()

	<-probeStarted
	err := b.Execute(ctx, ok)
	require.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)

	close(release)
	wg.Wait()
	assert.Equal(t, circuitbreaker.StateClosed, b.State())
}

func TestBreaker_CallerCancellationNotCounted(t *testing.T) {
	t.Parallel()
	b, _ := newBreaker(t, 1, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	err := b.Execute(ctx, func() error {
		cancel()
		return context.Canceled
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, circuitbreaker.StateClosed, b.State())
}

func TestBreaker_StateChangeCallback(t *testing.T) {
	t.Parallel()
	fc := clock.NewFake(time.Unix(0, 0))

	var transitions []string
	b := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 1,
		Timeout:          time.Second,
		OnStateChange: func(from, to circuitbreaker.State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	}, circuitbreaker.WithClock(fc))

	ctx := context.Background()
	_ = b.Execute(ctx, fail)
	fc.Advance(time.Second)
	_ = b.Execute(ctx, ok)

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestRegistry_IsolatesOperationClasses(t *testing.T) {
	t.Parallel()
	fc := clock.NewFake(time.Unix(0, 0))

	var hooked []string
	reg := circuitbreaker.NewRegistry(
		circuitbreaker.Config{FailureThreshold: 1, Timeout: time.Minute},
		circuitbreaker.WithRegistryClock(fc),
		circuitbreaker.WithOverride("fetch:zillow", circuitbreaker.Config{FailureThreshold: 2}),
		circuitbreaker.WithTransitionHook(func(name string, _, to circuitbreaker.State) {
			hooked = append(hooked, name+":"+to.String())
		}),
	)

	ctx := context.Background()
	_ = reg.Get("llm-extract").Execute(ctx, fail)
	_ = reg.Get("fetch:zillow").Execute(ctx, fail)

	assert.Same(t, reg.Get("llm-extract"), reg.Get("llm-extract"))
	assert.Equal(t, circuitbreaker.StateOpen, reg.Get("llm-extract").State())
	assert.Equal(t, circuitbreaker.StateClosed, reg.Get("fetch:zillow").State())
	assert.Equal(t, []string{"llm-extract:open"}, hooked)

	states := reg.States()
	require.Len(t, states, 2)
	assert.Equal(t, "fetch:zillow", states[0].Name)
	assert.Equal(t, "open", states[1].State)

	assert.True(t, reg.Reset("llm-extract"))
	assert.False(t, reg.Reset("unknown"))
	assert.Equal(t, circuitbreaker.StateClosed, reg.Get("llm-extract").State())
}
