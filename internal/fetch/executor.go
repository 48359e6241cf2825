package fetch

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"

	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/circuitbreaker"
	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/clock"
	infralogger "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/logger"
	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/retry"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/domain"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/proxy"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/ratelimit"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/telemetry"
)

// BreakerPrefix names the per-source fetch breakers.
const BreakerPrefix = "fetch:"

// Executor resolves fetch targets. Each attempt selects a proxy, waits for
// rate-limit capacity and host pacing, then sends the request under the
// source's circuit breaker.
type Executor struct {
	cfg      Config
	http     Transport
	browser  Transport
	pool     *proxy.Pool
	limiter  *ratelimit.Limiter
	breakers *circuitbreaker.Registry
	pacer    *Pacer
	prints   *Fingerprinter
	clock    clock.Clock
	sink     telemetry.Sink
	log      infralogger.Logger

	pacerRand *rand.Rand
}

// Option customises an Executor.
type Option func(*Executor)

// WithPool routes requests through proxies from pool.
func WithPool(pool *proxy.Pool) Option { return func(e *Executor) { e.pool = pool } }

// WithLimiter applies per-source rate limits.
func WithLimiter(l *ratelimit.Limiter) Option { return func(e *Executor) { e.limiter = l } }

// WithBreakers sets the breaker registry shared with the rest of the pipeline.
func WithBreakers(r *circuitbreaker.Registry) Option { return func(e *Executor) { e.breakers = r } }

// WithBrowserTransport sets the transport used for UseBrowser targets.
func WithBrowserTransport(t Transport) Option { return func(e *Executor) { e.browser = t } }

// WithClock injects the time source for backoff and pacing.
func WithClock(c clock.Clock) Option { return func(e *Executor) { e.clock = c } }

// WithSink sets the telemetry sink.
func WithSink(s telemetry.Sink) Option { return func(e *Executor) { e.sink = s } }

// WithLogger sets the logger.
func WithLogger(l infralogger.Logger) Option { return func(e *Executor) { e.log = l } }

// WithRand fixes the random source for fingerprints and pacing. The pacer
// gets its own generator seeded from r, so r is never shared across locks.
func WithRand(r *rand.Rand) Option {
	return func(e *Executor) {
		e.prints = NewFingerprinter(e.cfg.UserAgents, r)
		e.pacerRand = rand.New(rand.NewPCG(r.Uint64(), r.Uint64())) //nolint:gosec // pacing jitter only
	}
}

// NewExecutor creates an Executor. A nil transport uses HTTPTransport.
func NewExecutor(cfg Config, transport Transport, opts ...Option) *Executor {
	cfg = cfg.WithDefaults()
	e := &Executor{
		cfg:   cfg,
		http:  transport,
		clock: clock.Real(),
		sink:  telemetry.Nop(),
		log:   infralogger.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.http == nil {
		e.http = NewHTTPTransport(cfg.Timeout)
	}
	if e.browser == nil {
		e.browser = e.http
	}
	if e.breakers == nil {
		e.breakers = circuitbreaker.NewRegistry(circuitbreaker.Config{}, circuitbreaker.WithRegistryClock(e.clock))
	}
	if e.prints == nil {
		e.prints = NewFingerprinter(cfg.UserAgents, nil)
	}
	e.pacer = NewPacer(cfg, e.clock, e.pacerRand)
	return e
}

// Fetch resolves target for source. It returns a *domain.StatusError for
// non-retryable HTTP statuses and an error wrapping
// domain.ErrTransientNetwork once every attempt has failed transiently.
func (e *Executor) Fetch(ctx context.Context, source string, target domain.FetchTarget) (*Response, error) {
	if _, err := BuildURL(target); err != nil {
		return nil, err
	}

	backoff := e.cfg.Backoff
	backoff.MaxAttempts = e.cfg.MaxAttempts
	backoff.Clock = e.clock
	backoff.Classify = classify

	var resp *Response
	res := retry.Do(ctx, backoff, func(ctx context.Context, attempt int) error {
		r, err := e.attempt(ctx, source, target, attempt)
		if err == nil {
			resp = r
		}
		return err
	})

	switch res.Outcome {
	case retry.Success:
		return resp, nil
	case retry.TransientFailure:
		if errors.Is(res.Err, domain.ErrTransientNetwork) {
			return nil, fmt.Errorf("fetch %s after %d attempts: %w", target.URL, res.Attempts, res.Err)
		}
		return nil, fmt.Errorf("%w: fetch %s after %d attempts: %w",
			domain.ErrTransientNetwork, target.URL, res.Attempts, res.Err)
	default:
		return nil, res.Err
	}
}

func classify(err error) retry.Outcome {
	switch {
	case err == nil:
		return retry.Success
	case errors.Is(err, context.Canceled):
		return retry.TerminalFailure
	case domain.IsTransient(err):
		return retry.TransientFailure
	default:
		return retry.TerminalFailure
	}
}

func (e *Executor) attempt(ctx context.Context, source string, target domain.FetchTarget, attempt int) (*Response, error) {
	req := Request{Target: target, MaxBytes: e.cfg.MaxBodyBytes}

	if e.pool != nil && e.pool.Len() > 0 {
		ep, err := e.pool.Select()
		if err != nil {
			e.emit(source, "", attempt, nil, err)
			return nil, err
		}
		req.Proxy = ep.URL()
		req.ProxyID = ep.ID
	}

	if e.limiter != nil {
		if err := e.limiter.AcquireWithin(ctx, source, e.cfg.MaxRateWait); err != nil {
			e.emit(source, req.ProxyID, attempt, nil, err)
			return nil, err
		}
	}

	host := hostOf(target.URL)
	if err := e.pacer.Wait(ctx, host); err != nil {
		return nil, err
	}
	req.Fingerprint = e.prints.Next()

	transport := e.http
	if target.UseBrowser {
		transport = e.browser
	}

	var (
		resp   *Response
		called bool
	)
	start := e.clock.Now()
	err := e.breakers.Get(BreakerPrefix+source).Execute(ctx, func() error {
		called = true
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()

		r, doErr := transport.Do(callCtx, req)
		if doErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %s: %w", domain.ErrTransientNetwork, target.URL, doErr)
		}
		resp = r
		if retryableStatus(r.StatusCode) {
			return fmt.Errorf("%w: %s: status %d", domain.ErrTransientNetwork, target.URL, r.StatusCode)
		}
		return nil
	})
	latency := e.clock.Now().Sub(start)
	if resp != nil && resp.Latency > 0 {
		latency = resp.Latency
	}

	if called && req.ProxyID != "" && ctx.Err() == nil {
		proxyOK := err == nil && !proxyBlocked(resp.StatusCode)
		if reportErr := e.pool.Report(req.ProxyID, proxyOK, latency); reportErr != nil {
			e.log.Debug("Proxy vanished before report", infralogger.String("proxy", req.ProxyID))
		}
	}

	if err == nil && resp.StatusCode >= http.StatusBadRequest {
		err = &domain.StatusError{URL: target.URL, StatusCode: resp.StatusCode}
	}
	e.emit(source, req.ProxyID, attempt, resp, err)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// retryableStatus reports statuses worth another attempt.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= http.StatusInternalServerError
}

// proxyBlocked reports statuses that usually mean the exit IP was refused.
func proxyBlocked(code int) bool {
	switch code {
	case http.StatusForbidden, http.StatusProxyAuthRequired, http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Host
}

func (e *Executor) emit(source, proxyID string, attempt int, resp *Response, err error) {
	fields := map[string]any{
		"attempt": attempt,
		"outcome": classify(err).String(),
	}
	if proxyID != "" {
		fields["proxy"] = proxyID
	}
	if resp != nil {
		fields["status"] = resp.StatusCode
		fields["latency_seconds"] = resp.Latency.Seconds()
		fields["bytes"] = len(resp.Body)
	}
	if err != nil {
		fields["error_code"] = string(domain.Classify(err))
	}
	e.sink.Emit(telemetry.Event{Kind: telemetry.KindFetch, Name: source, Fields: fields})
}
