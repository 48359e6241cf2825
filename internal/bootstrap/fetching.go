package bootstrap

import (
	"errors"
	"fmt"

	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/circuitbreaker"
	infralogger "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/logger"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/fetch"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/llm"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/proxy"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/ratelimit"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/telemetry"
)

// ErrEmptyProxyList is returned when a proxy file is configured but lists
// no proxies.
var ErrEmptyProxyList = errors.New("proxy list is empty")

func (a *App) setupFetching() error {
	cfg := a.Config

	a.Breakers = circuitbreaker.NewRegistry(cfg.Breaker.Fetch,
		circuitbreaker.WithOverride(llm.BreakerName, cfg.Breaker.LLM),
		circuitbreaker.WithTransitionHook(a.circuitTransition),
	)
	a.Limiter = ratelimit.New(cfg.RateLimit, ratelimit.WithLogger(a.Logger))

	opts := []fetch.Option{
		fetch.WithLimiter(a.Limiter),
		fetch.WithBreakers(a.Breakers),
		fetch.WithBrowserTransport(fetch.NewCollyTransport(cfg.Fetch.Timeout)),
		fetch.WithSink(a.Sink),
		fetch.WithLogger(a.Logger),
	}

	if cfg.Proxy.File != "" {
		if err := a.setupProxies(); err != nil {
			return err
		}
		opts = append(opts, fetch.WithPool(a.Pool))
	}

	a.Fetcher = fetch.NewExecutor(cfg.Fetch, nil, opts...)
	return nil
}

func (a *App) setupProxies() error {
	cfg := a.Config.Proxy

	endpoints, err := proxy.LoadFile(cfg.File)
	if err != nil {
		return fmt.Errorf("load proxies: %w", err)
	}
	if len(endpoints) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyProxyList, cfg.File)
	}
	a.Pool = proxy.NewPool(endpoints, cfg, proxy.WithSink(a.Sink))

	if cfg.ProbeURL != "" {
		checker := proxy.HTTPChecker{URL: cfg.ProbeURL, Timeout: cfg.ProbeTimeout}
		if a.prober, err = proxy.NewProber(a.Pool, checker, cfg, a.Logger); err != nil {
			return fmt.Errorf("create proxy prober: %w", err)
		}
	}
	if cfg.Watch {
		a.watcher = proxy.NewWatcher(cfg.File, a.Pool, a.Logger)
	}
	return nil
}

func (a *App) circuitTransition(name string, from, to circuitbreaker.State) {
	a.Sink.Emit(telemetry.Event{
		Kind: telemetry.KindCircuitState,
		Name: name,
		Fields: map[string]any{
			"from": from.String(),
			"to":   to.String(),
		},
	})
	if to == circuitbreaker.StateOpen {
		a.Logger.Warn("Circuit opened", infralogger.String("circuit", name))
	}
}
