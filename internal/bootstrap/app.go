// Package bootstrap assembles the harvester from its configuration.
//
// Build runs these phases in order:
//   - Telemetry: Prometheus registry and the metrics and log sinks
//   - Backends: database, Redis and Elasticsearch clients for the selected
//     dead-letter and storage backends
//   - Fetching: proxy pool, rate limiter, circuit breakers, fetch executor
//   - Extraction: LLM client, extraction engine, validator
//   - Pipeline: intake queue and the processing pipeline
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/circuitbreaker"
	infragin "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/gin"
	infralogger "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/logger"
	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/metrics"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/config"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/deadletter"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/domain"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/extraction"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/fetch"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/llm"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/pipeline"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/proxy"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/ratelimit"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/storage"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/telemetry"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/validation"
)

// ServiceName identifies the harvester in logs, health and profiles.
const ServiceName = "listing-harvester"

const metricsNamespace = "harvester"

// App holds every wired component.
type App struct {
	Config *config.Config
	Logger infralogger.Logger

	Metrics     *telemetry.Metrics
	HTTPMetrics *metrics.HTTPMetrics
	Sink        telemetry.Sink

	Pool     *proxy.Pool
	Limiter  *ratelimit.Limiter
	Breakers *circuitbreaker.Registry
	Fetcher  *fetch.Executor

	LLM       llm.Client
	Engine    *extraction.Engine
	Validator *validation.Validator

	Repository storage.Repository
	DeadLetter deadletter.Store
	Replayer   *deadletter.Replayer
	Intake     *pipeline.Intake
	Pipeline   *pipeline.Pipeline

	prober  *proxy.Prober
	watcher *proxy.Watcher
	checks  map[string]infragin.HealthChecker
	closers []func() error
	started time.Time
}

// Build validates cfg and wires the application. On error every resource
// opened so far is closed.
func Build(ctx context.Context, cfg *config.Config, log infralogger.Logger) (app *App, err error) {
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app = &App{
		Config:  cfg,
		Logger:  log,
		checks:  make(map[string]infragin.HealthChecker),
		started: time.Now(),
	}
	defer func() {
		if err != nil {
			if closeErr := app.Close(); closeErr != nil {
				log.Warn("Failed to release resources after bootstrap error", infralogger.Error(closeErr))
			}
			app = nil
		}
	}()

	app.setupTelemetry(prometheus.NewRegistry())

	if err = app.setupBackends(ctx); err != nil {
		return nil, err
	}
	if err = app.setupFetching(); err != nil {
		return nil, err
	}
	if err = app.setupExtraction(); err != nil {
		return nil, err
	}
	if err = app.setupPipeline(); err != nil {
		return nil, err
	}

	log.Info("Harvester assembled",
		infralogger.String("storage_backend", cfg.Storage.Backend),
		infralogger.String("dead_letter_backend", cfg.DeadLetter.Backend),
		infralogger.String("llm_provider", cfg.LLM.Provider),
		infralogger.Int("proxies", app.proxyCount()),
	)
	return app, nil
}

func (a *App) setupTelemetry(reg *prometheus.Registry) {
	a.Metrics = telemetry.NewMetrics(reg)
	a.HTTPMetrics = metrics.NewHTTPMetrics(reg, metricsNamespace)
	a.Sink = telemetry.Multi(telemetry.NewPrometheusSink(a.Metrics), telemetry.NewLogSink(a.Logger))
}

func (a *App) setupPipeline() error {
	a.Replayer = deadletter.NewReplayer(a.DeadLetter, a.Logger)
	a.Intake = pipeline.NewIntake()

	deps := pipeline.Deps{
		Extractor:  a.Engine,
		Validator:  a.Validator,
		Repository: a.Repository,
		DeadLetter: a.DeadLetter,
		Sink:       a.Sink,
		Intake:     a.Intake,
	}
	if a.Fetcher != nil {
		deps.Fetcher = a.Fetcher
	}

	p, err := pipeline.New(deps, a.Config.Pipeline, a.Logger)
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}
	a.Pipeline = p
	return nil
}

func (a *App) proxyCount() int {
	if a.Pool == nil {
		return 0
	}
	return a.Pool.Len()
}

// Submit pushes a replayed item onto the intake queue.
func (a *App) Submit(_ context.Context, item domain.WorkItem) error {
	a.Intake.Push(item)
	return nil
}

func (a *App) addCloser(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close stops background work and releases connections in reverse order.
func (a *App) Close() error {
	if a.prober != nil {
		a.prober.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
