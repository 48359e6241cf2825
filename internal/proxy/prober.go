package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	infrahttp "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/http"
	infralogger "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/logger"
)

// Checker tests a single proxy and returns the observed latency.
type Checker interface {
	Check(ctx context.Context, e Endpoint) (time.Duration, error)
}

// HTTPChecker fetches a fixed URL through the proxy.
type HTTPChecker struct {
	URL     string
	Timeout time.Duration
}

// Check implements Checker. Any 2xx or 3xx response counts as healthy.
func (c HTTPChecker) Check(ctx context.Context, e Endpoint) (time.Duration, error) {
	client := infrahttp.NewProxyClient(e.URL(), c.Timeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("build probe request: %w", err)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return 0, fmt.Errorf("probe %s: status %d", e.ID, resp.StatusCode)
	}
	return time.Since(start), nil
}

// Prober periodically tests proxies on probation so they can rejoin the
// pool without risking a real request.
type Prober struct {
	pool    *Pool
	checker Checker
	timeout time.Duration
	log     infralogger.Logger
	cron    *cron.Cron

	running sync.Mutex
}

// NewProber schedules probes on cfg.ProbeSchedule.
func NewProber(pool *Pool, checker Checker, cfg Config, log infralogger.Logger) (*Prober, error) {
	cfg = cfg.WithDefaults()
	if log == nil {
		log = infralogger.NewNop()
	}

	p := &Prober{
		pool:    pool,
		checker: checker,
		timeout: cfg.ProbeTimeout,
		log:     log,
		cron:    cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
	}
	if _, err := p.cron.AddFunc(cfg.ProbeSchedule, func() { p.ProbeOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid probe schedule %q: %w", cfg.ProbeSchedule, err)
	}
	return p, nil
}

// Start begins the schedule.
func (p *Prober) Start() { p.cron.Start() }

// Stop halts the schedule and waits for a running probe to finish.
func (p *Prober) Stop() {
	<-p.cron.Stop().Done()
}

// ProbeOnce checks every proxy due for probation and reports the result to
// the pool. Overlapping runs are skipped.
func (p *Prober) ProbeOnce(ctx context.Context) int {
	if !p.running.TryLock() {
		return 0
	}
	defer p.running.Unlock()

	due := p.pool.DueForProbe()
	for _, e := range due {
		probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
		latency, err := p.checker.Check(probeCtx, e)
		cancel()

		if err != nil {
			p.log.Debug("Proxy probe failed", infralogger.String("proxy", e.ID), infralogger.Error(err))
		}
		if reportErr := p.pool.Report(e.ID, err == nil, latency); reportErr != nil {
			p.log.Warn("Proxy removed during probe", infralogger.String("proxy", e.ID))
		}
	}
	return len(due)
}
