package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	infragin "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/gin"
	infralogger "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/logger"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/api"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/domain"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/pipeline"
)

// Version is stamped at build time.
var Version = "dev"

// minIdlePoll keeps an empty intake from being polled in a tight loop.
const minIdlePoll = time.Second

// StartBackground starts the proxy prober and file watcher, when configured.
// Both stop when ctx is done or Close is called.
func (a *App) StartBackground(ctx context.Context) {
	if a.prober != nil {
		a.prober.Start()
	}
	if a.watcher != nil {
		go func() {
			if err := a.watcher.Run(ctx); err != nil {
				a.Logger.Error("Proxy watcher stopped", infralogger.Error(err))
			}
		}()
	}
}

// HTTPServer builds the admin server with health, metrics and API routes.
func (a *App) HTTPServer() *infragin.Server {
	cfg := infragin.Config{
		Server:         a.Config.Server,
		Debug:          a.Config.Logging.Development,
		ServiceName:    ServiceName,
		ServiceVersion: Version,
	}
	handler := api.NewHandler(api.Deps{
		Proxies:    a.proxies(),
		RateLimits: a.Limiter,
		Breakers:   a.Breakers,
		DeadLetter: a.DeadLetter,
		Replayer:   a.Replayer,
		Submit:     a.Submit,
		Metrics:    a.Metrics.Handler(),
	}, a.Logger)

	return infragin.NewServer(cfg, a.Logger, func(router *gin.Engine) {
		router.Use(a.HTTPMetrics.Middleware())
		infragin.RegisterHealthRoutes(router, infragin.HealthOptions{
			ServiceName:    ServiceName,
			ServiceVersion: Version,
			StartTime:      a.started,
			Checks:         a.checks,
		})
		api.SetupRoutes(router, handler, a.Config.Auth.JWTSecret)
	})
}

// proxies avoids handing a typed nil pool to the API.
func (a *App) proxies() api.ProxyPool {
	if a.Pool == nil {
		return nil
	}
	return a.Pool
}

// Serve runs the admin server and drains the intake queue until ctx is
// cancelled.
func (a *App) Serve(ctx context.Context) error {
	a.StartBackground(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.HTTPServer().Run(gctx) })
	g.Go(func() error { return a.drain(gctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// drain processes whatever the intake holds, then waits one pacing interval
// before looking again.
func (a *App) drain(ctx context.Context) error {
	poll := max(a.Config.Pipeline.BatchPacing, minIdlePoll)
	timer := time.NewTimer(poll)
	defer timer.Stop()
	for {
		if a.Intake.Len() > 0 {
			summary, err := a.Pipeline.Run(ctx)
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("pipeline run: %w", err)
			}
			logSummary(a.Logger, summary)
		}
		timer.Reset(poll)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RunOnce pushes items onto the intake and processes until it is empty or
// ctx is cancelled.
func (a *App) RunOnce(ctx context.Context, items []domain.WorkItem) (pipeline.Summary, error) {
	a.StartBackground(ctx)
	a.Intake.Push(items...)
	return a.Pipeline.Run(ctx)
}

func logSummary(log infralogger.Logger, s pipeline.Summary) {
	if s.Total() == 0 {
		return
	}
	log.Info("Intake drained",
		infralogger.Int("accepted", s.Accepted),
		infralogger.Int("rejected", s.Rejected),
		infralogger.Int("dead_lettered", s.DeadLettered),
		infralogger.Int("requeued", s.Requeued),
	)
}
