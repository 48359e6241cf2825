package bootstrap

import (
	"context"
	"errors"
	"fmt"

	infragin "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/gin"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/extraction"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/llm"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/validation"
)

var errLLMUnhealthy = errors.New("llm health check failed")

func (a *App) setupExtraction() error {
	cfg := a.Config

	client, err := llm.New(cfg.LLM)
	if err != nil {
		return fmt.Errorf("create llm client: %w", err)
	}
	if client != nil {
		guarded := llm.NewBreakerClient(client, a.Breakers.Get(llm.BreakerName), cfg.LLM.Timeout)
		a.LLM = guarded
		a.checks["llm"] = infragin.PingChecker(func(ctx context.Context) error {
			if !guarded.Health(ctx) {
				return errLLMUnhealthy
			}
			return nil
		}, infragin.HealthStatusDegraded)
	}

	a.Engine = extraction.NewEngine(a.LLM, cfg.Extraction,
		extraction.WithSink(a.Sink),
		extraction.WithLogger(a.Logger),
	)
	a.Validator = validation.New(cfg.Validation)
	return nil
}
