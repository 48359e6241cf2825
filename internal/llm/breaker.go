package llm

import (
	"context"
	"time"

	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/circuitbreaker"
)

// BreakerName is the operation class guarding LLM calls.
const BreakerName = "llm-extract"

// BreakerClient runs every completion under a circuit breaker and an
// explicit per-call timeout.
type BreakerClient struct {
	inner   Client
	breaker *circuitbreaker.Breaker
	timeout time.Duration
}

// NewBreakerClient decorates inner.
func NewBreakerClient(inner Client, breaker *circuitbreaker.Breaker, timeout time.Duration) *BreakerClient {
	return &BreakerClient{inner: inner, breaker: breaker, timeout: timeout}
}

// Complete implements Client. While the breaker is open it returns
// circuitbreaker.ErrCircuitOpen without calling inner.
func (c *BreakerClient) Complete(ctx context.Context, prompt, systemPrompt string, maxTokens int) (string, error) {
	var out string
	err := c.breaker.Execute(ctx, func() error {
		callCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		text, err := c.inner.Complete(callCtx, prompt, systemPrompt, maxTokens)
		if err != nil {
			return err
		}
		out = text
		return nil
	})
	return out, err
}

// Health implements Client. It does not go through the breaker.
func (c *BreakerClient) Health(ctx context.Context) bool {
	return c.inner.Health(ctx)
}

// Available reports whether the breaker would admit a call now.
func (c *BreakerClient) Available() bool {
	return c.breaker.Allows()
}
