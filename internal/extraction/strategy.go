package extraction

import (
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/domain"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/llm"
)

// Strategy is the extraction path chosen for one item. It is either
// PrimaryStrategy or FallbackStrategy.
type Strategy interface {
	Method() domain.Method
	isStrategy()
}

// PrimaryStrategy prompts the language model.
type PrimaryStrategy struct {
	Client llm.Client
}

// Method implements Strategy.
func (PrimaryStrategy) Method() domain.Method { return domain.MethodLLMPrimary }
func (PrimaryStrategy) isStrategy()           {}

// FallbackStrategy applies deterministic selectors and patterns. Reason
// records why the primary path was not used.
type FallbackStrategy struct {
	Reason string
}

// Method implements Strategy.
func (FallbackStrategy) Method() domain.Method { return domain.MethodFallback }
func (FallbackStrategy) isStrategy()           {}

// availability is implemented by clients that can refuse calls up front,
// such as llm.BreakerClient.
type availability interface {
	Available() bool
}

// Reasons recorded when the primary path is skipped.
const (
	ReasonNoClient    = "no llm client configured"
	ReasonCircuitOpen = "llm circuit open"
)

// capability picks the strategy for the next item without calling the model.
func (e *Engine) capability() Strategy {
	if e.client == nil {
		return FallbackStrategy{Reason: ReasonNoClient}
	}
	if a, ok := e.client.(availability); ok && !a.Available() {
		return FallbackStrategy{Reason: ReasonCircuitOpen}
	}
	return PrimaryStrategy{Client: e.client}
}
