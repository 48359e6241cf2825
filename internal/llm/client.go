// Package llm defines the completion client used by the extraction engine
// and its implementations.
package llm

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks . Client

import (
	"context"
	"errors"
	"time"

	infraconfig "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/config"
)

// ErrNotConfigured is returned by clients missing credentials or an endpoint.
var ErrNotConfigured = errors.New("llm client not configured")

// ErrEmptyCompletion is returned when the model produced no text.
var ErrEmptyCompletion = errors.New("llm returned no text")

// Client is the completion contract the extraction engine depends on.
type Client interface {
	Complete(ctx context.Context, prompt, systemPrompt string, maxTokens int) (string, error)
	Health(ctx context.Context) bool
}

// Provider names.
const (
	ProviderNone      = "none"
	ProviderAnthropic = "anthropic"
	ProviderHTTP      = "http"
)

// Config holds LLM client configuration.
type Config struct {
	Provider string `env:"LLM_PROVIDER" yaml:"provider"`
	Model    string `env:"LLM_MODEL"    yaml:"model"`
	APIKey   string `env:"LLM_API_KEY"  yaml:"api_key"`
	// BaseURL overrides the API endpoint. Required for the http provider.
	BaseURL   string        `env:"LLM_BASE_URL" yaml:"base_url"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `env:"LLM_TIMEOUT" yaml:"timeout"`
}

// WithDefaults returns a copy of c with zero fields filled in.
func (c Config) WithDefaults() Config {
	if c.Provider == "" {
		c.Provider = ProviderNone
	}
	if c.Model == "" && c.Provider == ProviderAnthropic {
		c.Model = "claude-3-5-haiku-latest"
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	return c
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderNone:
		return nil
	case ProviderAnthropic:
		if c.APIKey == "" {
			return infraconfig.Invalid("llm.api_key", "is required for the anthropic provider")
		}
	case ProviderHTTP:
		if c.BaseURL == "" {
			return infraconfig.Invalid("llm.base_url", "is required for the http provider")
		}
		if c.Model == "" {
			return infraconfig.Invalid("llm.model", "is required for the http provider")
		}
	default:
		return infraconfig.Invalid("llm.provider", "unknown provider %q", c.Provider)
	}
	if c.Timeout <= 0 {
		return infraconfig.Invalid("llm.timeout", "must be positive")
	}
	return infraconfig.ValidatePositive("llm.max_tokens", c.MaxTokens)
}

// New builds the client named by cfg.Provider. It returns nil for the none
// provider, which leaves the extraction engine on its fallback strategy.
func New(cfg Config) (Client, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case ProviderAnthropic:
		return NewAnthropicClient(cfg), nil
	case ProviderHTTP:
		return NewHTTPClient(cfg), nil
	default:
		return nil, nil
	}
}
