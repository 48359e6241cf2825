package extraction

import (
	"time"

	infraconfig "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/config"
	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/retry"
)

// CharsPerToken is the rough ratio used to turn a token budget into a
// character limit.
const CharsPerToken = 4

// Config holds extraction engine configuration.
type Config struct {
	// TokenBudget caps the content sent to the model.
	TokenBudget int `env:"EXTRACTION_TOKEN_BUDGET" yaml:"token_budget"`
	// MaxTokens caps the model's reply.
	MaxTokens int `yaml:"max_tokens"`
	// LLMMaxAttempts counts every call to the model, including retries after
	// unparseable output.
	LLMMaxAttempts int          `env:"EXTRACTION_LLM_MAX_ATTEMPTS" yaml:"llm_max_attempts"`
	Backoff        retry.Config `yaml:"backoff"`
	// MinReadableChars is the shortest readability output preferred over
	// the full page text.
	MinReadableChars int `yaml:"min_readable_chars"`
}

// WithDefaults returns a copy of c with zero fields filled in.
func (c Config) WithDefaults() Config {
	if c.TokenBudget == 0 {
		c.TokenBudget = 3000
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
	if c.LLMMaxAttempts == 0 {
		c.LLMMaxAttempts = 3
	}
	if c.Backoff.InitialDelay == 0 {
		c.Backoff.InitialDelay = 500 * time.Millisecond
	}
	if c.Backoff.MaxDelay == 0 {
		c.Backoff.MaxDelay = 10 * time.Second
	}
	if c.MinReadableChars == 0 {
		c.MinReadableChars = 200
	}
	return c
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if err := infraconfig.ValidatePositive("extraction.token_budget", c.TokenBudget); err != nil {
		return err
	}
	if err := infraconfig.ValidatePositive("extraction.max_tokens", c.MaxTokens); err != nil {
		return err
	}
	return infraconfig.ValidatePositive("extraction.llm_max_attempts", c.LLMMaxAttempts)
}
