package fetch

import (
	"time"

	infraconfig "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/config"
	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/retry"
)

// Config holds fetch executor configuration.
type Config struct {
	MaxAttempts int `env:"FETCH_MAX_ATTEMPTS" yaml:"max_attempts"`
	// Timeout bounds a single request, including reading the body.
	Timeout      time.Duration `env:"FETCH_TIMEOUT" yaml:"timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`

	// MinDelay and MaxDelay bound the random pause before every request.
	MinDelay time.Duration `yaml:"min_delay"`
	MaxDelay time.Duration `yaml:"max_delay"`
	// HostRate is the sustained requests per second allowed per host; zero
	// disables host pacing.
	HostRate  float64 `yaml:"host_rate"`
	HostBurst int     `yaml:"host_burst"`

	// MaxRateWait is how long an attempt may wait on the source rate limiter.
	MaxRateWait time.Duration `yaml:"max_rate_wait"`

	Backoff    retry.Config `yaml:"backoff"`
	UserAgents []string     `yaml:"user_agents"`
}

// WithDefaults returns a copy of c with zero fields filled in.
func (c Config) WithDefaults() Config {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = 5 << 20
	}
	if c.HostBurst == 0 {
		c.HostBurst = 1
	}
	if c.Backoff.InitialDelay == 0 {
		c.Backoff.InitialDelay = time.Second
	}
	if c.Backoff.Jitter == 0 {
		c.Backoff.Jitter = 0.2
	}
	if len(c.UserAgents) == 0 {
		c.UserAgents = defaultUserAgents
	}
	return c
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if err := infraconfig.ValidatePositive("fetch.max_attempts", c.MaxAttempts); err != nil {
		return err
	}
	if c.Timeout <= 0 {
		return infraconfig.Invalid("fetch.timeout", "must be positive")
	}
	if c.MaxDelay < c.MinDelay {
		return infraconfig.Invalid("fetch.max_delay", "must not be less than min_delay")
	}
	if c.HostRate < 0 {
		return infraconfig.Invalid("fetch.host_rate", "must not be negative")
	}
	return nil
}
