package proxy

import (
	"time"

	infraconfig "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/config"
)

// Config holds proxy pool configuration.
type Config struct {
	// File is the proxy list; empty disables proxying.
	File string `env:"PROXY_FILE" yaml:"file"`
	// Watch reloads File when it changes.
	Watch bool `env:"PROXY_WATCH" yaml:"watch"`

	FailureThreshold   int           `env:"PROXY_FAILURE_THRESHOLD" yaml:"failure_threshold"`
	CooldownDuration   time.Duration `env:"PROXY_COOLDOWN"          yaml:"cooldown_duration"`
	CooldownMultiplier float64       `yaml:"cooldown_multiplier"`
	MaxCooldown        time.Duration `yaml:"max_cooldown"`
	// TestingWeight scales the selection weight of proxies on probation.
	TestingWeight float64 `yaml:"testing_weight"`

	ProbeURL      string        `env:"PROXY_PROBE_URL" yaml:"probe_url"`
	ProbeSchedule string        `yaml:"probe_schedule"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
}

// WithDefaults returns a copy of c with zero fields filled in.
func (c Config) WithDefaults() Config {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 3
	}
	if c.CooldownDuration == 0 {
		c.CooldownDuration = 5 * time.Minute
	}
	if c.CooldownMultiplier == 0 {
		c.CooldownMultiplier = 2
	}
	if c.MaxCooldown == 0 {
		c.MaxCooldown = time.Hour
	}
	if c.TestingWeight == 0 {
		c.TestingWeight = 0.25
	}
	if c.ProbeSchedule == "" {
		c.ProbeSchedule = "@every 1m"
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = 10 * time.Second
	}
	return c
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if err := infraconfig.ValidatePositive("proxy.failure_threshold", c.FailureThreshold); err != nil {
		return err
	}
	if c.CooldownDuration <= 0 {
		return infraconfig.Invalid("proxy.cooldown_duration", "must be positive")
	}
	if c.CooldownMultiplier < 1 {
		return infraconfig.Invalid("proxy.cooldown_multiplier", "must be at least 1")
	}
	if c.MaxCooldown < c.CooldownDuration {
		return infraconfig.Invalid("proxy.max_cooldown", "must not be shorter than cooldown_duration")
	}
	if c.TestingWeight <= 0 || c.TestingWeight > 1 {
		return infraconfig.Invalid("proxy.testing_weight", "must be in (0, 1]")
	}
	return nil
}
