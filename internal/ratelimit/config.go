package ratelimit

import (
	"math"
	"time"

	infraconfig "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/config"
)

// Default values for Config.
const (
	DefaultCeiling      = 100
	DefaultWindow       = time.Hour
	DefaultSafetyMargin = 0.1
	DefaultMaxWait      = 30 * time.Second
)

// SourceLimit overrides the default limit for one source. Zero fields and a
// nil SafetyMargin inherit from Config.
type SourceLimit struct {
	Ceiling      int           `yaml:"ceiling"`
	Window       time.Duration `yaml:"window"`
	SafetyMargin *float64      `yaml:"safety_margin"`
}

// Margin returns a pointer for the SafetyMargin fields.
func Margin(f float64) *float64 { return &f }

// Config holds rate limiter configuration.
type Config struct {
	Ceiling      int           `env:"RATE_LIMIT_CEILING"       yaml:"ceiling"`
	Window       time.Duration `env:"RATE_LIMIT_WINDOW"        yaml:"window"`
	// SafetyMargin is nil when unset; an explicit zero reserves nothing.
	SafetyMargin *float64      `env:"RATE_LIMIT_SAFETY_MARGIN" yaml:"safety_margin"`
	// MaxWait bounds how long the pipeline lets a caller wait before the
	// wait is reported as ErrRateLimitExceeded.
	MaxWait time.Duration          `env:"RATE_LIMIT_MAX_WAIT" yaml:"max_wait"`
	Sources map[string]SourceLimit `yaml:"sources"`
}

// WithDefaults returns a copy of c with zero fields filled in.
func (c Config) WithDefaults() Config {
	if c.Ceiling == 0 {
		c.Ceiling = DefaultCeiling
	}
	if c.Window == 0 {
		c.Window = DefaultWindow
	}
	if c.SafetyMargin == nil {
		c.SafetyMargin = Margin(DefaultSafetyMargin)
	}
	if c.MaxWait == 0 {
		c.MaxWait = DefaultMaxWait
	}
	return c
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if err := infraconfig.ValidatePositive("rate_limit.ceiling", c.Ceiling); err != nil {
		return err
	}
	if c.Window <= 0 {
		return infraconfig.Invalid("rate_limit.window", "must be positive")
	}
	margin := marginOf(c.SafetyMargin, DefaultSafetyMargin)
	if err := infraconfig.ValidateFraction("rate_limit.safety_margin", margin); err != nil {
		return err
	}
	if EffectiveCapacity(c.Ceiling, margin) < 1 {
		return infraconfig.Invalid("rate_limit.ceiling", "leaves no capacity after the safety margin")
	}
	for name, s := range c.Sources {
		field := "rate_limit.sources." + name
		if s.Ceiling < 0 || s.Window < 0 {
			return infraconfig.Invalid(field, "must not be negative")
		}
		if err := infraconfig.ValidateFraction(field+".safety_margin", marginOf(s.SafetyMargin, margin)); err != nil {
			return err
		}
		if capacity, _ := c.limitFor(name); capacity < 1 {
			return infraconfig.Invalid(field+".ceiling", "leaves no capacity after the safety margin")
		}
	}
	return nil
}

func marginOf(m *float64, fallback float64) float64 {
	if m == nil {
		return fallback
	}
	return *m
}

// limitFor resolves the effective ceiling, window and margin for source.
func (c Config) limitFor(source string) (capacity int, window time.Duration) {
	ceiling, window := c.Ceiling, c.Window
	margin := marginOf(c.SafetyMargin, DefaultSafetyMargin)
	if s, ok := c.Sources[source]; ok {
		if s.Ceiling > 0 {
			ceiling = s.Ceiling
		}
		if s.Window > 0 {
			window = s.Window
		}
		margin = marginOf(s.SafetyMargin, margin)
	}
	return EffectiveCapacity(ceiling, margin), window
}

// EffectiveCapacity is floor(ceiling × (1 − margin)). It is zero when the
// margin leaves less than one request, which Validate rejects.
func EffectiveCapacity(ceiling int, margin float64) int {
	const epsilon = 1e-9
	return max(int(math.Floor(float64(ceiling)*(1-margin)+epsilon)), 0)
}
