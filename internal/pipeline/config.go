package pipeline

import (
	"time"

	infraconfig "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/config"
	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/retry"
)

const (
	defaultBatchSize         = 50
	defaultConcurrency       = 4
	defaultMaxAttempts       = 3
	defaultAttemptTimeout    = 2 * time.Minute
	defaultDeadLetterTimeout = 10 * time.Second
)

// Config holds pipeline configuration.
type Config struct {
	// BatchSize is how many intake items Run hands to one ProcessBatch call.
	BatchSize int `env:"PIPELINE_BATCH_SIZE" yaml:"batch_size"`
	// Concurrency caps items in flight across every batch and stream.
	Concurrency int `env:"PIPELINE_CONCURRENCY" yaml:"concurrency"`
	MaxAttempts int `env:"PIPELINE_MAX_ATTEMPTS" yaml:"max_attempts"`
	// BatchPacing is the pause Run takes between consecutive batches.
	BatchPacing time.Duration `yaml:"batch_pacing"`
	// AttemptTimeout bounds one fetch, extract, validate and store pass.
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	// DeadLetterTimeout bounds a DLQ write. The write is detached from the
	// caller's cancellation so a terminal outcome is never lost to it.
	DeadLetterTimeout time.Duration `yaml:"dead_letter_timeout"`
	Backoff           retry.Config  `yaml:"backoff"`
}

// WithDefaults returns a copy of c with zero fields filled in.
func (c Config) WithDefaults() Config {
	if c.BatchSize == 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.Concurrency == 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.AttemptTimeout == 0 {
		c.AttemptTimeout = defaultAttemptTimeout
	}
	if c.DeadLetterTimeout == 0 {
		c.DeadLetterTimeout = defaultDeadLetterTimeout
	}
	if c.Backoff.InitialDelay == 0 {
		c.Backoff.InitialDelay = time.Second
	}
	if c.Backoff.MaxDelay == 0 {
		c.Backoff.MaxDelay = time.Minute
	}
	return c
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if err := infraconfig.ValidatePositive("pipeline.batch_size", c.BatchSize); err != nil {
		return err
	}
	if err := infraconfig.ValidatePositive("pipeline.concurrency", c.Concurrency); err != nil {
		return err
	}
	if err := infraconfig.ValidatePositive("pipeline.max_attempts", c.MaxAttempts); err != nil {
		return err
	}
	if c.BatchPacing < 0 {
		return infraconfig.Invalid("pipeline.batch_pacing", "must not be negative")
	}
	if c.AttemptTimeout <= 0 {
		return infraconfig.Invalid("pipeline.attempt_timeout", "must be positive")
	}
	if c.Backoff.Multiplier != 0 && c.Backoff.Multiplier < 1 {
		return infraconfig.Invalid("pipeline.backoff.multiplier", "must be at least 1, got %v", c.Backoff.Multiplier)
	}
	return nil
}
