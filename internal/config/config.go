// Package config assembles the harvester's configuration from YAML and the
// environment into one validated value.
package config

import (
	"time"

	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/circuitbreaker"
	infraconfig "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/config"
	infralogger "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/logger"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/deadletter"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/extraction"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/fetch"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/llm"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/pipeline"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/proxy"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/ratelimit"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/storage"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/validation"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.yml"

const (
	defaultLLMFailureThreshold = 3
	defaultLLMRecoveryTimeout  = 2 * time.Minute
)

// Config holds all configuration for the harvester.
type Config struct {
	Server        infraconfig.ServerConfig        `yaml:"server"`
	Logging       infralogger.Config              `yaml:"logging"`
	Auth          AuthConfig                      `yaml:"auth"`
	RateLimit     ratelimit.Config                `yaml:"rate_limit"`
	Proxy         proxy.Config                    `yaml:"proxy"`
	Fetch         fetch.Config                    `yaml:"fetch"`
	Breaker       BreakerConfig                   `yaml:"breaker"`
	LLM           llm.Config                      `yaml:"llm"`
	Extraction    extraction.Config               `yaml:"extraction"`
	Validation    validation.Config               `yaml:"validation"`
	Pipeline      pipeline.Config                 `yaml:"pipeline"`
	DeadLetter    deadletter.Config               `yaml:"dead_letter"`
	Storage       storage.Config                  `yaml:"storage"`
	Redis         infraconfig.RedisConfig         `yaml:"redis"`
	Database      infraconfig.DatabaseConfig      `yaml:"database"`
	Elasticsearch infraconfig.ElasticsearchConfig `yaml:"elasticsearch"`
}

// AuthConfig holds admin API authentication. An empty secret leaves the API
// open.
type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET" yaml:"jwt_secret"`
}

// BreakerConfig configures the per-source fetch breakers and the LLM breaker.
type BreakerConfig struct {
	Fetch circuitbreaker.Config `yaml:"fetch"`
	LLM   circuitbreaker.Config `yaml:"llm"`
}

// Load reads path, applies environment overrides and fills defaults. The
// result is not validated.
func Load(path string) (*Config, error) {
	cfg, err := infraconfig.Load[Config](path)
	if err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	return cfg, nil
}

// SetDefaults fills every zero field.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.Logging.SetDefaults()
	c.RateLimit = c.RateLimit.WithDefaults()
	c.Proxy = c.Proxy.WithDefaults()
	c.Fetch = c.Fetch.WithDefaults()
	c.Breaker.Fetch = c.Breaker.Fetch.WithDefaults()
	if c.Breaker.LLM.FailureThreshold == 0 {
		c.Breaker.LLM.FailureThreshold = defaultLLMFailureThreshold
	}
	if c.Breaker.LLM.Timeout == 0 {
		c.Breaker.LLM.Timeout = defaultLLMRecoveryTimeout
	}
	c.Breaker.LLM = c.Breaker.LLM.WithDefaults()
	c.LLM = c.LLM.WithDefaults()
	c.Extraction = c.Extraction.WithDefaults()
	c.Validation = c.Validation.WithDefaults()
	c.Pipeline = c.Pipeline.WithDefaults()
	c.DeadLetter = c.DeadLetter.WithDefaults()
	c.Storage = c.Storage.WithDefaults()
	c.Redis.SetDefaults()
	c.Database.SetDefaults()
	c.Elasticsearch.SetDefaults()
}

// Validate returns a *config.ValidationError for the first bad field.
// Connection settings are checked only for the backends in use.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := infraconfig.ValidateLogLevel(c.Logging.Level); err != nil {
		return err
	}

	validators := []func() error{
		c.RateLimit.Validate,
		c.Proxy.Validate,
		c.Fetch.Validate,
		c.LLM.Validate,
		c.Extraction.Validate,
		c.Validation.Validate,
		c.Pipeline.Validate,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}

	if c.Breaker.Fetch.FailureThreshold < 1 {
		return infraconfig.Invalid("breaker.fetch.failure_threshold", "must be greater than zero")
	}
	if c.Breaker.LLM.FailureThreshold < 1 {
		return infraconfig.Invalid("breaker.llm.failure_threshold", "must be greater than zero")
	}

	switch c.DeadLetter.Backend {
	case deadletter.BackendMemory:
	case deadletter.BackendRedis:
		if c.Redis.Address == "" {
			return infraconfig.Invalid("redis.address", "is required for the redis dead letter backend")
		}
	case deadletter.BackendPostgres:
		if err := c.Database.Validate(); err != nil {
			return err
		}
	default:
		return infraconfig.Invalid("dead_letter.backend", "unknown backend %q", c.DeadLetter.Backend)
	}

	switch c.Storage.Backend {
	case storage.BackendMemory:
	case storage.BackendElasticsearch:
		if c.Elasticsearch.URL == "" {
			return infraconfig.Invalid("elasticsearch.url", "is required for the elasticsearch storage backend")
		}
	case storage.BackendPostgres:
		if err := c.Database.Validate(); err != nil {
			return err
		}
	default:
		return infraconfig.Invalid("storage.backend", "unknown backend %q", c.Storage.Backend)
	}
	return nil
}

// UsesPostgres reports whether any backend needs the database.
func (c *Config) UsesPostgres() bool {
	return c.DeadLetter.Backend == deadletter.BackendPostgres || c.Storage.Backend == storage.BackendPostgres
}
