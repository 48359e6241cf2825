package elasticsearch

import (
	"net/http"
	"time"

	infraconfig "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/config"
	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/retry"
)

// Config holds Elasticsearch client configuration
type Config struct {
	// URL is the Elasticsearch server URL (e.g., http://elasticsearch:9200)
	URL string

	Username string
	Password string
	APIKey   string

	// TLS configuration for secure connections
	TLS *TLSConfig

	// MaxRetries is the maximum number of retries for client operations (default: 3)
	MaxRetries int

	// PingTimeout is the timeout for ping verification (default: 5s)
	PingTimeout time.Duration

	// Retry governs connection verification on startup.
	Retry retry.Config

	// Transport replaces the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// TLSConfig holds TLS configuration for Elasticsearch connections
type TLSConfig struct {
	Enabled bool
	// InsecureSkipVerify skips certificate verification (for development/testing)
	InsecureSkipVerify bool
	CertFile           string
	KeyFile            string
	CAFile             string
}

// FromSettings builds a client Config from the loaded application settings.
func FromSettings(s infraconfig.ElasticsearchConfig) Config {
	return Config{
		URL:        s.URL,
		Username:   s.Username,
		Password:   s.Password,
		MaxRetries: s.MaxRetries,
	}
}

// SetDefaults applies default values to the config if not set
func (c *Config) SetDefaults() {
	if c.URL == "" {
		c.URL = "http://localhost:9200"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = 5 * time.Second
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry = retry.Config{
			MaxAttempts:  5,
			InitialDelay: 2 * time.Second,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
		}
	}
}
