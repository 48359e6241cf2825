package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/config"
)

type sampleConfig struct {
	Name    string        `env:"SAMPLE_NAME"    yaml:"name"`
	Limit   int           `env:"SAMPLE_LIMIT"   yaml:"limit"`
	Window  time.Duration `env:"SAMPLE_WINDOW"  yaml:"window"`
	Margin  float64       `env:"SAMPLE_MARGIN"  yaml:"margin"`
	Enabled bool          `env:"SAMPLE_ENABLED" yaml:"enabled"`
	Hosts   []string      `env:"SAMPLE_HOSTS"   yaml:"hosts"`
	Nested  struct {
		Level string `env:"SAMPLE_NESTED_LEVEL" yaml:"level"`
	} `yaml:"nested"`
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := writeFile(t, "name: zillow\nlimit: 100\nwindow: 1h\nmargin: 0.1\nnested:\n  level: info\n")

	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("SAMPLE_LIMIT", "250")
	t.Setenv("SAMPLE_HOSTS", "a.example, b.example")
	t.Setenv("SAMPLE_NESTED_LEVEL", "debug")
	t.Setenv("SAMPLE_ENABLED", "yes")

	cfg, err := config.Load[sampleConfig](path)
	require.NoError(t, err)

	assert.Equal(t, "zillow", cfg.Name)
	assert.Equal(t, 250, cfg.Limit)
	assert.Equal(t, time.Hour, cfg.Window)
	assert.InDelta(t, 0.1, cfg.Margin, 1e-9)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, []string{"a.example", "b.example"}, cfg.Hosts)
	assert.Equal(t, "debug", cfg.Nested.Level)
}

func TestApplyEnv_PointerKeepsExplicitZero(t *testing.T) {
	type marginConfig struct {
		Margin *float64 `env:"SAMPLE_PTR_MARGIN"`
		Other  *float64 `env:"SAMPLE_PTR_OTHER"`
		Unset  *float64 `env:"SAMPLE_PTR_UNSET"`
	}
	t.Setenv("SAMPLE_PTR_MARGIN", "0")
	t.Setenv("SAMPLE_PTR_OTHER", "not-a-number")

	var cfg marginConfig
	config.ApplyEnv(&cfg)

	require.NotNil(t, cfg.Margin)
	assert.Zero(t, *cfg.Margin)
	assert.Nil(t, cfg.Other)
	assert.Nil(t, cfg.Unset)
}

func TestLoad_MissingFileYieldsEnvOnly(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("SAMPLE_WINDOW", "90s")

	cfg, err := config.Load[sampleConfig](filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Window)
	assert.Empty(t, cfg.Name)
}

func TestLoad_InvalidYAML(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	path := writeFile(t, "limit: [unterminated\n")

	_, err := config.Load[sampleConfig](path)
	require.Error(t, err)
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	assert.Equal(t, "config.yml", config.GetConfigPath("config.yml"))

	t.Setenv("CONFIG_PATH", "/etc/harvester.yml")
	assert.Equal(t, "/etc/harvester.yml", config.GetConfigPath("config.yml"))
}

func TestValidationHelpers(t *testing.T) {
	t.Parallel()

	var verr *config.ValidationError
	require.True(t, errors.As(config.ValidatePort("server.port", 0), &verr))
	assert.Equal(t, "server.port", verr.Field)

	assert.NoError(t, config.ValidateFraction("margin", 0.1))
	assert.Error(t, config.ValidateFraction("margin", 1))
	assert.Error(t, config.ValidatePositive("ceiling", 0))

	db := config.DatabaseConfig{Host: "db", User: "u", Password: "p", Database: "harvest"}
	db.SetDefaults()
	require.NoError(t, db.Validate())
	assert.Equal(t, "postgres://u:p@db:5432/harvest?sslmode=disable", db.URL())
}
