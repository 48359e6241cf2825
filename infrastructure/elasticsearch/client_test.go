package elasticsearch

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/logger"
	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/retry"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func esResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"X-Elastic-Product": []string{"Elasticsearch"}},
	}
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"http://elasticsearch:9200":  "http://elasticsearch:9200",
		"https://elasticsearch:9200": "https://elasticsearch:9200",
		"elasticsearch:9200":         "http://elasticsearch:9200",
		"":                           "http://localhost:9200",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeURL(in), in)
	}
}

func TestConfig_SetDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()
	assert.Equal(t, "http://localhost:9200", cfg.URL)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.PingTimeout)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)

	custom := Config{URL: "http://custom:9200", MaxRetries: 5, Retry: retry.Config{MaxAttempts: 1}}
	custom.SetDefaults()
	assert.Equal(t, "http://custom:9200", custom.URL)
	assert.Equal(t, 5, custom.MaxRetries)
	assert.Equal(t, 1, custom.Retry.MaxAttempts)
}

func TestNewClient_RetriesPing(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	transport := roundTripFunc(func(*http.Request) (*http.Response, error) {
		if calls.Add(1) == 1 {
			return esResponse(http.StatusServiceUnavailable, `{}`), nil
		}
		return esResponse(http.StatusOK, `{}`), nil
	})

	client, err := NewClient(context.Background(), Config{
		Transport:  transport,
		MaxRetries: 1,
		Retry:      retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}, logger.NewNop())

	require.NoError(t, err)
	require.NotNil(t, client)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestNewClient_GivesUp(t *testing.T) {
	t.Parallel()

	transport := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return esResponse(http.StatusUnauthorized, `{"error":"nope"}`), nil
	})

	_, err := NewClient(context.Background(), Config{
		Transport: transport,
		Retry:     retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond},
	}, logger.NewNop())

	require.ErrorIs(t, err, errPingFailed)
	require.ErrorIs(t, err, retry.ErrMaxAttemptsExceeded)
}

func TestEnsureIndex(t *testing.T) {
	t.Parallel()

	var created atomic.Bool
	transport := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		switch {
		case req.Method == http.MethodHead && req.URL.Path == "/listings":
			if created.Load() {
				return esResponse(http.StatusOK, ``), nil
			}
			return esResponse(http.StatusNotFound, ``), nil
		case req.Method == http.MethodPut && req.URL.Path == "/listings":
			body, _ := io.ReadAll(req.Body)
			assert.Contains(t, string(body), `"mappings"`)
			created.Store(true)
			return esResponse(http.StatusOK, `{"acknowledged":true}`), nil
		default:
			return esResponse(http.StatusOK, `{}`), nil
		}
	})

	client, err := NewClient(context.Background(), Config{Transport: transport}, logger.NewNop())
	require.NoError(t, err)

	mapping := `{"mappings":{"properties":{"source":{"type":"keyword"}}}}`
	require.NoError(t, EnsureIndex(context.Background(), client, "listings", mapping, logger.NewNop()))
	assert.True(t, created.Load())

	// Second call sees the index and does nothing.
	require.NoError(t, EnsureIndex(context.Background(), client, "listings", mapping, logger.NewNop()))
}
