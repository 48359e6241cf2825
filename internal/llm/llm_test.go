package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/circuitbreaker"
	infraerrors "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/errors"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/llm"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/llm/mocks"
)

func TestHTTPClient_Complete(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"<<<LISTING>>>{}<<<END>>>"}}]}`))
	}))
	defer srv.Close()

	c := llm.NewHTTPClient(llm.Config{BaseURL: srv.URL + "/", Model: "local-7b", APIKey: "secret", Timeout: time.Second})
	out, err := c.Complete(context.Background(), "extract", "you are a parser", 256)
	require.NoError(t, err)
	assert.Equal(t, "<<<LISTING>>>{}<<<END>>>", out)

	assert.Equal(t, "local-7b", got["model"])
	assert.InDelta(t, 256, got["max_tokens"], 0)
	messages, ok := got["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, messages, 2)
}

func TestHTTPClient_ErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := llm.NewHTTPClient(llm.Config{BaseURL: srv.URL, Model: "m", Timeout: time.Second})
	_, err := c.Complete(context.Background(), "p", "", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	var httpErr *infraerrors.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, "model loading", httpErr.Message)
	assert.True(t, httpErr.Temporary())
	assert.False(t, c.Health(context.Background()))
}

func TestHTTPClient_EmptyChoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := llm.NewHTTPClient(llm.Config{BaseURL: srv.URL, Model: "m", Timeout: time.Second})
	_, err := c.Complete(context.Background(), "p", "", 10)
	assert.ErrorIs(t, err, llm.ErrEmptyCompletion)
}

func TestHTTPClient_Health(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := llm.NewHTTPClient(llm.Config{BaseURL: srv.URL, Model: "m", Timeout: time.Second})
	assert.True(t, c.Health(context.Background()))
}

func TestBreakerClient_OpensAfterFailures(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	inner := mocks.NewMockClient(ctrl)
	inner.EXPECT().Complete(gomock.Any(), "p", "s", 100).Return("", errors.New("upstream timeout")).Times(2)

	breaker := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 2, Timeout: time.Hour})
	c := llm.NewBreakerClient(inner, breaker, time.Second)

	for range 2 {
		_, err := c.Complete(context.Background(), "p", "s", 100)
		require.Error(t, err)
	}
	assert.False(t, c.Available())

	_, err := c.Complete(context.Background(), "p", "s", 100)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
}

func TestBreakerClient_AppliesTimeout(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	inner := mocks.NewMockClient(ctrl)
	inner.EXPECT().Complete(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _, _ string, _ int) (string, error) {
			deadline, ok := ctx.Deadline()
			assert.True(t, ok)
			assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 50*time.Millisecond)
			return "ok", nil
		})

	c := llm.NewBreakerClient(inner, circuitbreaker.New(circuitbreaker.Config{}), 50*time.Millisecond)
	out, err := c.Complete(context.Background(), "p", "", 10)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestNew_SelectsProvider(t *testing.T) {
	t.Parallel()

	c, err := llm.New(llm.Config{})
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = llm.New(llm.Config{Provider: llm.ProviderHTTP, BaseURL: "http://localhost:8081", Model: "m"})
	require.NoError(t, err)
	assert.IsType(t, &llm.HTTPClient{}, c)

	c, err = llm.New(llm.Config{Provider: llm.ProviderAnthropic, APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &llm.AnthropicClient{}, c)

	_, err = llm.New(llm.Config{Provider: llm.ProviderAnthropic})
	assert.Error(t, err)

	_, err = llm.New(llm.Config{Provider: "openai"})
	assert.Error(t, err)
}
