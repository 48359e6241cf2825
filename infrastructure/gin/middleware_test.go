package gin_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	ginpkg "github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infragin "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/gin"
	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/logger"
)

func newTestServer(t *testing.T, routes func(*ginpkg.Engine)) http.Handler {
	t.Helper()
	srv := infragin.NewServer(infragin.Config{ServiceName: "test"}, logger.NewNop(), routes)
	return srv.Handler()
}

func get(t *testing.T, h http.Handler, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRequestIDLoggerMiddleware_GeneratesID(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, func(r *ginpkg.Engine) {
		r.GET("/test", func(c *ginpkg.Context) { c.String(http.StatusOK, "ok") })
	})

	w := get(t, h, "/test", nil)
	assert.Len(t, w.Header().Get(infragin.RequestIDHeader), 32)
}

func TestRequestIDLoggerMiddleware_PreservesExistingID(t *testing.T) {
	t.Parallel()

	var seen string
	var scoped logger.Logger
	h := newTestServer(t, func(r *ginpkg.Engine) {
		r.GET("/test", func(c *ginpkg.Context) {
			seen = c.GetString("request_id")
			scoped = logger.FromContext(c.Request.Context())
			c.String(http.StatusOK, "ok")
		})
	})

	w := get(t, h, "/test", http.Header{infragin.RequestIDHeader: {"trace-abc123"}})
	assert.Equal(t, "trace-abc123", w.Header().Get(infragin.RequestIDHeader))
	assert.Equal(t, "trace-abc123", seen)
	assert.NotNil(t, scoped)
}

func TestRequestIDLoggerMiddleware_RejectsOversizedID(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, func(r *ginpkg.Engine) {
		r.GET("/test", func(c *ginpkg.Context) { c.String(http.StatusOK, "ok") })
	})

	oversized := strings.Repeat("x", 200)
	w := get(t, h, "/test", http.Header{infragin.RequestIDHeader: {oversized}})
	got := w.Header().Get(infragin.RequestIDHeader)
	assert.NotEqual(t, oversized, got)
	assert.NotEmpty(t, got)
}

func TestRecoveryMiddleware(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, func(r *ginpkg.Engine) {
		r.GET("/panic", func(*ginpkg.Context) { panic("boom") })
	})

	w := get(t, h, "/panic", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}

func TestHealthRoutes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checks     map[string]infragin.HealthChecker
		wantCode   int
		wantStatus infragin.HealthStatus
	}{
		{
			name:       "no checks",
			wantCode:   http.StatusOK,
			wantStatus: infragin.HealthStatusHealthy,
		},
		{
			name: "degraded dependency",
			checks: map[string]infragin.HealthChecker{
				"redis": infragin.PingChecker(func(context.Context) error { return errors.New("refused") }, infragin.HealthStatusDegraded),
				"llm":   infragin.PingChecker(func(context.Context) error { return nil }, infragin.HealthStatusUnhealthy),
			},
			wantCode:   http.StatusOK,
			wantStatus: infragin.HealthStatusDegraded,
		},
		{
			name: "unhealthy dependency",
			checks: map[string]infragin.HealthChecker{
				"database": infragin.PingChecker(func(context.Context) error { return errors.New("down") }, infragin.HealthStatusUnhealthy),
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: infragin.HealthStatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newTestServer(t, func(r *ginpkg.Engine) {
				infragin.RegisterHealthRoutes(r, infragin.HealthOptions{ServiceName: "test", Checks: tt.checks})
			})

			w := get(t, h, "/health", nil)
			assert.Equal(t, tt.wantCode, w.Code)

			var body infragin.HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantStatus, body.Status)
			assert.Equal(t, "test", body.Service)
			assert.Len(t, body.Checks, len(tt.checks))
		})
	}
}
