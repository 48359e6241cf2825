// Package api exposes the operator HTTP surface: proxy health, rate limit
// usage, circuit states and dead-letter inspection and replay.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/circuitbreaker"
	infralogger "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/logger"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/deadletter"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/domain"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/proxy"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/ratelimit"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// ProxyPool is the read side of the proxy pool.
type ProxyPool interface {
	Snapshot() []proxy.Health
	Stats() proxy.Stats
}

// RateLimits reports per-source window usage.
type RateLimits interface {
	Usage(source string) ratelimit.Usage
	Sources() []string
}

// Breakers lists and resets named circuit breakers.
type Breakers interface {
	States() []circuitbreaker.Stats
	Reset(name string) bool
}

// Deps are the components the handlers read from. Nil members disable
// their routes' data with a 503.
type Deps struct {
	Proxies    ProxyPool
	RateLimits RateLimits
	Breakers   Breakers
	DeadLetter deadletter.Store
	Replayer   *deadletter.Replayer
	// Submit receives replayed items.
	Submit  deadletter.SubmitFunc
	Metrics http.Handler
}

// Handler handles HTTP requests for the admin API
type Handler struct {
	deps   Deps
	logger infralogger.Logger
}

// NewHandler creates a new API handler
func NewHandler(deps Deps, log infralogger.Logger) *Handler {
	return &Handler{deps: deps, logger: log}
}

var errUnavailable = errors.New("component not configured")

func unavailable(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: errUnavailable.Error()})
}

// ListProxies handles GET /api/v1/proxies.
func (h *Handler) ListProxies(c *gin.Context) {
	if h.deps.Proxies == nil {
		unavailable(c)
		return
	}
	c.JSON(http.StatusOK, ProxiesResponse{
		Stats:   h.deps.Proxies.Stats(),
		Proxies: h.deps.Proxies.Snapshot(),
	})
}

// ListRateLimits handles GET /api/v1/ratelimit.
func (h *Handler) ListRateLimits(c *gin.Context) {
	if h.deps.RateLimits == nil {
		unavailable(c)
		return
	}
	sources := h.deps.RateLimits.Sources()
	usage := make([]ratelimit.Usage, 0, len(sources))
	for _, s := range sources {
		usage = append(usage, h.deps.RateLimits.Usage(s))
	}
	c.JSON(http.StatusOK, gin.H{"sources": usage, "count": len(usage)})
}

// GetRateLimit handles GET /api/v1/ratelimit/:source.
func (h *Handler) GetRateLimit(c *gin.Context) {
	if h.deps.RateLimits == nil {
		unavailable(c)
		return
	}
	c.JSON(http.StatusOK, h.deps.RateLimits.Usage(c.Param("source")))
}

// ListCircuits handles GET /api/v1/circuits.
func (h *Handler) ListCircuits(c *gin.Context) {
	if h.deps.Breakers == nil {
		unavailable(c)
		return
	}
	states := h.deps.Breakers.States()
	c.JSON(http.StatusOK, gin.H{"circuits": states, "count": len(states)})
}

// ResetCircuit handles POST /api/v1/circuits/:name/reset.
func (h *Handler) ResetCircuit(c *gin.Context) {
	if h.deps.Breakers == nil {
		unavailable(c)
		return
	}
	name := c.Param("name")
	if !h.deps.Breakers.Reset(name) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown circuit: " + name})
		return
	}
	h.logger.Info("Circuit reset by operator", infralogger.String("circuit", name))
	c.JSON(http.StatusOK, gin.H{"name": name, "state": circuitbreaker.StateClosed.String()})
}

// ListDeadLetters handles GET /api/v1/dlq.
func (h *Handler) ListDeadLetters(c *gin.Context) {
	if h.deps.DeadLetter == nil {
		unavailable(c)
		return
	}

	var filter deadletter.ListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid query: " + err.Error()})
		return
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultListLimit
	case filter.Limit > maxListLimit:
		filter.Limit = maxListLimit
	}

	ctx := c.Request.Context()
	entries, err := h.deps.DeadLetter.List(ctx, filter)
	if err != nil {
		h.logger.Error("Failed to list dead letters", infralogger.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list dead letters"})
		return
	}
	stats, err := h.deps.DeadLetter.Stats(ctx)
	if err != nil {
		h.logger.Error("Failed to read dead letter stats", infralogger.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to read dead letter stats"})
		return
	}

	c.JSON(http.StatusOK, DeadLetterListResponse{Entries: entries, Count: len(entries), Stats: stats})
}

// GetDeadLetter handles GET /api/v1/dlq/:id.
func (h *Handler) GetDeadLetter(c *gin.Context) {
	if h.deps.DeadLetter == nil {
		unavailable(c)
		return
	}
	entry, err := h.deps.DeadLetter.Get(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "dead letter not found"})
	case err != nil:
		h.logger.Error("Failed to get dead letter", infralogger.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to get dead letter"})
	default:
		c.JSON(http.StatusOK, entry)
	}
}

// ReplayDeadLetters handles POST /api/v1/dlq/replay.
func (h *Handler) ReplayDeadLetters(c *gin.Context) {
	if h.deps.Replayer == nil || h.deps.Submit == nil {
		unavailable(c)
		return
	}

	var req ReplayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
		return
	}
	filter := req.filter()
	if !req.All && filter.IsZero() {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "replay needs ids, source, error_code or all=true"})
		return
	}

	start := time.Now()
	replayed, err := h.deps.Replayer.Replay(c.Request.Context(), filter, h.deps.Submit)
	resp := ReplayResponse{Replayed: replayed, Duration: time.Since(start).String()}
	if err != nil {
		h.logger.Warn("Dead letter replay incomplete", infralogger.Int("replayed", replayed), infralogger.Error(err))
		resp.Error = err.Error()
		c.JSON(http.StatusMultiStatus, resp)
		return
	}

	h.logger.Info("Dead letters replayed", infralogger.Int("replayed", replayed))
	c.JSON(http.StatusOK, resp)
}

// ReplayRequest selects the entries to replay.
type ReplayRequest struct {
	IDs       []string         `json:"ids"`
	Source    string           `json:"source"`
	ErrorCode domain.ErrorCode `json:"error_code"`
	Limit     int              `json:"limit"`
	// All must be set to replay without any selector.
	All bool `json:"all"`
}

func (r ReplayRequest) filter() deadletter.ListFilter {
	return deadletter.ListFilter{IDs: r.IDs, Source: r.Source, ErrorCode: r.ErrorCode, Limit: r.Limit}
}
