package api

import (
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/domain"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/proxy"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ProxiesResponse lists per-proxy health with pool totals.
type ProxiesResponse struct {
	Stats   proxy.Stats    `json:"stats"`
	Proxies []proxy.Health `json:"proxies"`
}

// DeadLetterListResponse is a filtered page of the dead-letter queue.
type DeadLetterListResponse struct {
	Entries []domain.DeadLetterEntry `json:"entries"`
	Count   int                      `json:"count"`
	Stats   *domain.DLQStats         `json:"stats"`
}

// ReplayResponse reports a replay run. Error is set when some entries
// stayed in the queue.
type ReplayResponse struct {
	Replayed int    `json:"replayed"`
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
}
