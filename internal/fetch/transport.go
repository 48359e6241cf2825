// Package fetch resolves remote fetch targets through proxies, rate limits
// and circuit breakers.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	infrahttp "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/http"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/domain"
)

// Request is a single outbound call prepared by the executor.
type Request struct {
	Target      domain.FetchTarget
	Proxy       *url.URL
	ProxyID     string
	Fingerprint Fingerprint
	MaxBytes    int64
}

// Response is the result of a completed request, whatever its status.
type Response struct {
	StatusCode  int           `json:"status_code"`
	Body        []byte        `json:"-"`
	ContentType string        `json:"content_type"`
	FinalURL    string        `json:"final_url"`
	ProxyID     string        `json:"proxy_id,omitempty"`
	Latency     time.Duration `json:"latency"`
	Truncated   bool          `json:"truncated,omitempty"`
}

// Transport performs one request. It returns an error only when no
// response was received; HTTP status codes are the executor's concern.
type Transport interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// BuildURL returns the target URL with Params merged into the query.
func BuildURL(t domain.FetchTarget) (string, error) {
	u, err := url.Parse(t.URL)
	if err != nil {
		return "", fmt.Errorf("parse target url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported target scheme %q", u.Scheme)
	}
	if len(t.Params) > 0 {
		q := u.Query()
		for k, v := range t.Params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func methodOf(t domain.FetchTarget) string {
	if t.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(t.Method)
}

func headersFor(req Request) http.Header {
	h := make(http.Header, len(req.Target.Headers)+4)
	for k, v := range req.Target.Headers {
		h.Set(k, v)
	}
	req.Fingerprint.Apply(h)
	return h
}

// HTTPTransport sends requests with net/http, keeping one pooled client per
// proxy.
type HTTPTransport struct {
	timeout time.Duration

	mu      sync.Mutex
	direct  *http.Client
	proxied map[string]*http.Client
}

// NewHTTPTransport creates an HTTPTransport with the given client timeout.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		timeout: timeout,
		direct:  infrahttp.NewClient(&infrahttp.ClientConfig{Timeout: timeout}),
		proxied: make(map[string]*http.Client),
	}
}

func (t *HTTPTransport) clientFor(req Request) *http.Client {
	if req.Proxy == nil {
		return t.direct
	}

	key := req.Proxy.String()
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.proxied[key]
	if !ok {
		c = infrahttp.NewClient(&infrahttp.ClientConfig{Timeout: t.timeout, Proxy: req.Proxy})
		t.proxied[key] = c
	}
	return c
}

// Do implements Transport.
func (t *HTTPTransport) Do(ctx context.Context, req Request) (*Response, error) {
	target, err := BuildURL(req.Target)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, methodOf(req.Target), target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header = headersFor(req)

	start := time.Now()
	resp, err := t.clientFor(req).Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, truncated, err := readCapped(resp.Body, req.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    resp.Request.URL.String(),
		ProxyID:     req.ProxyID,
		Latency:     time.Since(start),
		Truncated:   truncated,
	}, nil
}

func readCapped(r io.Reader, limit int64) ([]byte, bool, error) {
	if limit <= 0 {
		b, err := io.ReadAll(r)
		return b, false, err
	}
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(b)) > limit {
		return b[:limit], true, nil
	}
	return b, false, nil
}
