package fetch

import (
	"context"
	"fmt"
	"time"

	colly "github.com/gocolly/colly/v2"
)

// CollyTransport fetches pages through a colly collector. It is used for
// targets marked UseBrowser, where colly's cookie jar, redirect handling
// and charset detection matter.
type CollyTransport struct {
	timeout time.Duration
}

// NewCollyTransport creates a CollyTransport.
func NewCollyTransport(timeout time.Duration) *CollyTransport {
	return &CollyTransport{timeout: timeout}
}

// Do implements Transport. A fresh collector is built per request so that
// proxy and cookies never leak between items.
func (t *CollyTransport) Do(ctx context.Context, req Request) (*Response, error) {
	target, err := BuildURL(req.Target)
	if err != nil {
		return nil, err
	}

	opts := []colly.CollectorOption{
		colly.StdlibContext(ctx),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
		colly.DetectCharset(),
	}
	if req.MaxBytes > 0 {
		opts = append(opts, colly.MaxBodySize(int(req.MaxBytes)))
	}
	c := colly.NewCollector(opts...)
	c.SetRequestTimeout(t.timeout)

	if req.Proxy != nil {
		if err = c.SetProxy(req.Proxy.String()); err != nil {
			return nil, fmt.Errorf("set proxy: %w", err)
		}
	}

	var (
		out      *Response
		startAt  time.Time
		fetchErr error
	)
	c.OnRequest(func(r *colly.Request) {
		startAt = time.Now()
	})
	c.OnResponse(func(r *colly.Response) {
		out = &Response{
			StatusCode:  r.StatusCode,
			Body:        r.Body,
			ContentType: r.Headers.Get("Content-Type"),
			FinalURL:    r.Request.URL.String(),
			ProxyID:     req.ProxyID,
			Latency:     time.Since(startAt),
		}
	})
	c.OnError(func(_ *colly.Response, e error) {
		fetchErr = e
	})

	if err = c.Request(methodOf(req.Target), target, nil, nil, headersFor(req)); err != nil {
		return nil, err
	}
	if out == nil {
		if fetchErr == nil {
			fetchErr = fmt.Errorf("no response from %s", target)
		}
		return nil, fetchErr
	}
	return out, nil
}
