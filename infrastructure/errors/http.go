// Package errors turns non-2xx HTTP responses into structured errors.
package errors

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	// MinErrorStatusCode is the minimum HTTP status code considered an error
	MinErrorStatusCode = 400

	maxErrorBody = 4 << 10
)

// HTTPError represents an HTTP API error response
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
	Message    string
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP error (%s): %s", e.Status, e.Message)
	}
	return "HTTP error: " + e.Status
}

// Temporary reports whether the request may succeed if repeated: rate
// limiting, request timeouts and server errors.
func (e *HTTPError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode >= http.StatusInternalServerError
}

// ParseHTTPError returns nil for responses below 400. Otherwise it reads at
// most 4 KiB of the body and extracts a message from the common JSON error
// shapes: {"error":"..."}, {"message":"..."}, {"error":{"message":"..."}}
// and JSON:API errors arrays.
func ParseHTTPError(resp *http.Response) error {
	if resp.StatusCode < MinErrorStatusCode {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Message:    fmt.Sprintf("failed to read error response body: %v", err),
		}
	}
	text := strings.TrimSpace(string(body))

	msg := messageFrom(body)
	if msg == "" {
		msg = text
	}
	return &HTTPError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       text,
		Message:    msg,
	}
}

func messageFrom(body []byte) string {
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Errors  []struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		} `json:"errors"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return ""
	}

	if len(payload.Error) > 0 {
		var s string
		if json.Unmarshal(payload.Error, &s) == nil && s != "" {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
	}
	if payload.Message != "" {
		return payload.Message
	}

	details := make([]string, 0, len(payload.Errors))
	for _, e := range payload.Errors {
		if e.Detail != "" {
			details = append(details, e.Title+": "+e.Detail)
		} else {
			details = append(details, e.Title)
		}
	}
	return strings.Join(details, "; ")
}

// IsHTTPError checks if an error is an HTTPError
func IsHTTPError(err error) bool {
	_, ok := err.(*HTTPError)
	return ok
}
