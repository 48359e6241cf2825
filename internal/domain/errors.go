// Package domain contains the core types shared by the harvester pipeline.
package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/circuitbreaker"
)

// Failure taxonomy. Transient errors are retried by the pipeline; terminal
// errors send the item to the dead-letter queue.
var (
	ErrTransientNetwork   = errors.New("transient network error")
	ErrRateLimitExceeded  = errors.New("rate limit wait exceeded")
	ErrNoHealthyProxy     = errors.New("no healthy proxy available")
	ErrCircuitOpen        = circuitbreaker.ErrCircuitOpen
	ErrExtractionFailure  = errors.New("extraction produced no fields")
	ErrValidationRejected = errors.New("validation rejected")
	ErrAttemptsExhausted  = errors.New("attempts exhausted")
)

// ErrNotFound is returned by stores when an entity does not exist.
var ErrNotFound = errors.New("entity not found")

// RejectedError carries the validator outcome that caused a rejection.
type RejectedError struct {
	Outcome ValidationOutcome
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: confidence %.4f: %s",
		ErrValidationRejected, e.Outcome.Confidence, strings.Join(e.Outcome.Reasons, "; "))
}

func (e *RejectedError) Unwrap() error { return ErrValidationRejected }

// StatusError is a non-retryable HTTP response from a fetch target.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// IsTransient reports whether err is worth another attempt.
func IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrTransientNetwork),
		errors.Is(err, ErrRateLimitExceeded),
		errors.Is(err, ErrNoHealthyProxy),
		errors.Is(err, ErrCircuitOpen),
		errors.Is(err, ErrExtractionFailure),
		errors.Is(err, context.DeadlineExceeded):
		return true
	default:
		return false
	}
}

// IsTerminal reports whether err must not be retried.
func IsTerminal(err error) bool {
	return err != nil && !IsTransient(err)
}

// ErrorCode categorizes dead-letter entries for filtering and alerting.
type ErrorCode string

const (
	ErrorCodeNetwork     ErrorCode = "NETWORK"
	ErrorCodeRateLimit   ErrorCode = "RATE_LIMIT"
	ErrorCodeNoProxy     ErrorCode = "NO_PROXY"
	ErrorCodeCircuitOpen ErrorCode = "CIRCUIT_OPEN"
	ErrorCodeExtraction  ErrorCode = "EXTRACTION"
	ErrorCodeRejected    ErrorCode = "VALIDATION_REJECTED"
	ErrorCodeHTTPStatus  ErrorCode = "HTTP_STATUS"
	ErrorCodeTimeout     ErrorCode = "TIMEOUT"
	ErrorCodeStorage     ErrorCode = "STORAGE"
	ErrorCodeUnknown     ErrorCode = "UNKNOWN"
)

// ErrStorage wraps failures from the storage repository.
var ErrStorage = errors.New("storage failed")

// Classify maps err to the most specific ErrorCode.
func Classify(err error) ErrorCode {
	var status *StatusError
	switch {
	case err == nil:
		return ErrorCodeUnknown
	case errors.Is(err, ErrValidationRejected):
		return ErrorCodeRejected
	case errors.As(err, &status):
		return ErrorCodeHTTPStatus
	case errors.Is(err, ErrRateLimitExceeded):
		return ErrorCodeRateLimit
	case errors.Is(err, ErrNoHealthyProxy):
		return ErrorCodeNoProxy
	case errors.Is(err, ErrCircuitOpen):
		return ErrorCodeCircuitOpen
	case errors.Is(err, ErrExtractionFailure):
		return ErrorCodeExtraction
	case errors.Is(err, ErrStorage):
		return ErrorCodeStorage
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorCodeTimeout
	case errors.Is(err, ErrTransientNetwork):
		return ErrorCodeNetwork
	default:
		return ErrorCodeUnknown
	}
}
