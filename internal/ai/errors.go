package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
)

const (
	// rateLimitBaseBackoff is the initial wait time for rate limit errors.
	// Token-based provider limits reset per minute, so short waits only
	// burn attempts.
	rateLimitBaseBackoff = 60 * time.Second

	// rateLimitMaxBackoff is the maximum wait time for rate limit errors.
	rateLimitMaxBackoff = 120 * time.Second
)

// BackendError reports a failed model call. Status carries the HTTP
// status when one was received; zero means the call never got a
// response.
type BackendError struct {
	Provider string
	Status   int
	Message  string
	Err      error
}

func (e *BackendError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s backend returned status %d: %s", e.Provider, e.Status, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s backend call failed: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s backend call failed: %s", e.Provider, e.Message)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Temporary reports whether retrying the same call could succeed.
func (e *BackendError) Temporary() bool {
	if e.Status == http.StatusTooManyRequests || e.Status >= 500 {
		return true
	}
	if e.Status == 0 {
		// No response at all: network trouble, worth retrying.
		return true
	}
	return false
}

// IsRateLimited detects provider throttling across backends. It checks
// the Anthropic SDK error type first and falls back to message
// patterns for the HTTP providers.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRateLimitErr()
	}

	var backendErr *BackendError
	if errors.As(err, &backendErr) && backendErr.Status == http.StatusTooManyRequests {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "rate_limit_error") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "too many requests")
}

// IsOverloaded detects backend overload, which is treated like
// throttling for backoff purposes.
func IsOverloaded(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsOverloadedErr()
	}

	var backendErr *BackendError
	if errors.As(err, &backendErr) && backendErr.Status == http.StatusServiceUnavailable {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "overloaded") ||
		strings.Contains(errStr, "503")
}

// ShouldRetry reports whether a failed call is worth repeating.
// Cancellation is final; permanent backend rejections (auth failures,
// malformed requests) are final; everything else is retried.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var backendErr *BackendError
	if errors.As(err, &backendErr) {
		return backendErr.Temporary()
	}
	return true
}

// BackoffDuration returns how long to wait before retry number
// attempt. Throttling and overload get long waits so the provider's
// token window can reset; other errors use standard exponential
// backoff (2s, 4s, 8s, ...).
func BackoffDuration(err error, attempt int) time.Duration {
	if IsRateLimited(err) || IsOverloaded(err) {
		backoff := rateLimitBaseBackoff * time.Duration(attempt)
		if backoff > rateLimitMaxBackoff {
			return rateLimitMaxBackoff
		}
		return backoff
	}

	return time.Duration(1<<attempt) * time.Second
}
