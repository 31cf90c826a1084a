package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// RateLimitError indicates the provider throttled the request. RetryAfter is
// zero when the provider did not supply a hint.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited: %s", e.Provider, e.Message)
}

// PermanentError indicates a request the provider will never accept, such as a
// malformed prompt or an unknown model. It is not retryable.
type PermanentError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("%s request rejected (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsRateLimit reports whether err is a throttling failure.
func IsRateLimit(err error) bool {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return true
	}
	msg := strings.ToLower(errMessage(err))
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") || strings.Contains(msg, "429")
}

// RetryAfterHint extracts a provider-supplied retry-after delay, if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) && rle.RetryAfter > 0 {
		return rle.RetryAfter, true
	}
	return 0, false
}

// IsPermanent reports whether err should not be retried on any model attempt.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(errMessage(err))
	return strings.Contains(msg, "client.timeout") || strings.Contains(msg, "request timeout")
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
