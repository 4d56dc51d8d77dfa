package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ProviderError reports a failed call to an external embedding or language model provider.
type ProviderError struct {
	Provider   string // "openai", "local", ...
	Op         string // "embed", "classify"
	StatusCode int    // HTTP status when known, otherwise 0
	Transient  bool   // Quota, timeout or server-side failure worth retrying
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a ProviderError that may succeed on retry.
func IsTransient(err error) bool {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Transient
	}
	return false
}

// TransientStatus reports whether an HTTP status indicates a retryable failure.
func TransientStatus(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusRequestTimeout ||
		code >= http.StatusInternalServerError
}

// NewProviderError wraps err, classifying it as transient from its status code,
// network timeouts and well-known rate limit wording.
// Cancellation by the caller is never transient.
func NewProviderError(provider, op string, statusCode int, err error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Op:         op,
		StatusCode: statusCode,
		Transient:  isTransient(statusCode, err),
		Err:        err,
	}
}

func isTransient(statusCode int, err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if statusCode != 0 {
		return TransientStatus(statusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "rate limit", "too many requests", "timeout", "temporarily", "connection refused", "connection reset", "503", "502"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
