// errors.go - Upstream error classification for the model call loop

package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// APIError represents a categorized Gemini API error
type APIError struct {
	HTTPStatus int
	Status     string // upstream status token, e.g. NOT_FOUND, RESOURCE_EXHAUSTED
	Message    string
	Retryable  bool // retryable means: advance to the next model candidate
}

func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s (status: %d, retryable: %v)", e.Status, e.Message, e.HTTPStatus, e.Retryable)
}

// isRetryableError classifies an upstream failure. A model that is missing,
// disabled, rate limited, unavailable or failing internally is worth trying
// the next candidate for; malformed requests and auth failures are terminal.
func isRetryableError(status, message string, httpStatus int) bool {
	switch httpStatus {
	case 404, 429, 500, 502, 503, 504:
		return true
	case 400, 401, 403, 413:
		return false
	}

	token := strings.ToUpper(strings.TrimSpace(status))
	switch token {
	case "NOT_FOUND", "RESOURCE_EXHAUSTED", "UNAVAILABLE", "INTERNAL":
		return true
	case "INVALID_ARGUMENT", "UNAUTHENTICATED", "PERMISSION_DENIED", "FAILED_PRECONDITION":
		return false
	}

	msg := strings.ToLower(message)
	for _, hint := range []string{"not found", "disabled", "rate limit", "resource exhausted", "unavailable", "overloaded", "internal error"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}

	return false
}

// classifyCallError wraps transport-level failures. Timeouts count as
// retryable so the loop moves on to the next candidate.
func classifyCallError(err error) *APIError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &APIError{Status: "DEADLINE_EXCEEDED", Message: "model call timed out", Retryable: true}
	}
	if errors.Is(err, context.Canceled) {
		return &APIError{Status: "CANCELLED", Message: "model call canceled", Retryable: false}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &APIError{Status: "UNAVAILABLE", Message: err.Error(), Retryable: true}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection") || strings.Contains(msg, "timeout") {
		return &APIError{Status: "UNAVAILABLE", Message: err.Error(), Retryable: true}
	}

	return &APIError{Status: "UNKNOWN", Message: err.Error(), Retryable: false}
}
