package llmclient

import (
	"fmt"
	"net/http"
)

// AuthError is a 401/403 from the completion service or the intermediary.
// Never retried; in adapter mode it clears the session-token cache so the
// next call re-acquires.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed with status %d: %s", e.Status, e.Body)
}

func (e *AuthError) Retryable() bool { return false }

// RequestError is any other 4xx. The request itself is wrong, so retrying
// cannot help; the caller records it as an analysis failure.
type RequestError struct {
	Status int
	Body   string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request rejected with status %d: %s", e.Status, e.Body)
}

func (e *RequestError) Retryable() bool { return false }

// TransientError is a 5xx, a 429, a connection failure, or a timeout.
// Retried under the run's backoff policy.
type TransientError struct {
	Status int // zero for transport-level failures
	Err    error
	Body   string
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient failure: %v", e.Err)
	}
	return fmt.Sprintf("transient failure with status %d: %s", e.Status, e.Body)
}

func (e *TransientError) Retryable() bool { return true }

func (e *TransientError) Unwrap() error { return e.Err }

// classifyStatus maps a non-2xx HTTP status onto the error taxonomy.
func classifyStatus(status int, body string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthError{Status: status, Body: body}
	case status == http.StatusTooManyRequests:
		return &TransientError{Status: status, Body: body}
	case status >= 400 && status < 500:
		return &RequestError{Status: status, Body: body}
	default:
		return &TransientError{Status: status, Body: body}
	}
}
