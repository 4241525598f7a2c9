package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMalformedResponse is returned when a 2xx body does not match the
// expected shape.
var ErrMalformedResponse = errors.New("malformed backend response")

// Error codes the backend may send alongside a message.
const (
	CodeChallengeExpired = "challenge_expired"
	CodeChallengeInvalid = "challenge_invalid"
	CodeInvalidCode      = "invalid_code"
)

// APIError is a non-2xx backend answer.
type APIError struct {
	Op      string
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Code, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Op, http.StatusText(e.Status))
}

// Terminal reports whether the backend said the second-factor challenge can
// no longer be used, as opposed to a retryable wrong code.
func (e *APIError) Terminal() bool {
	if e == nil {
		return false
	}
	if e.Status == http.StatusGone {
		return true
	}
	return e.Code == CodeChallengeExpired || e.Code == CodeChallengeInvalid
}

// AsAPIError returns the APIError wrapped in err, if any.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
