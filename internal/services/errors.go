package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var (
	ErrSelectorNotFound = errors.New("selector not found")
	ErrSessionExpired   = errors.New("session expired")
	ErrTimeout          = errors.New("timeout")
	ErrDownloadRejected = errors.New("download rejected")
	ErrNetwork          = errors.New("network error")
	ErrValidation       = errors.New("validation error")
	ErrConfiguration    = errors.New("configuration error")
	ErrCancelled        = errors.New("cancelled")
	ErrRemoteFailure    = errors.New("remote failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrNetwork
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// HTTPError reports a non-success HTTP status from a remote endpoint.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
}

// permanentStatuses never succeed on a blind retry.
var permanentStatuses = map[int]struct{}{
	http.StatusUnauthorized:        {},
	http.StatusForbidden:           {},
	http.StatusNotFound:            {},
	http.StatusMethodNotAllowed:    {},
	http.StatusUnprocessableEntity: {},
}

// IsRetryable reports whether err may succeed on another attempt. Timeouts and
// transport failures are retryable; selector drift, expired sessions, rejected
// downloads, validation failures and cancellation are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		_, permanent := permanentStatuses[httpErr.StatusCode]
		return !permanent
	}
	switch {
	case errors.Is(err, ErrSelectorNotFound),
		errors.Is(err, ErrSessionExpired),
		errors.Is(err, ErrDownloadRejected),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrRemoteFailure):
		return false
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Category returns the stable failure category recorded on Failed transitions.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, ErrSelectorNotFound):
		return "selector_not_found"
	case errors.Is(err, ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, ErrDownloadRejected):
		return "download_failed"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrRemoteFailure):
		return "remote_failure"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrNetwork):
		return "network_error"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return "network_error"
	}
	return "unknown"
}

var userMessages = map[string]string{
	"cancelled":          "The operation was cancelled.",
	"selector_not_found": "The site layout changed and a required control could not be located.",
	"session_expired":    "The browser session is no longer logged in. Log in again and retry.",
	"download_failed":    "The downloaded file failed integrity checks.",
	"validation":         "Some required information is missing or invalid.",
	"configuration":      "The configuration is incomplete or invalid.",
	"remote_failure":     "The site reported that the job failed.",
	"timeout":            "The site took too long to respond.",
	"network_error":      "A network error interrupted the operation.",
}

// UserMessage renders err as a sentence suitable for a status line.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	msg, ok := userMessages[Category(err)]
	if !ok {
		return "Unexpected failure: " + strings.TrimSpace(err.Error())
	}
	return msg
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
