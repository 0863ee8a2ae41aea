package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// FailureKind classifies a failed fetch
type FailureKind string

const (
	Timeout         FailureKind = "timeout"
	ConnectionError FailureKind = "connection_error"
	HTTPError       FailureKind = "http_error"
	BodyTooLarge    FailureKind = "body_too_large"
)

// Error is a typed fetch failure. Status is set for HTTPError only.
type Error struct {
	Kind   FailureKind
	URL    string
	Status int
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == HTTPError:
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether a later attempt could succeed: timeouts,
// connection errors and server-side statuses.
func (e *Error) Retryable() bool {
	if errors.Is(e.Err, context.Canceled) {
		return false
	}
	switch e.Kind {
	case Timeout, ConnectionError:
		return true
	case HTTPError:
		return e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests
	}
	return false
}
