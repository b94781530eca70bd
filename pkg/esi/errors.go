package esi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context ends during a backoff.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrBlocked is returned when the error limit is critical and the
	// request was not sent.
	ErrBlocked = errors.New("request blocked: ESI error limit critical")

	// ErrPageSizeMismatch is returned when a page is shorter than the
	// iterator page size although X-Pages reports more pages.
	ErrPageSizeMismatch = errors.New("page size does not match the endpoint's page length")
)

// ErrorClass groups failed page requests by how they are handled.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 420 and 520 error limit responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// Error is a failed page request. StatusCode is 0 when no response was
// received.
type Error struct {
	Endpoint   string
	Page       int
	StatusCode int
	Class      ErrorClass
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("esi %s page %d: %s error", e.Endpoint, e.Page, e.Class)
	if e.StatusCode != 0 {
		status := strconv.Itoa(e.StatusCode)
		if text := http.StatusText(e.StatusCode); text != "" {
			status += " " + text
		}
		msg += " (status " + status + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the transport error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the request may succeed when sent again.
func (e *Error) Retryable() bool {
	return shouldRetry(e.Class)
}

// IsNotFound reports whether err is an ESI 404.
func IsNotFound(err error) bool {
	var esiErr *Error
	return errors.As(err, &esiErr) && esiErr.StatusCode == http.StatusNotFound
}

// classify returns the class of a response status or transport error,
// or "" for a successful response.
func classify(statusCode int, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}
	switch {
	case statusCode == 420 || statusCode == 520:
		return ErrorClassRateLimit
	case statusCode >= 400 && statusCode < 500:
		return ErrorClassClient
	case statusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// shouldRetry reports whether a class is worth another attempt. Client
// errors are final and each one costs error budget.
func shouldRetry(class ErrorClass) bool {
	return class == ErrorClassServer || class == ErrorClassRateLimit || class == ErrorClassNetwork
}
