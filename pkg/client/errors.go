package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is matched by a StatusError whose status was retriable
	// but stayed failing for every attempt.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// ClassifyStatus maps an HTTP status code to its error class. Statuses
// below 400 have no class.
func ClassifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// StatusError is a terminal response that is neither data (200) nor a
// documented empty result (204, 404).
type StatusError struct {
	StatusCode int
	URL        string
	Params     map[string]string
	Message    string
}

// NewStatusError builds a StatusError from a terminal response.
func NewStatusError(resp *http.Response, url string, params map[string]string) *StatusError {
	return &StatusError{
		StatusCode: resp.StatusCode,
		URL:        url,
		Params:     params,
		Message:    resp.Status,
	}
}

// Class returns the error class of the status.
func (e *StatusError) Class() ErrorClass {
	return ClassifyStatus(e.StatusCode)
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s error (status %d) for %s %v: %s",
		e.Class(), e.StatusCode, e.URL, e.Params, e.Message)
}

// Unwrap reports ErrRetryExhausted for retriable statuses, since a
// retriable status only surfaces once the retry budget is spent.
func (e *StatusError) Unwrap() error {
	if IsRetriable(e.StatusCode) {
		return ErrRetryExhausted
	}
	return nil
}
