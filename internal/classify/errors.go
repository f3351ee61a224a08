// Package classify maps HTTP, I/O and decoding failures onto the connector's
// error taxonomy and carries the structured HTTPError used throughout the
// engine, retry and breaker packages.
package classify

import (
	"errors"
	"fmt"
)

// Category is the error taxonomy from the polling engine's failure routing.
type Category int

const (
	// Unknown is the zero value; it does not count toward the breaker.
	// internal/httpclient already tags transport I/O errors as Transient.
	Unknown Category = iota
	// Transient covers network I/O, 5xx responses and timeouts.
	Transient
	// RateLimit covers HTTP 429.
	RateLimit
	// Authentication covers HTTP 401 and 403.
	Authentication
	// ClientError covers any other 4xx.
	ClientError
	// DataFormat covers JSON parse/extract failures.
	DataFormat
	// Configuration covers illegal endpoint/task configuration.
	Configuration
)

func (c Category) String() string {
	switch c {
	case Transient:
		return "transient"
	case RateLimit:
		return "rate_limit"
	case Authentication:
		return "authentication"
	case ClientError:
		return "client_error"
	case DataFormat:
		return "data_format"
	case Configuration:
		return "configuration"
	default:
		return "unknown"
	}
}

// CountsTowardBreaker reports whether a failure of this category should be
// counted by the endpoint's circuit breaker (spec.md §4.4).
func (c Category) CountsTowardBreaker() bool {
	return c == Transient || c == RateLimit
}

// Retriable reports whether the HTTP client's retry wrapper should consider
// this category at all (categorisation happens before the status-code/range
// check in §4.5 — DataFormat and Configuration are never retried regardless
// of status).
func (c Category) Retriable() bool {
	switch c {
	case DataFormat, Configuration:
		return false
	default:
		return true
	}
}

// Sentinel errors for comparison with errors.Is().
var (
	ErrMaxRetriesExceeded = errors.New("max retry attempts exceeded")
	ErrCircuitBreakerOpen = errors.New("circuit breaker open")
	ErrMissingPointer     = errors.New("required json pointer missing from configuration")
	ErrUnknownEndpoint    = errors.New("chaining references unknown endpoint")
	ErrCircularChaining   = errors.New("chaining graph contains a cycle")
	ErrInvalidOffsetMode  = errors.New("unrecognized offset mode")
)

// HTTPError carries the categorised failure of one HTTP round trip or
// response-decoding step. It implements error and Unwrap so callers can use
// errors.As/errors.Is against both the category and the wrapped cause.
type HTTPError struct {
	Op         string // e.g. "engine.poll", "offset.DeriveNext"
	EndpointID string
	Category   Category
	Status     int // 0 when not an HTTP-status failure
	Body       string
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s [%s]: %s (status %d): %v", e.Op, e.EndpointID, e.Category, e.Status, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %s: %v", e.Op, e.EndpointID, e.Category, e.Err)
}

func (e *HTTPError) Unwrap() error { return e.Err }

// New wraps err with the given op/endpoint/category.
func New(op, endpointID string, category Category, err error) *HTTPError {
	return &HTTPError{Op: op, EndpointID: endpointID, Category: category, Err: err}
}

// NewStatus wraps a non-2xx HTTP response.
func NewStatus(op, endpointID string, category Category, status int, body string) *HTTPError {
	return &HTTPError{
		Op:         op,
		EndpointID: endpointID,
		Category:   category,
		Status:     status,
		Body:       body,
		Err:        fmt.Errorf("unexpected status %d", status),
	}
}

// FromStatus maps an HTTP status code to a Category per spec.md §4.4.
func FromStatus(status int) Category {
	switch {
	case status == 401 || status == 403:
		return Authentication
	case status == 429:
		return RateLimit
	case status >= 500:
		return Transient
	case status >= 400:
		return ClientError
	default:
		return Unknown
	}
}

// CategoryOf extracts the Category carried by err, if any was attached via
// this package; otherwise returns Unknown.
func CategoryOf(err error) Category {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Category
	}
	return Unknown
}
