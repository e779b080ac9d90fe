package datasource

import (
	"errors"
	"fmt"
	"time"
)

// ErrAdapterNotFound is returned for operations on an unregistered adapter.
var ErrAdapterNotFound = errors.New("adapter not found")

// ErrUnsupportedOperation is returned when an adapter's capability does not
// cover the requested operation.
var ErrUnsupportedOperation = errors.New("operation not supported by this source")

// RateLimitError signals the source's request budget is exhausted. It is an
// expected transient condition: the registry propagates it to the caller
// without failover and without counting it against the adapter's breaker.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limit exceeded, retry after %s", e.Source, e.RetryAfter)
	}
	return fmt.Sprintf("%s: rate limit exceeded", e.Source)
}

// UnavailableError signals a connection or availability failure. It counts
// toward the adapter's circuit breaker.
type UnavailableError struct {
	Source string
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: source unavailable: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("%s: source unavailable", e.Source)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// InvalidDataError signals a malformed or unexpected provider response.
// It is surfaced to the caller and not retried.
type InvalidDataError struct {
	Source string
	Reason string
}

func (e *InvalidDataError) Error() string {
	return fmt.Sprintf("%s: invalid data: %s", e.Source, e.Reason)
}

// IsRateLimit reports whether err is a rate limit error.
func IsRateLimit(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}
