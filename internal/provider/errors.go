package provider

import (
	"errors"
	"fmt"
	"time"
)

// The fetch error taxonomy. Adapters return exactly one of these for any
// upstream failure so the orchestrator can decide between fallback,
// retry, and hard failure without string matching.

// DataNotAvailableError means the provider answered but has no data for
// the requested combination. Fallback chains continue past it.
type DataNotAvailableError struct {
	Provider  string
	Indicator string
	Geo       string
	Detail    string
}

func (e *DataNotAvailableError) Error() string {
	msg := fmt.Sprintf("%s: no data for %s", e.Provider, e.Indicator)
	if e.Geo != "" {
		msg += " in " + e.Geo
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// IndicatorUnknownError means the indicator could not be mapped to any
// series the provider exposes. Fallback chains continue past it.
type IndicatorUnknownError struct {
	Provider  string
	Indicator string
}

func (e *IndicatorUnknownError) Error() string {
	return fmt.Sprintf("%s: unknown indicator %q", e.Provider, e.Indicator)
}

// UpstreamError is a non-2xx upstream response that is not a rate limit.
type UpstreamError struct {
	Provider string
	Status   int
	Body     string // truncated
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: upstream status %d: %s", e.Provider, e.Status, e.Body)
}

// RateLimitError is an upstream 429. RetryAfter is zero when the
// upstream gave no hint.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limited, retry after %s", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s: rate limited", e.Provider)
}

// NetworkError wraps a transport-level failure (DNS, connect, TLS, read).
type NetworkError struct {
	Provider string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Provider, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// TimeoutError wraps a deadline exceeded talking to the upstream.
type TimeoutError struct {
	Provider string
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timeout: %v", e.Provider, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// CircuitOpenError is returned without any I/O when the provider's
// circuit breaker is open.
type CircuitOpenError struct {
	Provider string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("%s: circuit open", e.Provider)
}

// ErrNotRegistered is returned when a named provider is unknown or
// disabled (for example because its API key is not configured).
type ErrNotRegistered struct {
	Name string
}

func (e *ErrNotRegistered) Error() string {
	return fmt.Sprintf("provider %q not registered", e.Name)
}

// ---------------------------------------------------------------------------
// Classification helpers
// ---------------------------------------------------------------------------

// Recoverable reports whether a fallback chain should continue past err
// to the next provider. Cancellation of the caller's context is final.
func Recoverable(err error) bool {
	if err == nil {
		return false
	}
	var dna *DataNotAvailableError
	var unk *IndicatorUnknownError
	var up *UpstreamError
	var rl *RateLimitError
	var ne *NetworkError
	var te *TimeoutError
	var co *CircuitOpenError
	switch {
	case errors.As(err, &dna), errors.As(err, &unk),
		errors.As(err, &up), errors.As(err, &rl),
		errors.As(err, &ne), errors.As(err, &te),
		errors.As(err, &co):
		return true
	}
	return false
}

// BreakerFailure reports whether err should count against the provider's
// circuit breaker. Only infrastructure-level failures do; "no such data"
// answers and client mistakes are healthy responses from the upstream's
// point of view.
func BreakerFailure(err error) bool {
	if err == nil {
		return false
	}
	var up *UpstreamError
	if errors.As(err, &up) {
		return up.Status >= 500
	}
	var rl *RateLimitError
	var ne *NetworkError
	var te *TimeoutError
	return errors.As(err, &rl) || errors.As(err, &ne) || errors.As(err, &te)
}
