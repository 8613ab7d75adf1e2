// Package errors classifies failures of the advisory core and its
// collaborators so callers can decide between retrying, degrading, and
// surfacing an error advisory.
package errors

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Domain failure kinds. These are matched with errors.Is.
var (
	// ErrInvalidCard marks an agent card that failed validation.
	ErrInvalidCard = errors.New("invalid agent card")
	// ErrUnknownAgent marks an operation against an expired or never
	// registered agent. An unknown agent is a failure, not an empty result.
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrStorageUnavailable marks a registry backing-store outage.
	ErrStorageUnavailable = errors.New("registry storage unavailable")
	// ErrAnalysisUnavailable is returned only when both the language-model
	// analysis and the keyword fallback are unusable.
	ErrAnalysisUnavailable = errors.New("query analysis unavailable")
	// ErrNoAgents marks a query for which no required capability could be
	// satisfied by any active agent.
	ErrNoAgents = errors.New("no agents available")
	// ErrAllAgentsFailed marks a dispatch in which every expert call failed.
	ErrAllAgentsFailed = errors.New("all expert agents failed")
)

// TransientError wraps a failure that can be retried.
type TransientError struct {
	Err        error
	StatusCode int
	Message    string
}

func (e *TransientError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("transient error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError wraps a failure that must not be retried.
type PermanentError struct {
	Err        error
	StatusCode int
	Message    string
}

func (e *PermanentError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("permanent error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// DegradedError wraps a failure the caller can absorb by continuing with
// reduced functionality, optionally carrying fallback content.
type DegradedError struct {
	Err             error
	FallbackContent string
	Message         string
}

func (e *DegradedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("degraded error: %v", e.Err)
}

func (e *DegradedError) Unwrap() error { return e.Err }

// NewTransient wraps err as retryable.
func NewTransient(err error, message string) *TransientError {
	return &TransientError{Err: err, Message: message}
}

// NewPermanent wraps err as non-retryable.
func NewPermanent(err error, message string) *PermanentError {
	return &PermanentError{Err: err, Message: message}
}

// NewDegraded wraps err with fallback content.
func NewDegraded(err error, message, fallback string) *DegradedError {
	return &DegradedError{Err: err, Message: message, FallbackContent: fallback}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}
	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// IsDegraded reports whether err allows continuing with reduced functionality.
func IsDegraded(err error) bool {
	var degraded *DegradedError
	return errors.As(err, &degraded)
}

// TransientHTTPStatus reports whether an HTTP status code indicates a
// retryable condition.
func TransientHTTPStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
