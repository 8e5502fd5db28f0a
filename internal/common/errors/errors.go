// Package errors provides the standardized job error taxonomy and its
// mapping onto user-visible job feedback.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidationFailed         ErrorCode = "VALIDATION_FAILED"
	ErrCodeUpstreamTimeout          ErrorCode = "UPSTREAM_TIMEOUT"
	ErrCodeUpstreamTransportFailure ErrorCode = "UPSTREAM_TRANSPORT_FAILED"
	ErrCodePublishFailed            ErrorCode = "PUBLISH_FAILED"
	ErrCodeJobAbandoned             ErrorCode = "JOB_ABANDONED"
	ErrCodeInternal                 ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured job error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is matches any StandardError carrying the same code.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// FeedbackMessage is the text sent to the requester in error feedback.
func (e *StandardError) FeedbackMessage() string {
	if e.Details == "" {
		return e.Message
	}
	return e.Message + ": " + e.Details
}

// Sentinels for errors.Is matching on code only.
var (
	ErrValidation      = &StandardError{Code: ErrCodeValidationFailed}
	ErrUpstreamTimeout = &StandardError{Code: ErrCodeUpstreamTimeout}
	ErrUpstreamFailure = &StandardError{Code: ErrCodeUpstreamTransportFailure}
	ErrPublishFailed   = &StandardError{Code: ErrCodePublishFailed}
	ErrJobAbandoned    = &StandardError{Code: ErrCodeJobAbandoned}
)

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewValidationError rejects a malformed or unsupported request.
func NewValidationError(reason string) *StandardError {
	return newError(ErrCodeValidationFailed, "Invalid job request", reason, false, nil)
}

// NewUpstreamTimeoutError records an elapsed query deadline. Callers treat it
// as non-fatal.
func NewUpstreamTimeoutError(upstream string, collected int) *StandardError {
	e := newError(ErrCodeUpstreamTimeout, "Upstream query deadline elapsed",
		fmt.Sprintf("upstream: %s", upstream), true, nil)
	e.Metadata = map[string]interface{}{"collected": collected}
	return e
}

// NewUpstreamTransportError reports an unusable upstream connection.
func NewUpstreamTransportError(upstream string, err error) *StandardError {
	return newError(ErrCodeUpstreamTransportFailure, "Upstream source unavailable",
		fmt.Sprintf("upstream: %s, error: %v", upstream, err), true, err)
}

// NewPublishError reports an outbound publish rejected by every relay.
func NewPublishError(what string, err error) *StandardError {
	return newError(ErrCodePublishFailed, "Failed to publish "+what, errString(err), true, err)
}

// NewJobAbandonedError marks a job cut short by process shutdown.
func NewJobAbandonedError(stage string) *StandardError {
	return newError(ErrCodeJobAbandoned, "Job abandoned during shutdown",
		fmt.Sprintf("stage: %s", stage), false, nil)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", errString(err), false, err)
}

// AsStandardError normalizes any error into a StandardError.
func AsStandardError(err error) *StandardError {
	if err == nil {
		return nil
	}
	var std *StandardError
	if stderrors.As(err, &std) {
		return std
	}
	return NewInternalError(err)
}

// GetErrorCategory groups codes for metrics and logs.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeValidationFailed:
		return "request"
	case ErrCodeUpstreamTimeout, ErrCodeUpstreamTransportFailure:
		return "upstream"
	case ErrCodePublishFailed:
		return "transport"
	case ErrCodeJobAbandoned:
		return "lifecycle"
	default:
		return "internal"
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
