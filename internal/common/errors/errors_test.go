package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingLogger struct {
	errors []map[string]interface{}
	warns  []map[string]interface{}
}

func (r *recordingLogger) Error(_ string, fields map[string]interface{}) {
	r.errors = append(r.errors, fields)
}

func (r *recordingLogger) Warn(_ string, fields map[string]interface{}) {
	r.warns = append(r.warns, fields)
}

func TestStandardError_IsMatchesCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewValidationError("missing input"))

	assert.ErrorIs(t, err, ErrValidation)
	assert.NotErrorIs(t, err, ErrPublishFailed)
}

func TestStandardError_UnwrapsCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewUpstreamTransportError("wss://relay.example", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrUpstreamFailure)
	assert.True(t, err.Retryable)
	assert.Contains(t, err.Error(), "UPSTREAM_TRANSPORT_FAILED")
}

func TestStandardError_FeedbackMessage(t *testing.T) {
	assert.Equal(t, "Invalid job request: no text input", NewValidationError("no text input").FeedbackMessage())
	assert.Equal(t, "Unexpected error", (&StandardError{Code: ErrCodeInternal, Message: "Unexpected error"}).FeedbackMessage())
}

func TestAsStandardError(t *testing.T) {
	assert.Nil(t, AsStandardError(nil))

	plain := AsStandardError(stderrors.New("boom"))
	assert.Equal(t, ErrCodeInternal, plain.Code)
	assert.Equal(t, "boom", plain.Details)

	pub := NewPublishError("result", stderrors.New("rejected"))
	assert.Same(t, pub, AsStandardError(fmt.Errorf("ctx: %w", pub)))
}

func TestGetErrorCategory(t *testing.T) {
	tests := map[ErrorCode]string{
		ErrCodeValidationFailed:         "request",
		ErrCodeUpstreamTimeout:          "upstream",
		ErrCodeUpstreamTransportFailure: "upstream",
		ErrCodePublishFailed:            "transport",
		ErrCodeJobAbandoned:             "lifecycle",
		ErrCodeInternal:                 "internal",
	}
	for code, want := range tests {
		assert.Equal(t, want, GetErrorCategory(code), string(code))
	}
}

func TestErrorHandler_HandleJobError(t *testing.T) {
	log := &recordingLogger{}
	h := NewErrorHandler(log)

	assert.Nil(t, h.HandleJobError("job-1", "Querying", nil))

	std := h.HandleJobError("job-1", "Querying", NewUpstreamTimeoutError("wss://up", 2))
	assert.Equal(t, ErrCodeUpstreamTimeout, std.Code)
	if assert.Len(t, log.errors, 1) {
		assert.Equal(t, "job-1", log.errors[0]["jobId"])
		assert.Equal(t, 2, log.errors[0]["collected"])
	}

	h.HandleJobError("job-2", "Querying", NewJobAbandonedError("Querying"))
	assert.Len(t, log.warns, 1)
}
