package errors

// Logger is the subset of logger.Logger the handler needs.
type Logger interface {
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// ErrorHandler normalizes and logs job failures.
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleJobError logs err against jobID and returns its normalized form.
// Abandoned jobs log at warn level since shutdown is expected.
func (h *ErrorHandler) HandleJobError(jobID, state string, err error) *StandardError {
	stdErr := AsStandardError(err)
	if stdErr == nil {
		return nil
	}

	fields := map[string]interface{}{
		"jobId":         jobID,
		"state":         state,
		"errorCode":     string(stdErr.Code),
		"errorCategory": GetErrorCategory(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
	}
	for k, v := range stdErr.Metadata {
		fields[k] = v
	}

	if stdErr.Code == ErrCodeJobAbandoned {
		h.logger.Warn("job abandoned", fields)
	} else {
		h.logger.Error("job failed", fields)
	}
	return stdErr
}
