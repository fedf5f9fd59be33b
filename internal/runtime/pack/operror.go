package pack

import (
	"errors"
	"fmt"
	"strings"

	"github.com/drblury/packflow/internal/runtime/jsoncodec"
)

// DefaultErrorCode is used for failures without a structured code.
const DefaultErrorCode = "node-error"

// OpError is a structured pack operation failure. Retryable and BackoffMS
// drive the retry scheduler; everything else is recorded verbatim.
type OpError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	BackoffMS int64  `json:"backoff_ms,omitempty"`
	Details   any    `json:"details,omitempty"`
}

func (e *OpError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AsOpError coerces any error into an *OpError. Errors that already carry
// one (directly or wrapped) keep their structure; everything else becomes a
// non-retryable DefaultErrorCode failure.
func AsOpError(err error) *OpError {
	if err == nil {
		return nil
	}
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr
	}
	return &OpError{
		Code:      DefaultErrorCode,
		Message:   err.Error(),
		Retryable: false,
	}
}

// ParseOpError extracts a structured error from raw pack output. Packs embed
// a JSON error object in their failure text, sometimes behind a prefix, so
// the parse starts at the first brace. Text without a parseable object
// becomes a non-retryable DefaultErrorCode failure carrying the text.
func ParseOpError(text string) *OpError {
	trimmed := strings.TrimSpace(text)
	candidate := trimmed
	if !strings.HasPrefix(trimmed, "{") {
		idx := strings.Index(trimmed, "{")
		if idx < 0 {
			return plainOpError(text)
		}
		candidate = trimmed[idx:]
	}

	var parsed struct {
		Code         string `json:"code"`
		Message      string `json:"message"`
		Retryable    bool   `json:"retryable"`
		BackoffMS    int64  `json:"backoff_ms"`
		BackoffMSAlt int64  `json:"backoff-ms"`
		Details      any    `json:"details"`
	}
	if err := jsoncodec.Unmarshal([]byte(candidate), &parsed); err != nil {
		return plainOpError(text)
	}

	out := &OpError{
		Code:      parsed.Code,
		Message:   parsed.Message,
		Retryable: parsed.Retryable,
		BackoffMS: parsed.BackoffMS,
		Details:   parsed.Details,
	}
	if out.Code == "" {
		out.Code = DefaultErrorCode
	}
	if out.Message == "" {
		out.Message = text
	}
	if out.BackoffMS == 0 {
		out.BackoffMS = parsed.BackoffMSAlt
	}
	return out
}

func plainOpError(text string) *OpError {
	message := text
	if message == "" {
		message = "unknown pack error"
	}
	return &OpError{
		Code:      DefaultErrorCode,
		Message:   message,
		Retryable: false,
	}
}
