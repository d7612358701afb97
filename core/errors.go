package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies failures of a call so callers can decide whether to
// degrade gracefully or re-raise.
type ErrorKind string

const (
	KindUnknown           ErrorKind = ""
	KindConfiguration     ErrorKind = "configuration"
	KindProviderTransport ErrorKind = "provider_transport"
	KindValidation        ErrorKind = "validation"
	KindToolExecution     ErrorKind = "tool_execution"
	KindStreamInterrupted ErrorKind = "stream_interrupted"
	KindRetryExhausted    ErrorKind = "retry_exhausted"
	KindFallbackExhausted ErrorKind = "fallback_exhausted"
)

// KindedError is implemented by every error of the taxonomy.
type KindedError interface {
	error
	Kind() ErrorKind
}

// KindOf returns the kind of the outermost taxonomy error in err's chain.
func KindOf(err error) ErrorKind {
	var k KindedError
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindUnknown
}

// ConfigurationError reports malformed or incomplete call configuration.
// It is fatal and never retried.
type ConfigurationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// NewConfigurationError creates a ConfigurationError for field.
func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message}
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Message
	}
	return fmt.Sprintf("configuration error for '%s': %s", e.Field, e.Message)
}

// Kind implements KindedError.
func (e *ConfigurationError) Kind() ErrorKind { return KindConfiguration }

// ProviderTransportError wraps a network, HTTP or rate limit failure raised
// by a provider adapter.
type ProviderTransportError struct {
	Provider   string
	StatusCode int // 0 when no HTTP response was received
	Retryable  bool
	Err        error
}

// NewProviderTransportError classifies err for the given provider. Network
// errors, timeouts, 408, 409, 429 and 5xx responses are retryable; caller
// cancellation is not.
func NewProviderTransportError(provider string, statusCode int, err error) *ProviderTransportError {
	return &ProviderTransportError{
		Provider:   provider,
		StatusCode: statusCode,
		Retryable:  isRetryable(statusCode, err),
		Err:        err,
	}
}

func (e *ProviderTransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s transport error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s transport error: %v", e.Provider, e.Err)
}

func (e *ProviderTransportError) Unwrap() error { return e.Err }

// Kind implements KindedError.
func (e *ProviderTransportError) Kind() ErrorKind { return KindProviderTransport }

// IsRetryableStatus reports whether an HTTP status is worth another attempt.
func IsRetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooManyRequests:
		return true
	}
	return code >= http.StatusInternalServerError
}

func isRetryable(statusCode int, err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if statusCode > 0 {
		return IsRetryableStatus(statusCode)
	}
	// no response: network failure or timeout
	return err != nil
}

// ToolExecutionError reports that a tool handler failed. The tool loop never
// retries it; it propagates to the orchestrator.
type ToolExecutionError struct {
	CallID string
	Tool   string
	Err    error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s (call %s) failed: %v", e.Tool, e.CallID, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// Kind implements KindedError.
func (e *ToolExecutionError) Kind() ErrorKind { return KindToolExecution }

// StreamInterruptedError reports a transport failure after a stream started.
// The partial stream state is discarded; a retry restarts the call.
type StreamInterruptedError struct {
	Provider   string
	ChunksSeen int
	Err        error
}

func (e *StreamInterruptedError) Error() string {
	return fmt.Sprintf("%s stream interrupted after %d chunks: %v", e.Provider, e.ChunksSeen, e.Err)
}

func (e *StreamInterruptedError) Unwrap() error { return e.Err }

// Kind implements KindedError.
func (e *StreamInterruptedError) Kind() ErrorKind { return KindStreamInterrupted }

// IsTransient reports whether err is a transport or stream failure that a
// retry may fix.
func IsTransient(err error) bool {
	var pte *ProviderTransportError
	if errors.As(err, &pte) {
		return pte.Retryable
	}
	var sie *StreamInterruptedError
	return errors.As(err, &sie)
}
