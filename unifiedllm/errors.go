package unifiedllm

import (
	"errors"
	"fmt"
)

// SDKError is the base error type for all transport errors.
type SDKError struct {
	Message string
	Cause   error
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SDKError) Unwrap() error {
	return e.Cause
}

// TransportError is a non-success HTTP response from the model service.
type TransportError struct {
	SDKError
	Provider   string
	StatusCode int
	Body       string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("[%s] API request failed with status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// NetworkError is a connection-level failure; no response was received.
type NetworkError struct{ SDKError }

// ConfigurationError reports missing credentials or an unusable client setup.
type ConfigurationError struct{ SDKError }

// NewConfigurationError builds a ConfigurationError with the given message.
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{SDKError: SDKError{Message: fmt.Sprintf(format, args...)}}
}

// ErrorFromStatusCode maps a non-success HTTP status to a TransportError.
func ErrorFromStatusCode(provider string, statusCode int, body string) error {
	return &TransportError{
		SDKError:   SDKError{Message: fmt.Sprintf("status %d", statusCode)},
		Provider:   provider,
		StatusCode: statusCode,
		Body:       body,
	}
}

// IsConfigurationError reports whether err is, or wraps, a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not a
// TransportError.
func StatusCode(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}
