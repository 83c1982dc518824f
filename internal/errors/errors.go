package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode represents a specific error type for better error handling
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigLoad    ErrorCode = "CONFIG_LOAD_FAILED"
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"

	// Command validation errors
	ErrCodeInvalidRequestRate ErrorCode = "INVALID_REQUEST_RATE"
	ErrCodeInvalidAlgorithm   ErrorCode = "INVALID_ALGORITHM"
	ErrCodeInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrCodeServerNotFound     ErrorCode = "SERVER_NOT_FOUND"

	// Control API errors
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Internal errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// SimulatorError represents a structured error with context
type SimulatorError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Component string                 `json:"component,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Cause     error                  `json:"-"`
}

// Error implements the error interface
func (e *SimulatorError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s: %s", e.Code, e.Component, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Component, e.Message)
}

// Unwrap returns the underlying error
func (e *SimulatorError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error code
func (e *SimulatorError) Is(target error) bool {
	if t, ok := target.(*SimulatorError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithMetadata adds metadata to the error
func (e *SimulatorError) WithMetadata(key string, value interface{}) *SimulatorError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *SimulatorError) HTTPStatusCode() int {
	switch e.Code {
	case ErrCodeInvalidRequest, ErrCodeInvalidRequestRate, ErrCodeInvalidAlgorithm, ErrCodeInvalidConfig:
		return http.StatusBadRequest
	case ErrCodeServerNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// NewError creates a new SimulatorError
func NewError(code ErrorCode, component, message string) *SimulatorError {
	return &SimulatorError{
		Code:      code,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewErrorWithCause creates a new SimulatorError with an underlying cause
func NewErrorWithCause(code ErrorCode, component, message string, cause error) *SimulatorError {
	e := NewError(code, component, message)
	e.Cause = cause
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// WrapError wraps an existing error with SimulatorError structure
func WrapError(err error, code ErrorCode, component, message string) *SimulatorError {
	if err == nil {
		return nil
	}
	return NewErrorWithCause(code, component, message, err)
}

// NewInvalidRateError creates an error for a request rate outside [1, max]
func NewInvalidRateError(rate, max int) *SimulatorError {
	return NewError(
		ErrCodeInvalidRequestRate,
		"dispatcher",
		fmt.Sprintf("request rate must be between 1 and %d, got %d", max, rate),
	).WithMetadata("rate", rate)
}

// NewInvalidAlgorithmError creates an error for an algorithm without a policy
func NewInvalidAlgorithmError(name string) *SimulatorError {
	return NewError(
		ErrCodeInvalidAlgorithm,
		"routing",
		fmt.Sprintf("unsupported routing algorithm '%s'", name),
	).WithMetadata("algorithm", name)
}

// NewServerNotFoundError creates an error for an unknown server id
func NewServerNotFoundError(id int) *SimulatorError {
	return NewError(
		ErrCodeServerNotFound,
		"registry",
		fmt.Sprintf("server %d not found", id),
	).WithMetadata("server_id", id)
}

// NewRateLimitError creates an error for control API rate limiting
func NewRateLimitError(clientIP string) *SimulatorError {
	return NewError(
		ErrCodeRateLimitExceeded,
		"rate_limiter",
		fmt.Sprintf("rate limit exceeded for client %s", clientIP),
	).WithMetadata("client_ip", clientIP)
}

// IsSimulatorError checks if an error is a SimulatorError
func IsSimulatorError(err error) bool {
	var simErr *SimulatorError
	return errors.As(err, &simErr)
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var simErr *SimulatorError
	if errors.As(err, &simErr) {
		return simErr.Code
	}
	return ErrCodeInternalError
}

// GetHTTPStatusCode gets the appropriate HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	var simErr *SimulatorError
	if errors.As(err, &simErr) {
		return simErr.HTTPStatusCode()
	}
	return http.StatusInternalServerError
}
