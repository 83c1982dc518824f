package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"invalid rate", NewInvalidRateError(0, 1000), http.StatusBadRequest},
		{"invalid algorithm", NewInvalidAlgorithmError("random"), http.StatusBadRequest},
		{"server not found", NewServerNotFoundError(9), http.StatusNotFound},
		{"rate limited", NewRateLimitError("10.0.0.1"), http.StatusTooManyRequests},
		{"wrapped", fmt.Errorf("handler: %w", NewServerNotFoundError(1)), http.StatusNotFound},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetHTTPStatusCode(tt.err))
		})
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewInvalidRateError(-3, 1000))

	assert.True(t, errors.Is(err, &SimulatorError{Code: ErrCodeInvalidRequestRate}))
	assert.False(t, errors.Is(err, &SimulatorError{Code: ErrCodeServerNotFound}))
	assert.Equal(t, ErrCodeInvalidRequestRate, GetErrorCode(err))
	assert.True(t, IsSimulatorError(err))
}

func TestWrapError(t *testing.T) {
	assert.Nil(t, WrapError(nil, ErrCodeConfigLoad, "config", "load"))

	cause := errors.New("no such file")
	err := WrapError(cause, ErrCodeConfigLoad, "config", "failed to read config")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "no such file", err.Details)
	assert.Contains(t, err.Error(), "CONFIG_LOAD_FAILED")
	assert.Equal(t, ErrCodeInternalError, GetErrorCode(cause))
}
