package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("Error returns formatted string", func(t *testing.T) {
		err := New(ErrCodeUnauthorized, "Unauthorized request")
		assert.Equal(t, "UNAUTHORIZED: Unauthorized request", err.Error())
	})

	t.Run("Error with cause includes cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Transport("Failed to connect to robot service", cause)
		assert.Contains(t, err.Error(), "TRANSPORT_ERROR")
		assert.Contains(t, err.Error(), "Failed to connect to robot service")
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("WithCause adds cause to error", func(t *testing.T) {
		cause := errors.New("original error")
		err := New(ErrCodeInternal, "Something went wrong").WithCause(cause)
		assert.Equal(t, cause, err.Unwrap())
		assert.True(t, errors.Is(err, cause))
	})

	t.Run("WithDetails adds details to error", func(t *testing.T) {
		details := map[string]string{"field": "repo_id"}
		err := New(ErrCodeInvalidInput, "Invalid repo_id").WithDetails(details)
		assert.Equal(t, details, err.Details)
	})
}

func TestWireMessages(t *testing.T) {
	tests := []struct {
		name         string
		err          *AppError
		expectedCode ErrorCode
		expectedMsg  string
	}{
		{"UnsupportedAction", UnsupportedAction(), ErrCodeUnsupportedAction, "Unsupported action"},
		{"MissingPairingCode", MissingPairingCode(), ErrCodeMissingRequired, "Missing pairing code"},
		{"MissingToken", MissingToken(), ErrCodeMissingRequired, "Missing authentication token"},
		{"MissingField", MissingField("repo_id"), ErrCodeMissingRequired, "Missing repo_id"},
		{"InvalidField", InvalidField("model_name"), ErrCodeInvalidInput, "Invalid model_name"},
		{"Unauthorized", Unauthorized(), ErrCodeUnauthorized, "Unauthorized request"},
		{"InvalidPairingCode", InvalidPairingCode(), ErrCodeInvalidPairingCode, "Invalid pairing code"},
		{"StateUnavailable", StateUnavailable(nil), ErrCodeInternal, "Failed to access pairing state"},
		{"Rejected", Rejected("Robot busy"), ErrCodeRejected, "Robot busy"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expectedCode, tc.err.Code)
			assert.Equal(t, tc.expectedMsg, tc.err.Message)
		})
	}
}

func TestExternal(t *testing.T) {
	t.Run("passes the collaborator message through verbatim", func(t *testing.T) {
		cause := errors.New("No kiosk host process found for nickname: sourccey")
		err := External(cause)
		assert.Equal(t, ErrCodeExternal, err.Code)
		assert.Equal(t, "No kiosk host process found for nickname: sourccey", err.Message)
		assert.Equal(t, cause, err.Unwrap())
	})
}

func TestAsAppError(t *testing.T) {
	t.Run("extracts wrapped AppError", func(t *testing.T) {
		original := Unauthorized()
		wrapped := fmt.Errorf("ping: %w", original)
		extracted, ok := AsAppError(wrapped)
		assert.True(t, ok)
		assert.Equal(t, original, extracted)
		assert.True(t, IsAppError(wrapped))
	})

	t.Run("returns false for non-AppError", func(t *testing.T) {
		extracted, ok := AsAppError(errors.New("standard error"))
		assert.False(t, ok)
		assert.Nil(t, extracted)
	})
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeUnauthorized, GetCode(Unauthorized()))
	assert.Equal(t, ErrCodeInternal, GetCode(errors.New("standard error")))
}

func TestMessageOf(t *testing.T) {
	assert.Equal(t, "Invalid pairing code", MessageOf(InvalidPairingCode()))
	assert.Equal(t, "disk full", MessageOf(errors.New("disk full")))
}
