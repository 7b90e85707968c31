package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Transport
	ErrCodeTransport ErrorCode = "TRANSPORT_ERROR"

	// Protocol
	ErrCodeProtocol          ErrorCode = "PROTOCOL_ERROR"
	ErrCodeUnsupportedAction ErrorCode = "UNSUPPORTED_ACTION"
	ErrCodeMissingRequired   ErrorCode = "MISSING_REQUIRED"
	ErrCodeInvalidInput      ErrorCode = "INVALID_INPUT"

	// Authorization
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidPairingCode ErrorCode = "INVALID_PAIRING_CODE"

	// Rate Limiting
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Remote side answered ok=false
	ErrCodeRejected ErrorCode = "REQUEST_REJECTED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeExternal ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

// AppError is a structured error. Message is the text that travels on the
// wire in the "message" field of a response.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Protocol errors

func UnsupportedAction() *AppError {
	return New(ErrCodeUnsupportedAction, "Unsupported action")
}

func MissingPairingCode() *AppError {
	return New(ErrCodeMissingRequired, "Missing pairing code")
}

func MissingToken() *AppError {
	return New(ErrCodeMissingRequired, "Missing authentication token")
}

func MissingField(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("Missing %s", field))
}

func InvalidField(field string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s", field))
}

func Protocol(message string, cause error) *AppError {
	return Wrap(ErrCodeProtocol, message, cause)
}

// Authorization errors. Messages are deliberately generic.

func Unauthorized() *AppError {
	return New(ErrCodeUnauthorized, "Unauthorized request")
}

func InvalidPairingCode() *AppError {
	return New(ErrCodeInvalidPairingCode, "Invalid pairing code")
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

// Transport and remote errors

func Transport(message string, cause error) *AppError {
	return Wrap(ErrCodeTransport, message, cause)
}

func Rejected(message string) *AppError {
	return New(ErrCodeRejected, message)
}

// Internal errors

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func StateUnavailable(cause error) *AppError {
	return Wrap(ErrCodeInternal, "Failed to access pairing state", cause)
}

// External passes the collaborator's message through verbatim.
func External(cause error) *AppError {
	return Wrap(ErrCodeExternal, cause.Error(), cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// MessageOf returns the wire message for err. Non-AppErrors fall back to err.Error().
func MessageOf(err error) string {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Message
	}
	return err.Error()
}
