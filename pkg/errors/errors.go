package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode represents application error codes
type ErrorCode string

const (
	// Token authority errors
	ErrCodeMissingParameter    ErrorCode = "MISSING_PARAMETER"
	ErrCodeInvalidRole         ErrorCode = "INVALID_ROLE"
	ErrCodeServerMisconfigured ErrorCode = "SERVER_MISCONFIGURED"
	ErrCodeIssuanceFailed      ErrorCode = "ISSUANCE_FAILED"

	// Client-side errors
	ErrCodeNetworkFailure       ErrorCode = "NETWORK_FAILURE"
	ErrCodeAuthorizationExpired ErrorCode = "AUTHORIZATION_EXPIRED"
	ErrCodeTransportError       ErrorCode = "TRANSPORT_ERROR"

	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeRateLimit    ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
)

// AppError represents an application error with code and context
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	Context    map[string]interface{}
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Context:    make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with application error
func WrapError(err error, code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Cause:      err,
		Context:    make(map[string]interface{}),
	}
}

// Common error constructors
func NewMissingParameterError(params ...string) *AppError {
	e := NewAppError(ErrCodeMissingParameter, "Missing required parameters", http.StatusBadRequest)
	return e.WithContext("required", params)
}

func NewInvalidRoleError(role string) *AppError {
	e := NewAppError(ErrCodeInvalidRole, "Role must be 'publisher' or 'subscriber'", http.StatusBadRequest)
	return e.WithContext("role", role)
}

func NewServerMisconfiguredError(message string) *AppError {
	return NewAppError(ErrCodeServerMisconfigured, message, http.StatusInternalServerError)
}

func NewIssuanceFailedError(err error) *AppError {
	return WrapError(err, ErrCodeIssuanceFailed, "Failed to generate token", http.StatusInternalServerError)
}

func NewNetworkFailureError(err error) *AppError {
	return WrapError(err, ErrCodeNetworkFailure, "request to token authority did not complete", 0)
}

func NewAuthorizationExpiredError(message string) *AppError {
	return NewAppError(ErrCodeAuthorizationExpired, message, 0)
}

func NewTransportError(message string) *AppError {
	return NewAppError(ErrCodeTransportError, message, 0)
}

func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewRateLimitError() *AppError {
	return NewAppError(ErrCodeRateLimit, "rate limit exceeded", http.StatusTooManyRequests)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrCodeInternal, message, http.StatusInternalServerError)
}

// IsAppError checks if error is an AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	if appErr, ok := err.(*AppError); ok {
		return appErr
	}

	// Try to unwrap
	type unwrapper interface {
		Unwrap() error
	}

	if u, ok := err.(unwrapper); ok {
		return GetAppError(u.Unwrap())
	}

	return nil
}

// Category buckets error codes for the UI layer. The three buckets must
// never be conflated in surfaced messages: configuration errors need operator
// action, transient errors need a retry, expired errors need a reconnect.
type Category string

const (
	CategoryConfiguration Category = "needs_configuration"
	CategoryTransient     Category = "transient_failure"
	CategoryExpired       Category = "session_expired"
)

// Categorize maps an error to the UI-facing category.
func Categorize(err error) Category {
	appErr := GetAppError(err)
	if appErr == nil {
		return CategoryTransient
	}
	switch appErr.Code {
	case ErrCodeServerMisconfigured, ErrCodeMissingParameter, ErrCodeInvalidRole:
		return CategoryConfiguration
	case ErrCodeAuthorizationExpired:
		return CategoryExpired
	default:
		return CategoryTransient
	}
}
