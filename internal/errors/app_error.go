package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorType classifies an AppError by origin
type ErrorType string

const (
	ErrTypeNetwork     ErrorType = "NETWORK"
	ErrTypeTimeout     ErrorType = "TIMEOUT"
	ErrTypeRateLimit   ErrorType = "RATE_LIMIT"
	ErrTypeServer      ErrorType = "SERVER"
	ErrTypeClient      ErrorType = "CLIENT"
	ErrTypeNotFound    ErrorType = "NOT_FOUND"
	ErrTypeValidation  ErrorType = "VALIDATION"
	ErrTypeSemantic    ErrorType = "SEMANTIC"
	ErrTypeCancelled   ErrorType = "CANCELLED"
	ErrTypeCircuitOpen ErrorType = "CIRCUIT_OPEN"
	ErrTypeUnknown     ErrorType = "UNKNOWN"
)

// ErrCircuitOpen is returned when a breaker refuses a call
var ErrCircuitOpen = errors.New("circuit breaker is open")

// AppError is a classified failure of a feature's work, optionally tied to
// the subject it ran against.
type AppError struct {
	Type       ErrorType
	Message    string
	Feature    string
	Subject    string
	StatusCode int
	RetryAfter time.Duration
	Retryable  bool
	Cause      error
	Context    map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", e.Type)
	if e.Feature != "" {
		b.WriteString(" " + e.Feature)
		if e.Subject != "" {
			b.WriteString("(" + e.Subject + ")")
		}
		b.WriteString(":")
	}
	b.WriteString(" " + e.Message)
	if e.Cause != nil && e.Cause.Error() != e.Message {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap allows errors.Is and errors.As to work with AppError
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
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:      errType,
		Message:   message,
		Cause:     cause,
		Retryable: retryableTypes[errType],
		Context:   make(map[string]interface{}),
	}
}

// NewValidationError reports input that never reached the network
func NewValidationError(message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil)
}

// NewSemanticError reports a successful response whose payload says the
// check could not be performed.
func NewSemanticError(message string) *AppError {
	return NewAppError(ErrTypeSemantic, message, nil)
}

// HTTPStatusError is a non-2xx response from a backend endpoint
type HTTPStatusError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *HTTPStatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return e.Message
}

// NewHTTPStatusError builds an HTTPStatusError, reading Retry-After when set
func NewHTTPStatusError(statusCode int, message string, header http.Header) *HTTPStatusError {
	e := &HTTPStatusError{StatusCode: statusCode, Message: message}
	if header != nil {
		if secs, err := strconv.Atoi(header.Get("Retry-After")); err == nil && secs > 0 {
			e.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return e
}

var retryableTypes = map[ErrorType]bool{
	ErrTypeNetwork:   true,
	ErrTypeTimeout:   true,
	ErrTypeRateLimit: true,
	ErrTypeServer:    true,
}

// CreateAppError classifies any error into an AppError labelled with the
// feature and subject. A nil error yields nil.
func CreateAppError(err error, feature, subject string) *AppError {
	if err == nil {
		return nil
	}

	var existing *AppError
	if errors.As(err, &existing) {
		appErr := *existing
		if appErr.Feature == "" {
			appErr.Feature = feature
		}
		if appErr.Subject == "" {
			appErr.Subject = subject
		}
		return &appErr
	}

	appErr := classify(err)
	appErr.Feature = feature
	appErr.Subject = subject
	return appErr
}

func classify(err error) *AppError {
	switch {
	case errors.Is(err, context.Canceled):
		return NewAppError(ErrTypeCancelled, "operation was cancelled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewAppError(ErrTypeTimeout, "operation timed out", err)
	case errors.Is(err, ErrCircuitOpen):
		return NewAppError(ErrTypeCircuitOpen, "service temporarily unavailable", err)
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		appErr := NewAppError(typeForStatus(statusErr.StatusCode), statusErr.Error(), err)
		appErr.StatusCode = statusErr.StatusCode
		appErr.RetryAfter = statusErr.RetryAfter
		return appErr
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewAppError(ErrTypeTimeout, "request timed out", err)
		}
		return NewAppError(ErrTypeNetwork, "network error", err)
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return NewAppError(ErrTypeNetwork, "connection closed unexpectedly", err)
	}

	return NewAppError(ErrTypeUnknown, err.Error(), err)
}

func typeForStatus(status int) ErrorType {
	switch {
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrTypeTimeout
	case status == http.StatusTooManyRequests:
		return ErrTypeRateLimit
	case status == http.StatusNotImplemented:
		return ErrTypeClient
	case status >= 500:
		return ErrTypeServer
	case status == http.StatusNotFound:
		return ErrTypeNotFound
	default:
		return ErrTypeClient
	}
}

// IsRetryable reports whether err classifies as retryable
func IsRetryable(err error) bool {
	appErr := CreateAppError(err, "", "")
	return appErr != nil && appErr.Retryable
}

// GetErrorType returns the classification of err
func GetErrorType(err error) ErrorType {
	if appErr := CreateAppError(err, "", ""); appErr != nil {
		return appErr.Type
	}
	return ""
}

// UserMessage returns text suitable for a toast
func UserMessage(err error) string {
	appErr := CreateAppError(err, "", "")
	if appErr == nil {
		return ""
	}
	switch appErr.Type {
	case ErrTypeNetwork:
		return "Network error. Please check your connection."
	case ErrTypeTimeout:
		return "The request timed out."
	case ErrTypeRateLimit:
		return "Too many requests. Please wait a moment."
	case ErrTypeServer:
		return "The analysis service is having trouble. Please try again later."
	case ErrTypeCircuitOpen:
		return "The analysis service is temporarily unavailable."
	case ErrTypeCancelled:
		return "The request was cancelled."
	default:
		return appErr.Message
	}
}
