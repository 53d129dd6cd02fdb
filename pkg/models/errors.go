package models

import (
	"errors"
	"fmt"
)

// Base errors
var (
	// Transport errors
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrTimeout              = errors.New("operation timed out")
	ErrTransport            = errors.New("transport error")
	ErrSessionClosed        = errors.New("session is closed")
	ErrPromptNotFound       = errors.New("device prompt not detected")

	// Registry errors
	ErrNotConnected    = errors.New("device is not connected")
	ErrDeviceNotFound  = errors.New("device not found")
	ErrUnknownConfig   = errors.New("no configuration recorded for device")
	ErrInvalidArgument = errors.New("invalid argument")

	// Dispatcher errors
	ErrUnknownTool     = errors.New("unknown tool")
	ErrUnknownResource = errors.New("unknown resource")
)

// FailureKind classifies why an operation did not succeed
type FailureKind string

const (
	FailureNone            FailureKind = "ok"
	FailureNotConnected    FailureKind = "not_connected"
	FailureAuthentication  FailureKind = "authentication"
	FailureTimeout         FailureKind = "timeout"
	FailureTransport       FailureKind = "transport"
	FailureInvalidArgument FailureKind = "invalid_argument"
)

// Describe returns the human-readable wording used in result messages
func (k FailureKind) Describe() string {
	switch k {
	case FailureNone:
		return "success"
	case FailureNotConnected:
		return "not connected"
	case FailureAuthentication:
		return "authentication failed"
	case FailureTimeout:
		return "connection timeout"
	case FailureTransport:
		return "transport error"
	case FailureInvalidArgument:
		return "invalid argument"
	default:
		return string(k)
	}
}

// TransportError is returned by device transports. Kind is one of
// FailureAuthentication, FailureTimeout or FailureTransport.
type TransportError struct {
	Kind FailureKind
	Op   string
	Err  error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the inner error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel that corresponds to the failure kind
func (e *TransportError) Is(target error) bool {
	switch target {
	case ErrAuthenticationFailed:
		return e.Kind == FailureAuthentication
	case ErrTimeout:
		return e.Kind == FailureTimeout
	case ErrTransport:
		return true
	}
	return false
}

// NewAuthError wraps err as an authentication failure
func NewAuthError(op string, err error) *TransportError {
	return &TransportError{Kind: FailureAuthentication, Op: op, Err: err}
}

// NewTimeoutError wraps err as a timeout failure
func NewTimeoutError(op string, err error) *TransportError {
	return &TransportError{Kind: FailureTimeout, Op: op, Err: err}
}

// NewTransportError wraps err as a generic transport failure
func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Kind: FailureTransport, Op: op, Err: err}
}

// KindOf maps an error returned by a transport onto a failure kind.
// Errors that are not TransportErrors count as generic transport failures.
func KindOf(err error) FailureKind {
	if err == nil {
		return FailureNone
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind
	}
	switch {
	case errors.Is(err, ErrAuthenticationFailed):
		return FailureAuthentication
	case errors.Is(err, ErrTimeout):
		return FailureTimeout
	case errors.Is(err, ErrNotConnected):
		return FailureNotConnected
	case errors.Is(err, ErrInvalidArgument):
		return FailureInvalidArgument
	}
	return FailureTransport
}

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	CodeDeviceNotFound  ErrorCode = "DEVICE_NOT_FOUND"
	CodeNotConnected    ErrorCode = "NOT_CONNECTED"
	CodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	CodeUnknownTool     ErrorCode = "UNKNOWN_TOOL"
	CodeInternalError   ErrorCode = "INTERNAL_ERROR"
)

// APIError represents a structured API error
type APIError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
	InnerError error                  `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.InnerError != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.InnerError)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the inner error
func (e *APIError) Unwrap() error {
	return e.InnerError
}

// NewAPIError creates a new API error
func NewAPIError(code ErrorCode, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
	}
}

// WithDetail adds a detail
func (e *APIError) WithDetail(key string, value interface{}) *APIError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithRequestID adds a request ID
func (e *APIError) WithRequestID(requestID string) *APIError {
	e.RequestID = requestID
	return e
}

// NewDeviceNotFoundError creates a device not found error
func NewDeviceNotFoundError(deviceID string) *APIError {
	return NewAPIError(CodeDeviceNotFound, "Device not found").WithDetail("device_id", deviceID)
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// ValidationErrors represents multiple validation errors
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// Error implements the error interface
func (ve *ValidationErrors) Error() string {
	if len(ve.Errors) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s %s", ve.Errors[0].Field, ve.Errors[0].Message)
}

// Is lets validation failures match ErrInvalidArgument
func (ve *ValidationErrors) Is(target error) bool {
	return target == ErrInvalidArgument
}

// Add adds a validation error
func (ve *ValidationErrors) Add(field, message string, value interface{}) {
	ve.Errors = append(ve.Errors, ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	})
}

// HasErrors returns true if there are validation errors
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// NewValidationErrors creates a new ValidationErrors
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors: make([]ValidationError, 0),
	}
}
