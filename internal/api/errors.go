package api

import "fmt"

// APIError represents an error from the conversation API client.
type APIError struct {
	// Type categorizes the error
	Type string

	// Message is a human-readable error message
	Message string

	// Code is the HTTP status code (if applicable)
	Code int

	// Err is the underlying error
	Err error
}

// Error types.
const (
	ErrorTypeNetwork  = "network"
	ErrorTypeStatus   = "status"
	ErrorTypeNotFound = "not_found"
	ErrorTypeParse    = "parse"
)

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("API %s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("API %s error: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed.
func (e *APIError) Retryable() bool {
	switch e.Type {
	case ErrorTypeNetwork:
		return true
	case ErrorTypeStatus:
		return e.Code >= 500
	default:
		return false
	}
}

// NewNetworkError creates a network error.
func NewNetworkError(err error) *APIError {
	return &APIError{
		Type:    ErrorTypeNetwork,
		Message: "failed to reach the conversation API",
		Err:     err,
	}
}

// NewStatusError creates an error for an unexpected HTTP status.
func NewStatusError(code int, body string) *APIError {
	if code == 404 {
		return &APIError{
			Type:    ErrorTypeNotFound,
			Code:    code,
			Message: "conversation not found",
		}
	}
	return &APIError{
		Type:    ErrorTypeStatus,
		Code:    code,
		Message: body,
	}
}

// NewParseError creates a parse error.
func NewParseError(err error) *APIError {
	return &APIError{
		Type:    ErrorTypeParse,
		Message: "failed to decode response",
		Err:     err,
	}
}
