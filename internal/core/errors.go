package core

import (
	"fmt"
	"time"
)

// ValidationError represents a validation failure.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// LockError represents a file locking error.
type LockError struct {
	Operation string
	Message   string
	Err       error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("lock %s: %s", e.Operation, e.Message)
}

func (e *LockError) Unwrap() error {
	return e.Err
}

// TransportError represents a failure of the streaming connection: a dial
// that could not be established, an abnormal closure, or a failed write.
type TransportError struct {
	Operation string
	URL       string
	Code      int // WebSocket close code, 0 if not applicable
	Message   string
	Err       error
}

func (e *TransportError) Error() string {
	msg := e.Message
	if e.Code != 0 {
		msg = fmt.Sprintf("%s (close code %d)", msg, e.Code)
	}
	if e.URL != "" {
		return fmt.Sprintf("transport %s to %s: %s", e.Operation, e.URL, msg)
	}
	return fmt.Sprintf("transport %s: %s", e.Operation, msg)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServerError is an error reported in-band by the server.
type ServerError struct {
	MessageID string
	Message   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %s", e.Message)
}

// TimeoutError is returned when an operation does not finish in time.
type TimeoutError struct {
	Operation string
	After     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v", e.Operation, e.After)
}

// Timeout lets callers detect the error with a net.Error-style check.
func (e *TimeoutError) Timeout() bool {
	return true
}
