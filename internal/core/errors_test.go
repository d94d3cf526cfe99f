package core

import (
	"errors"
	"testing"
	"time"
)

func TestValidationError(t *testing.T) {
	baseErr := errors.New("base error")

	tests := []struct {
		name     string
		err      *ValidationError
		expected string
	}{
		{
			name: "with field",
			err: &ValidationError{
				Field:   "name",
				Message: "must be 1-100 characters",
				Err:     baseErr,
			},
			expected: "name: must be 1-100 characters",
		},
		{
			name: "without field",
			err: &ValidationError{
				Message: "invalid input",
				Err:     baseErr,
			},
			expected: "invalid input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("ValidationError.Error() = %v, want %v", got, tt.expected)
			}

			// Test Unwrap
			if !errors.Is(tt.err, baseErr) {
				t.Error("ValidationError should wrap base error")
			}
		})
	}
}

func TestLockError(t *testing.T) {
	baseErr := errors.New("base error")

	err := &LockError{
		Operation: "acquire",
		Message:   "file already locked",
		Err:       baseErr,
	}

	expected := "lock acquire: file already locked"
	if got := err.Error(); got != expected {
		t.Errorf("LockError.Error() = %v, want %v", got, expected)
	}

	// Test Unwrap
	if !errors.Is(err, baseErr) {
		t.Error("LockError should wrap base error")
	}
}

func TestTransportError(t *testing.T) {
	baseErr := errors.New("base error")

	tests := []struct {
		name     string
		err      *TransportError
		expected string
	}{
		{
			name: "with URL",
			err: &TransportError{
				Operation: "dial",
				URL:       "ws://localhost:8000/ws/chat",
				Message:   "connection refused",
				Err:       baseErr,
			},
			expected: "transport dial to ws://localhost:8000/ws/chat: connection refused",
		},
		{
			name: "without URL",
			err: &TransportError{
				Operation: "write",
				Message:   "broken pipe",
				Err:       baseErr,
			},
			expected: "transport write: broken pipe",
		},
		{
			name: "with close code",
			err: &TransportError{
				Operation: "read",
				Code:      1006,
				Message:   "connection lost",
				Err:       baseErr,
			},
			expected: "transport read: connection lost (close code 1006)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("TransportError.Error() = %v, want %v", got, tt.expected)
			}

			// Test Unwrap
			if !errors.Is(tt.err, baseErr) {
				t.Error("TransportError should wrap base error")
			}
		})
	}
}

func TestServerError(t *testing.T) {
	err := &ServerError{MessageID: "srv-1", Message: "rate limited"}

	expected := "server error: rate limited"
	if got := err.Error(); got != expected {
		t.Errorf("ServerError.Error() = %v, want %v", got, expected)
	}
}

func TestTimeoutError(t *testing.T) {
	err := &TimeoutError{Operation: "connect", After: 5 * time.Second}

	expected := "connect timed out after 5s"
	if got := err.Error(); got != expected {
		t.Errorf("TimeoutError.Error() = %v, want %v", got, expected)
	}

	var timeout interface{ Timeout() bool }
	if !errors.As(err, &timeout) || !timeout.Timeout() {
		t.Error("TimeoutError should report Timeout() == true")
	}
}
