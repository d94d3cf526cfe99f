package core

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLoggerWithWriter(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantInfo  bool
		wantDebug bool
	}{
		{"debug level", "debug", true, true},
		{"info level", "info", true, false},
		{"warn level", "warn", false, false},
		{"error level", "error", false, false},
		{"default level", "", true, false},
		{"unknown level", "invalid", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLoggerWithWriter(tt.level, &buf)

			logger.Info("info message", "key", "value")
			logger.Debug("debug message", "key", "value")
			output := buf.String()

			if got := strings.Contains(output, "info message"); got != tt.wantInfo {
				t.Errorf("info logged = %v, want %v", got, tt.wantInfo)
			}
			if got := strings.Contains(output, "debug message"); got != tt.wantDebug {
				t.Errorf("debug logged = %v, want %v", got, tt.wantDebug)
			}
		})
	}
}

func TestLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Info("test message", "key", "value")

	var logEntry map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &logEntry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if logEntry["msg"] != "test message" {
		t.Errorf("Expected message 'test message', got %v", logEntry["msg"])
	}
	if logEntry["key"] != "value" {
		t.Errorf("Expected key=value, got %v", logEntry["key"])
	}
}

func TestLoggerMethods(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("debug", &buf)

	logger.Debug("debug message", "key", "debug")
	logger.Info("info message", "key", "info")
	logger.Warn("warn message", "key", "warn")
	logger.Error("error message", "key", "error")

	output := buf.String()

	// Check that all messages were logged
	expectedMessages := []string{"debug message", "info message", "warn message", "error message"}
	for _, msg := range expectedMessages {
		if !strings.Contains(output, msg) {
			t.Errorf("Expected to find message '%s' in output", msg)
		}
	}
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	// Must not panic
	logger.Error("ignored", "key", "value")
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("warn") != slog.LevelWarn {
		t.Error("warn should map to slog.LevelWarn")
	}
	if ParseLevel("nonsense") != slog.LevelInfo {
		t.Error("unknown levels should map to slog.LevelInfo")
	}
}
