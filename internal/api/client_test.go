package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"streamchat/internal/core"
	"streamchat/pkg/schema"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreAnyFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

const conversationJSON = `{
	"id": "CNV-1",
	"title": "Planning",
	"messages": [
		{"id": "m1", "role": "user", "content": "hi", "created_at": "2026-01-02T03:04:05Z"},
		{"id": "m2", "role": "assistant", "content": "hello", "tool_calls": [{"id": "t1", "name": "search"}]}
	]
}`

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	client, err := NewClient(&Config{
		BaseURL:    url,
		Token:      "tok",
		RetryDelay: time.Millisecond,
	}, core.NewNopLogger())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return client
}

func TestNewClient(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		config := &Config{BaseURL: "https://api.test.com/"}

		client, err := NewClient(config, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if client.config.Timeout != 30*time.Second {
			t.Errorf("expected default timeout 30s, got %v", client.config.Timeout)
		}

		if client.config.MaxRetries != 3 {
			t.Errorf("expected default max retries 3, got %d", client.config.MaxRetries)
		}

		if client.config.BaseURL != "https://api.test.com" {
			t.Errorf("expected trailing slash trimmed, got %s", client.config.BaseURL)
		}
	})

	t.Run("invalid config - missing base URL", func(t *testing.T) {
		_, err := NewClient(&Config{}, nil)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
	})

	t.Run("invalid config - websocket URL", func(t *testing.T) {
		_, err := NewClient(&Config{BaseURL: "ws://api.test.com"}, nil)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
	})
}

func TestGetConversation_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations/CNV-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected authorization header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, conversationJSON)
	}))
	defer server.Close()

	conv, err := newTestClient(t, server.URL).GetConversation(context.Background(), "CNV-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if conv.Title != "Planning" {
		t.Errorf("expected title Planning, got %s", conv.Title)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(conv.Messages))
	}
	if conv.Messages[0].Role != schema.RoleUser || conv.Messages[0].Content != "hi" {
		t.Errorf("unexpected first message %+v", conv.Messages[0])
	}
	if conv.Messages[1].ServerID != "m2" {
		t.Errorf("expected server id m2, got %s", conv.Messages[1].ServerID)
	}
	if conv.Messages[1].ToolCalls[0].Status != schema.ToolCallComplete {
		t.Errorf("expected confirmed tool call to be complete, got %s", conv.Messages[1].ToolCalls[0].Status)
	}
}

func TestGetConversation_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, conversationJSON)
	}))
	defer server.Close()

	conv, err := newTestClient(t, server.URL).GetConversation(context.Background(), "CNV-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if conv.ID != "CNV-1" {
		t.Errorf("expected CNV-1, got %s", conv.ID)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestGetConversation_GivesUp(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).GetConversation(context.Background(), "CNV-1")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != http.StatusInternalServerError {
		t.Errorf("expected code 500, got %d", apiErr.Code)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestGetConversation_ClientErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantType string
	}{
		{"not found", http.StatusNotFound, ErrorTypeNotFound},
		{"unauthorized", http.StatusUnauthorized, ErrorTypeStatus},
		{"bad request", http.StatusBadRequest, ErrorTypeStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := newTestClient(t, server.URL).GetConversation(context.Background(), "CNV-1")

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.Type != tt.wantType {
				t.Errorf("expected type %s, got %s", tt.wantType, apiErr.Type)
			}
			if calls.Load() != 1 {
				t.Errorf("expected 1 call, got %d", calls.Load())
			}
		})
	}
}

func TestGetConversation_InvalidBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"messages": [{"id": "m1", "role": "system", "content": "x"}]}`)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).GetConversation(context.Background(), "CNV-1")

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Type != ErrorTypeParse {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestGetConversation_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(t, url).GetConversation(context.Background(), "CNV-1")

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Type != ErrorTypeNetwork {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestGetConversation_RequiresID(t *testing.T) {
	_, err := newTestClient(t, "http://localhost").GetConversation(context.Background(), "")

	var vErr *core.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestAPIError(t *testing.T) {
	err := NewStatusError(502, "bad gateway")
	if err.Error() != "API status error (code 502): bad gateway" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !err.Retryable() {
		t.Error("expected 5xx to be retryable")
	}

	wrapped := NewNetworkError(context.DeadlineExceeded)
	if !errors.Is(wrapped, context.DeadlineExceeded) {
		t.Error("expected network error to unwrap")
	}
}
