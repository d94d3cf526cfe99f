package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"streamchat/internal/core"
	"streamchat/pkg/schema"
)

// Client fetches confirmed conversation history from the REST API.
type Client struct {
	config *Config
	http   *http.Client
	logger core.Logger
}

// NewClient creates a new API client.
func NewClient(config *Config, logger core.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	config.SetDefaults()

	if logger == nil {
		logger = core.NewNopLogger()
	}

	return &Client{
		config: config,
		http: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
	}, nil
}

// ConfigFromCore maps application configuration onto client configuration.
func ConfigFromCore(cfg *core.Config) *Config {
	return &Config{
		BaseURL: cfg.APIBaseURL,
		Token:   cfg.APIToken,
	}
}

// Conversation is the server's confirmed copy of a conversation.
type Conversation struct {
	ID       string
	Title    string
	Messages []schema.DisplayMessage
}

// Clone creates a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	clone := *c
	clone.Messages = schema.CloneMessages(c.Messages)
	return &clone
}

type conversationResponse struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Messages []remoteMessage `json:"messages"`
	Error    *errorBody      `json:"error,omitempty"`
}

type errorBody struct {
	Message string `json:"message"`
}

type remoteMessage struct {
	ID        string            `json:"id"`
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	ToolCalls []schema.ToolCall `json:"tool_calls,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// GetConversation fetches a conversation. Network failures and 5xx
// responses are retried; other failures are returned immediately.
func (c *Client) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	if id == "" {
		return nil, &core.ValidationError{Field: "conversation_id", Message: "is required"}
	}

	var lastErr error
	for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
		conv, err := c.fetchConversation(ctx, id)
		if err == nil {
			return conv, nil
		}
		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.Retryable() {
			return nil, err
		}

		c.logger.Warn("Conversation fetch failed",
			"conversation_id", id,
			"attempt", attempt,
			"error", err.Error(),
		)

		if attempt == c.config.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.config.RetryDelay):
		}
	}

	return nil, fmt.Errorf("fetch conversation failed after %d attempts: %w", c.config.MaxRetries, lastErr)
}

// fetchConversation makes a single HTTP call.
func (c *Client) fetchConversation(ctx context.Context, id string) (*Conversation, error) {
	endpoint := c.config.BaseURL + "/conversations/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	duration := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Error("Conversation API request failed",
			"error", err.Error(),
			"duration", duration,
		)
		return nil, NewNetworkError(err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("Failed to close response body", "error", err)
		}
	}()

	c.logger.Debug("Conversation API request completed",
		"status_code", resp.StatusCode,
		"duration", duration,
	)

	if resp.StatusCode != http.StatusOK {
		var errBody bytes.Buffer
		if _, err := errBody.ReadFrom(resp.Body); err != nil {
			c.logger.Warn("Failed to read error response body", "error", err)
			return nil, NewStatusError(resp.StatusCode, fmt.Sprintf("status %d (failed to read error body)", resp.StatusCode))
		}
		return nil, NewStatusError(resp.StatusCode, strings.TrimSpace(errBody.String()))
	}

	var body conversationResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, NewParseError(err)
	}

	if body.Error != nil {
		return nil, NewStatusError(resp.StatusCode, body.Error.Message)
	}

	return body.toConversation(id)
}

func (r *conversationResponse) toConversation(requested string) (*Conversation, error) {
	conv := &Conversation{
		ID:       r.ID,
		Title:    r.Title,
		Messages: make([]schema.DisplayMessage, 0, len(r.Messages)),
	}
	if conv.ID == "" {
		conv.ID = requested
	}

	for i, m := range r.Messages {
		msg := schema.DisplayMessage{
			ID:        m.ID,
			Role:      schema.Role(m.Role),
			Content:   m.Content,
			ServerID:  m.ID,
			ToolCalls: m.ToolCalls,
			CreatedAt: m.CreatedAt,
		}
		if msg.ID == "" {
			msg.ID = fmt.Sprintf("%s-%d", conv.ID, i+1)
		}
		// Confirmed history only holds finished tool calls.
		for j := range msg.ToolCalls {
			if msg.ToolCalls[j].Status == "" {
				msg.ToolCalls[j].Status = schema.ToolCallComplete
			}
		}
		if err := schema.ValidateMessage(&msg); err != nil {
			return nil, NewParseError(fmt.Errorf("message %d: %w", i, err))
		}
		conv.Messages = append(conv.Messages, msg)
	}

	return conv, nil
}
