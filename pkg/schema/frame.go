package schema

import (
	"encoding/json"
	"fmt"
)

// OutboundFrame is the request sent to the server for one user turn.
type OutboundFrame struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// InboundFrame is one event received from the server. It covers both the
// chat and the conversation variants of the protocol; only the fields
// relevant to Type are populated.
type InboundFrame struct {
	Type            FrameType             `json:"type"`
	MessageID       string                `json:"message_id,omitempty"`
	ConversationID  string                `json:"conversation_id,omitempty"`
	Content         string                `json:"content,omitempty"`
	ToolName        string                `json:"tool_name,omitempty"`
	ToolArgs        map[string]any        `json:"tool_args,omitempty"`
	ToolResult      any                   `json:"tool_result,omitempty"`
	ToolCallID      string                `json:"tool_call_id,omitempty"`
	Error           string                `json:"error,omitempty"`
	Proposal        *ModificationProposal `json:"proposal,omitempty"`
	ResearchRequest *ResearchRequest      `json:"research_request,omitempty"`
}

// DecodeInbound parses a raw frame.
func DecodeInbound(data []byte) (*InboundFrame, error) {
	var frame InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if frame.Type == "" {
		return nil, fmt.Errorf("decode frame: missing type")
	}
	return &frame, nil
}

// EncodeOutbound serializes a request frame.
func EncodeOutbound(frame OutboundFrame) ([]byte, error) {
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}

// IsTerminal reports whether the frame ends the current turn.
func (f *InboundFrame) IsTerminal() bool {
	return f.Type == FrameDone || f.Type == FrameError
}

// ErrorText returns the server's error message, or a generic one if empty.
func (f *InboundFrame) ErrorText() string {
	if f.Error != "" {
		return f.Error
	}
	if f.Content != "" {
		return f.Content
	}
	return DefaultErrorMessage
}
