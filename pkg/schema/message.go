package schema

import "time"

// DisplayMessage is one entry of a conversation as shown to the user.
// Content only grows while Streaming is true and is frozen afterwards.
type DisplayMessage struct {
	ID              string                `json:"id" yaml:"id"`
	Role            Role                  `json:"role" yaml:"role"`
	Content         string                `json:"content" yaml:"content"`
	Streaming       bool                  `json:"streaming,omitempty" yaml:"streaming,omitempty"`
	ServerID        string                `json:"server_id,omitempty" yaml:"server_id,omitempty"`
	ToolCalls       []ToolCall            `json:"tool_calls,omitempty" yaml:"tool_calls,omitempty"`
	Proposal        *ModificationProposal `json:"proposal,omitempty" yaml:"proposal,omitempty"`
	ResearchRequest *ResearchRequest      `json:"research_request,omitempty" yaml:"research_request,omitempty"`
	CreatedAt       time.Time             `json:"created_at" yaml:"created_at"`
}

// ToolCall is a tool invocation reported by the server during a turn.
type ToolCall struct {
	ID     string         `json:"id" yaml:"id"`
	Name   string         `json:"name" yaml:"name"`
	Args   map[string]any `json:"args,omitempty" yaml:"args,omitempty"`
	Result any            `json:"result,omitempty" yaml:"result,omitempty"`
	Status ToolCallStatus `json:"status" yaml:"status"`
}

// ModificationProposal is a set of changes the assistant suggests applying.
type ModificationProposal struct {
	Summary   string           `json:"summary" yaml:"summary"`
	Changes   []ProposedChange `json:"changes,omitempty" yaml:"changes,omitempty"`
	Rationale string           `json:"rationale,omitempty" yaml:"rationale,omitempty"`
}

// ProposedChange is a single before/after edit within a proposal.
type ProposedChange struct {
	Target string `json:"target" yaml:"target"`
	Before string `json:"before,omitempty" yaml:"before,omitempty"`
	After  string `json:"after" yaml:"after"`
}

// ResearchRequest asks the user to approve further research.
type ResearchRequest struct {
	Query   string   `json:"query" yaml:"query"`
	Reason  string   `json:"reason,omitempty" yaml:"reason,omitempty"`
	Sources []string `json:"sources,omitempty" yaml:"sources,omitempty"`
}

// NewUserMessage creates a finalized user message.
func NewUserMessage(id, content string) DisplayMessage {
	return DisplayMessage{
		ID:        id,
		Role:      RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewAssistantPlaceholder creates an empty assistant message that is still streaming.
func NewAssistantPlaceholder(id string) DisplayMessage {
	return DisplayMessage{
		ID:        id,
		Role:      RoleAssistant,
		Streaming: true,
		CreatedAt: time.Now(),
	}
}

// PendingToolCalls returns the number of tool calls still waiting for a result.
func (m *DisplayMessage) PendingToolCalls() int {
	n := 0
	for _, tc := range m.ToolCalls {
		if tc.Status == ToolCallPending {
			n++
		}
	}
	return n
}

// Clone creates a deep copy of the message.
func (m DisplayMessage) Clone() DisplayMessage {
	clone := m

	if m.ToolCalls != nil {
		clone.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			clone.ToolCalls[i] = tc.Clone()
		}
	}

	if m.Proposal != nil {
		p := *m.Proposal
		p.Changes = append([]ProposedChange(nil), m.Proposal.Changes...)
		clone.Proposal = &p
	}

	if m.ResearchRequest != nil {
		r := *m.ResearchRequest
		r.Sources = append([]string(nil), m.ResearchRequest.Sources...)
		clone.ResearchRequest = &r
	}

	return clone
}

// Clone copies the tool call. Args is copied one level deep; Result is
// treated as immutable once set.
func (tc ToolCall) Clone() ToolCall {
	clone := tc
	if tc.Args != nil {
		clone.Args = make(map[string]any, len(tc.Args))
		for k, v := range tc.Args {
			clone.Args[k] = v
		}
	}
	return clone
}

// CloneMessages deep-copies a slice of messages.
func CloneMessages(msgs []DisplayMessage) []DisplayMessage {
	out := make([]DisplayMessage, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
