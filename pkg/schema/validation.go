package schema

import (
	"fmt"
	"strings"
)

// ValidateOutbound validates a request frame before it is sent.
func ValidateOutbound(f *OutboundFrame) error {
	if f.ID == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(f.Message) == "" {
		return fmt.Errorf("message must not be empty")
	}
	if len(f.Message) > MessageContentMax {
		return fmt.Errorf("message must be at most %d bytes", MessageContentMax)
	}
	return nil
}

// ValidateInbound checks that a frame of a known type carries the fields
// its handler depends on. Unknown types pass; they are ignored downstream.
func ValidateInbound(f *InboundFrame) error {
	switch f.Type {
	case FrameToolCall:
		if f.ToolName == "" {
			return fmt.Errorf("tool_call frame requires tool_name")
		}
		if len(f.ToolName) > ToolNameMax {
			return fmt.Errorf("tool_name must be at most %d characters", ToolNameMax)
		}
	case FrameToolResult:
		if f.ToolName == "" && f.ToolCallID == "" {
			return fmt.Errorf("tool_result frame requires tool_name or tool_call_id")
		}
	case FrameModificationProposal:
		if f.Proposal == nil {
			return fmt.Errorf("modification_proposal frame requires proposal")
		}
	case FrameResearchRequest:
		if f.ResearchRequest == nil {
			return fmt.Errorf("research_request frame requires research_request")
		}
		if strings.TrimSpace(f.ResearchRequest.Query) == "" {
			return fmt.Errorf("research_request requires a query")
		}
	}
	return nil
}

// ValidateMessage validates a message before it is persisted.
func ValidateMessage(m *DisplayMessage) error {
	if m.ID == "" {
		return fmt.Errorf("message id is required")
	}

	switch m.Role {
	case RoleUser, RoleAssistant:
		// Valid
	default:
		return fmt.Errorf("invalid role: %s", m.Role)
	}

	for _, tc := range m.ToolCalls {
		switch tc.Status {
		case ToolCallPending, ToolCallComplete:
			// Valid
		default:
			return fmt.Errorf("tool call %s: invalid status: %s", tc.ID, tc.Status)
		}
	}

	return nil
}
