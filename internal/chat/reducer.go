package chat

import (
	"streamchat/internal/core"
	"streamchat/pkg/schema"
)

// frameHandler folds one frame into the message currently streaming.
// It runs with s.mu held and returns the changes to emit.
type frameHandler func(s *Session, msg *schema.DisplayMessage, f *schema.InboundFrame) []Change

var frameHandlers = map[schema.FrameType]frameHandler{
	schema.FrameText:                 applyText,
	schema.FrameAssistantChunk:       applyText,
	schema.FrameToolCall:             applyToolCall,
	schema.FrameToolResult:           applyToolResult,
	schema.FrameModificationProposal: applyProposal,
	schema.FrameResearchRequest:      applyResearchRequest,
	schema.FrameDone:                 applyDone,
	schema.FrameError:                applyError,
}

// applyFrameLocked routes a frame to its handler. Frames that arrive while
// no turn is in progress only affect the session error.
func (s *Session) applyFrameLocked(f *schema.InboundFrame) []Change {
	handler, ok := frameHandlers[f.Type]
	if !ok {
		s.logger.Debug("Ignoring frame", "type", string(f.Type))
		return nil
	}

	msg := s.currentLocked()
	if msg == nil {
		if f.Type == schema.FrameError {
			return []Change{s.setErrLocked(&core.ServerError{MessageID: f.MessageID, Message: f.ErrorText()})}
		}
		s.logger.Debug("Dropping frame outside of a turn", "type", string(f.Type))
		return nil
	}

	if msg.ServerID == "" && f.MessageID != "" {
		msg.ServerID = f.MessageID
	}
	return handler(s, msg, f)
}

func applyText(_ *Session, msg *schema.DisplayMessage, f *schema.InboundFrame) []Change {
	if f.Content == "" {
		return nil
	}
	msg.Content += f.Content
	return []Change{{Kind: ChangeContentAppended, Message: msg.Clone(), Delta: f.Content}}
}

func applyToolCall(s *Session, msg *schema.DisplayMessage, f *schema.InboundFrame) []Change {
	id := f.ToolCallID
	if id == "" {
		generated, err := schema.NewToolCallID()
		if err != nil {
			s.logger.Warn("Failed to generate tool call id", "error", err)
		}
		id = generated
	}

	tc := schema.ToolCall{
		ID:     id,
		Name:   f.ToolName,
		Args:   f.ToolArgs,
		Status: schema.ToolCallPending,
	}
	msg.ToolCalls = append(msg.ToolCalls, tc)

	updated := tc.Clone()
	return []Change{{Kind: ChangeToolCallUpdated, Message: msg.Clone(), ToolCall: &updated}}
}

// applyToolResult completes the matching pending call. A correlation id is
// preferred; without one the oldest pending call with the same name wins.
func applyToolResult(s *Session, msg *schema.DisplayMessage, f *schema.InboundFrame) []Change {
	idx := -1
	if f.ToolCallID != "" {
		for i := range msg.ToolCalls {
			if msg.ToolCalls[i].ID == f.ToolCallID && msg.ToolCalls[i].Status == schema.ToolCallPending {
				idx = i
				break
			}
		}
	}
	if idx < 0 && f.ToolName != "" {
		for i := range msg.ToolCalls {
			if msg.ToolCalls[i].Name == f.ToolName && msg.ToolCalls[i].Status == schema.ToolCallPending {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		s.logger.Warn("Tool result without a pending call",
			"tool_name", f.ToolName,
			"tool_call_id", f.ToolCallID,
		)
		return nil
	}

	tc := &msg.ToolCalls[idx]
	tc.Result = f.ToolResult
	tc.Status = schema.ToolCallComplete

	updated := tc.Clone()
	return []Change{{Kind: ChangeToolCallUpdated, Message: msg.Clone(), ToolCall: &updated}}
}

func applyProposal(s *Session, msg *schema.DisplayMessage, f *schema.InboundFrame) []Change {
	if msg.Proposal != nil {
		s.logger.Debug("Ignoring repeated proposal", "message_id", msg.ID)
		return nil
	}
	p := *f.Proposal
	msg.Proposal = &p
	return []Change{{Kind: ChangePayloadAttached, Message: msg.Clone(), Payload: f.Type}}
}

func applyResearchRequest(s *Session, msg *schema.DisplayMessage, f *schema.InboundFrame) []Change {
	if msg.ResearchRequest != nil {
		s.logger.Debug("Ignoring repeated research request", "message_id", msg.ID)
		return nil
	}
	r := *f.ResearchRequest
	msg.ResearchRequest = &r
	return []Change{{Kind: ChangePayloadAttached, Message: msg.Clone(), Payload: f.Type}}
}

func applyDone(s *Session, msg *schema.DisplayMessage, _ *schema.InboundFrame) []Change {
	msg.Streaming = false
	s.currentID = ""
	s.loading = false
	return []Change{{Kind: ChangeTurnDone, Message: msg.Clone()}}
}

// applyError ends the turn. Content received so far is kept.
func applyError(s *Session, msg *schema.DisplayMessage, f *schema.InboundFrame) []Change {
	msg.Streaming = false
	s.currentID = ""
	s.loading = false

	err := &core.ServerError{MessageID: f.MessageID, Message: f.ErrorText()}
	return []Change{
		s.setErrLocked(err),
		{Kind: ChangeTurnFailed, Message: msg.Clone(), Err: err},
	}
}
