package chat

import "streamchat/pkg/schema"

// ChangeKind identifies what a Change describes.
type ChangeKind int

const (
	ChangeMessageAppended ChangeKind = iota
	ChangeMessageRemoved
	ChangeContentAppended
	ChangePayloadAttached
	ChangeToolCallUpdated
	ChangeTurnDone
	ChangeTurnFailed
	ChangeStateChanged
	ChangeErrorChanged
	ChangeHistoryCleared
	ChangeHistoryReplaced
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeMessageAppended:
		return "message_appended"
	case ChangeMessageRemoved:
		return "message_removed"
	case ChangeContentAppended:
		return "content_appended"
	case ChangePayloadAttached:
		return "payload_attached"
	case ChangeToolCallUpdated:
		return "tool_call_updated"
	case ChangeTurnDone:
		return "turn_done"
	case ChangeTurnFailed:
		return "turn_failed"
	case ChangeStateChanged:
		return "state_changed"
	case ChangeErrorChanged:
		return "error_changed"
	case ChangeHistoryCleared:
		return "history_cleared"
	case ChangeHistoryReplaced:
		return "history_replaced"
	default:
		return "unknown"
	}
}

// Change is a notification about a session mutation. Message is a copy and
// may be retained by the receiver.
type Change struct {
	Kind     ChangeKind
	Message  schema.DisplayMessage
	Delta    string           // ChangeContentAppended
	ToolCall *schema.ToolCall // ChangeToolCallUpdated
	Payload  schema.FrameType // ChangePayloadAttached
	State    ConnState        // ChangeStateChanged
	Err      error            // ChangeErrorChanged (nil when cleared), ChangeTurnFailed
}

// Listener receives changes. Listeners run on the goroutine that caused the
// change and must not block for long.
type Listener func(Change)

// Invalidator drops cached server-side state for a conversation so it is
// fetched again. Sessions call it when a turn completes.
type Invalidator interface {
	Invalidate(conversationID string)
}
