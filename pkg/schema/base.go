package schema

// Role identifies who authored a display message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ToolCallStatus tracks whether a tool call has received its result.
type ToolCallStatus string

const (
	ToolCallPending  ToolCallStatus = "pending"
	ToolCallComplete ToolCallStatus = "complete"
)

// FrameType is the discriminator of an inbound frame.
type FrameType string

const (
	// Shared by both server variants.
	FrameAck   FrameType = "ack"
	FrameDone  FrameType = "done"
	FrameError FrameType = "error"

	// Chat variant.
	FrameText       FrameType = "text"
	FrameToolCall   FrameType = "tool_call"
	FrameToolResult FrameType = "tool_result"

	// Conversation variant.
	FrameAssistantChunk       FrameType = "assistant_chunk"
	FrameModificationProposal FrameType = "modification_proposal"
	FrameResearchRequest      FrameType = "research_request"
)

// CloseNormal is the WebSocket close code for an intentional shutdown.
const CloseNormal = 1000

// Limits applied when validating frames and outbound messages.
const (
	MessageContentMax   = 32 * 1024
	ToolNameMax         = 128
	DefaultErrorMessage = "the server reported an error"
)
