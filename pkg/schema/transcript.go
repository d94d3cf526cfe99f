package schema

import "time"

// TranscriptEvent is the interface for all transcript event types.
type TranscriptEvent interface {
	EventType() string
	EventID() string
	Timestamp() time.Time
}

// MessageRecorded records a finalized message.
type MessageRecorded struct {
	EventID_   string         `json:"event_id" yaml:"event_id"`
	Message    DisplayMessage `json:"message" yaml:"message"`
	Timestamp_ time.Time      `json:"timestamp" yaml:"timestamp"`
}

func (e *MessageRecorded) EventType() string    { return "MessageRecorded" }
func (e *MessageRecorded) EventID() string      { return e.EventID_ }
func (e *MessageRecorded) Timestamp() time.Time { return e.Timestamp_ }

// MessageDeleted records an explicit deletion by the user.
type MessageDeleted struct {
	EventID_   string    `json:"event_id" yaml:"event_id"`
	MessageID  string    `json:"message_id" yaml:"message_id"`
	Timestamp_ time.Time `json:"timestamp" yaml:"timestamp"`
}

func (e *MessageDeleted) EventType() string    { return "MessageDeleted" }
func (e *MessageDeleted) EventID() string      { return e.EventID_ }
func (e *MessageDeleted) Timestamp() time.Time { return e.Timestamp_ }

// HistoryCleared records a full history clear.
type HistoryCleared struct {
	EventID_   string    `json:"event_id" yaml:"event_id"`
	Timestamp_ time.Time `json:"timestamp" yaml:"timestamp"`
}

func (e *HistoryCleared) EventType() string    { return "HistoryCleared" }
func (e *HistoryCleared) EventID() string      { return e.EventID_ }
func (e *HistoryCleared) Timestamp() time.Time { return e.Timestamp_ }

// Transcript is the on-disk event log of one conversation.
type Transcript struct {
	ConversationID string            `json:"conversation_id" yaml:"conversation_id"`
	Events         []TranscriptEvent `json:"events" yaml:"events"`
}

// NewMessageRecorded builds a MessageRecorded event with a fresh ID.
func NewMessageRecorded(msg DisplayMessage) (*MessageRecorded, error) {
	id, err := NewEventID()
	if err != nil {
		return nil, err
	}
	return &MessageRecorded{EventID_: id, Message: msg.Clone(), Timestamp_: time.Now()}, nil
}

// NewMessageDeleted builds a MessageDeleted event with a fresh ID.
func NewMessageDeleted(messageID string) (*MessageDeleted, error) {
	id, err := NewEventID()
	if err != nil {
		return nil, err
	}
	return &MessageDeleted{EventID_: id, MessageID: messageID, Timestamp_: time.Now()}, nil
}

// NewHistoryCleared builds a HistoryCleared event with a fresh ID.
func NewHistoryCleared() (*HistoryCleared, error) {
	id, err := NewEventID()
	if err != nil {
		return nil, err
	}
	return &HistoryCleared{EventID_: id, Timestamp_: time.Now()}, nil
}
