package repository

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"streamchat/pkg/schema"
)

// ReplayEvents folds transcript events into the message list they describe.
// Events are applied in timestamp order; events with equal timestamps keep
// their log order.
func ReplayEvents(events []schema.TranscriptEvent) ([]schema.DisplayMessage, error) {
	sorted := slices.Clone(events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp().Before(sorted[j].Timestamp())
	})

	messages := []schema.DisplayMessage{}
	for _, event := range sorted {
		var err error
		messages, err = applyEvent(messages, event)
		if err != nil {
			return nil, fmt.Errorf("apply event %s: %w", event.EventID(), err)
		}
	}

	return messages, nil
}

func applyEvent(messages []schema.DisplayMessage, event schema.TranscriptEvent) ([]schema.DisplayMessage, error) {
	switch e := event.(type) {
	case *schema.MessageRecorded:
		return applyMessageRecorded(messages, e)
	case *schema.MessageDeleted:
		return applyMessageDeleted(messages, e)
	case *schema.HistoryCleared:
		return []schema.DisplayMessage{}, nil
	default:
		return nil, fmt.Errorf("unknown event type: %T", event)
	}
}

func applyMessageRecorded(messages []schema.DisplayMessage, event *schema.MessageRecorded) ([]schema.DisplayMessage, error) {
	if err := schema.ValidateMessage(&event.Message); err != nil {
		return nil, err
	}

	if indexOf(messages, event.Message.ID) >= 0 {
		return nil, fmt.Errorf("message %s already exists", event.Message.ID)
	}

	msg := event.Message.Clone()
	msg.Streaming = false
	return append(messages, msg), nil
}

func applyMessageDeleted(messages []schema.DisplayMessage, event *schema.MessageDeleted) ([]schema.DisplayMessage, error) {
	idx := indexOf(messages, event.MessageID)
	if idx < 0 {
		return nil, fmt.Errorf("message %s not found", event.MessageID)
	}
	return slices.Delete(messages, idx, idx+1), nil
}

func indexOf(messages []schema.DisplayMessage, id string) int {
	return slices.IndexFunc(messages, func(m schema.DisplayMessage) bool {
		return m.ID == id
	})
}

// eventRecord is the YAML form of a transcript event.
type eventRecord struct {
	EventType string                 `yaml:"event_type"`
	EventID   string                 `yaml:"event_id"`
	Timestamp time.Time              `yaml:"timestamp"`
	Message   *schema.DisplayMessage `yaml:"message,omitempty"`
	MessageID string                 `yaml:"message_id,omitempty"`
}

func eventToRecord(event schema.TranscriptEvent) (eventRecord, error) {
	rec := eventRecord{
		EventType: event.EventType(),
		EventID:   event.EventID(),
		Timestamp: event.Timestamp(),
	}

	switch e := event.(type) {
	case *schema.MessageRecorded:
		msg := e.Message.Clone()
		rec.Message = &msg
	case *schema.MessageDeleted:
		rec.MessageID = e.MessageID
	case *schema.HistoryCleared:
	default:
		return eventRecord{}, fmt.Errorf("unknown event type: %T", event)
	}

	return rec, nil
}

func recordToEvent(rec eventRecord) (schema.TranscriptEvent, error) {
	switch rec.EventType {
	case "MessageRecorded":
		if rec.Message == nil {
			return nil, fmt.Errorf("event %s: missing message", rec.EventID)
		}
		return &schema.MessageRecorded{
			EventID_:   rec.EventID,
			Message:    *rec.Message,
			Timestamp_: rec.Timestamp,
		}, nil

	case "MessageDeleted":
		if rec.MessageID == "" {
			return nil, fmt.Errorf("event %s: missing message_id", rec.EventID)
		}
		return &schema.MessageDeleted{
			EventID_:   rec.EventID,
			MessageID:  rec.MessageID,
			Timestamp_: rec.Timestamp,
		}, nil

	case "HistoryCleared":
		return &schema.HistoryCleared{
			EventID_:   rec.EventID,
			Timestamp_: rec.Timestamp,
		}, nil

	default:
		return nil, fmt.Errorf("unknown event type: %s", rec.EventType)
	}
}

// replayRecords converts raw records read from disk to typed events and
// replays them.
func replayRecords(records []eventRecord) ([]schema.DisplayMessage, error) {
	events := make([]schema.TranscriptEvent, 0, len(records))
	for _, rec := range records {
		event, err := recordToEvent(rec)
		if err != nil {
			return nil, fmt.Errorf("convert event record: %w", err)
		}
		events = append(events, event)
	}
	return ReplayEvents(events)
}
