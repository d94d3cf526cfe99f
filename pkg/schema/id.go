package schema

import (
	"fmt"
	"sync/atomic"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// NewConversationID generates a conversation ID in format CNV-{nanoid(12)}.
func NewConversationID() (string, error) {
	id, err := gonanoid.New(12)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CNV-%s", id), nil
}

// NewToolCallID generates a tool call correlation ID in format TC-{nanoid(10)}.
func NewToolCallID() (string, error) {
	id, err := gonanoid.New(10)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("TC-%s", id), nil
}

// NewEventID generates a new event ID in format EVT-{nanoid(10)}.
func NewEventID() (string, error) {
	id, err := gonanoid.New(10)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("EVT-%s", id), nil
}

// IDGenerator hands out monotonically increasing local message IDs.
// IDs have the form MSG-{prefix}-{n}; the prefix keeps IDs from separate
// sessions apart when their transcripts are merged.
type IDGenerator struct {
	prefix string
	next   atomic.Uint64
}

// NewIDGenerator creates a generator with a random nanoid prefix.
func NewIDGenerator() (*IDGenerator, error) {
	prefix, err := gonanoid.New(8)
	if err != nil {
		return nil, err
	}
	return &IDGenerator{prefix: prefix}, nil
}

// NewMessageID returns the next local message ID.
func (g *IDGenerator) NewMessageID() string {
	n := g.next.Add(1)
	return fmt.Sprintf("MSG-%s-%d", g.prefix, n)
}
