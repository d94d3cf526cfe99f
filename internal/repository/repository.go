package repository

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"streamchat/internal/core"
	"streamchat/pkg/schema"
)

const (
	conversationsDir = "conversations"
	transcriptFile   = "transcript.yaml"
)

// transcriptDoc is the on-disk layout of a transcript.
type transcriptDoc struct {
	ConversationID string        `yaml:"conversation_id"`
	Events         []eventRecord `yaml:"events"`
}

// TranscriptStore persists conversation transcripts as YAML event logs
// under <dataDir>/conversations/<id>/transcript.yaml.
type TranscriptStore struct {
	baseDir string
	logger  core.Logger
}

// NewTranscriptStore creates a store rooted at baseDir.
func NewTranscriptStore(baseDir string, logger core.Logger) *TranscriptStore {
	if logger == nil {
		logger = core.NewNopLogger()
	}
	return &TranscriptStore{baseDir: baseDir, logger: logger}
}

// BaseDir returns the data directory.
func (r *TranscriptStore) BaseDir() string {
	return r.baseDir
}

// NewLock returns the cross-process lock guarding this store.
func (r *TranscriptStore) NewLock(owner string) *FileLock {
	return NewFileLock(LockPath(r.baseDir), owner, r.logger)
}

// ReadTranscript replays the stored events of a conversation. A
// conversation that was never written has an empty transcript.
func (r *TranscriptStore) ReadTranscript(conversationID string) ([]schema.DisplayMessage, error) {
	rel, err := transcriptPath(conversationID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(r.baseDir, rel))
	if err != nil {
		if os.IsNotExist(err) {
			return []schema.DisplayMessage{}, nil
		}
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	var doc transcriptDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse transcript: %w", err)
	}

	messages, err := replayRecords(doc.Events)
	if err != nil {
		return nil, fmt.Errorf("replay transcript %s: %w", conversationID, err)
	}

	return messages, nil
}

// Append adds events to a conversation's transcript in one transaction.
// Events that would not replay cleanly are rejected and nothing is written.
func (r *TranscriptStore) Append(conversationID string, events []schema.TranscriptEvent) error {
	if len(events) == 0 {
		return nil
	}

	rel, err := transcriptPath(conversationID)
	if err != nil {
		return err
	}

	tx := NewCopyOnWriteTx(r.baseDir)
	if err := tx.Begin(); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := r.appendInTx(tx, rel, conversationID, events); err != nil {
		r.rollback(tx)
		return err
	}

	if err := tx.Commit(); err != nil {
		r.rollback(tx)
		return fmt.Errorf("commit transaction: %w", err)
	}

	r.logger.Debug("Transcript updated",
		"conversation_id", conversationID,
		"events", len(events),
	)
	return nil
}

func (r *TranscriptStore) appendInTx(tx *CopyOnWriteTx, rel, conversationID string, events []schema.TranscriptEvent) error {
	doc := transcriptDoc{ConversationID: conversationID}

	data, err := tx.ReadFile(rel)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read transcript: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse transcript: %w", err)
		}
	}

	for _, event := range events {
		rec, err := eventToRecord(event)
		if err != nil {
			return err
		}
		doc.Events = append(doc.Events, rec)
	}

	if _, err := replayRecords(doc.Events); err != nil {
		return fmt.Errorf("validate transcript: %w", err)
	}

	data, err = yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}

	if err := tx.WriteFile(rel, data); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

func (r *TranscriptStore) rollback(tx *CopyOnWriteTx) {
	if err := tx.Rollback(); err != nil {
		r.logger.Warn("Rollback failed", "error", err)
	}
}

// ListConversations returns the ids of all stored conversations, sorted.
func (r *TranscriptStore) ListConversations() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(r.baseDir, conversationsDir))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	ids := []string{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(r.baseDir, conversationsDir, entry.Name(), transcriptFile)
		if _, err := os.Stat(path); err == nil {
			ids = append(ids, entry.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func transcriptPath(conversationID string) (string, error) {
	if conversationID == "" || conversationID == "." || conversationID == ".." ||
		strings.ContainsAny(conversationID, `/\`) {
		return "", &core.ValidationError{
			Field:   "conversation_id",
			Message: fmt.Sprintf("invalid conversation id %q", conversationID),
		}
	}
	return filepath.Join(conversationsDir, conversationID, transcriptFile), nil
}
