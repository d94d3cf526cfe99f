package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"streamchat/internal/api"
	"streamchat/internal/chat"
	"streamchat/internal/core"
	"streamchat/internal/repository"
	"streamchat/pkg/schema"
)

var errQuit = errors.New("quit")

// Session runs an interactive chat on a reader/writer pair: lines from In
// are sent as messages or handled as slash commands, and the streamed reply
// is written to Out as it arrives. Finished turns are persisted.
type Session struct {
	Chat  *chat.Session
	Store *repository.TranscriptStore
	Lock  *repository.FileLock

	// Cache is optional. When set it is invalidated after every turn and
	// the refreshed server copy is reported by /status.
	Cache *api.ConversationCache

	In     io.Reader
	Out    io.Writer
	Logger core.Logger

	outMu sync.Mutex

	turnEnded chan struct{}
	refreshed chan *api.Conversation

	stateMu     sync.Mutex
	persisted   map[string]bool
	remoteTitle string
	remoteCount int
	remoteSeen  bool
}

// NewSession creates a CLI session. The chat session's lock is taken from
// the store.
func NewSession(chatSession *chat.Session, store *repository.TranscriptStore, in io.Reader, out io.Writer, logger core.Logger) *Session {
	if logger == nil {
		logger = core.NewNopLogger()
	}
	return &Session{
		Chat:      chatSession,
		Store:     store,
		Lock:      store.NewLock("chat"),
		In:        in,
		Out:       out,
		Logger:    logger,
		turnEnded: make(chan struct{}, 1),
		refreshed: make(chan *api.Conversation, 1),
		persisted: make(map[string]bool),
	}
}

// Run executes the interactive loop until input ends, /quit is entered, or
// ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	s.printf("🔒 Acquiring lock...\n")
	if err := s.Lock.Acquire(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		if err := s.Lock.Release(); err != nil {
			s.Logger.Warn("Failed to release lock", "error", err)
		}
	}()

	conversationID := s.Chat.ConversationID()
	history, err := s.Store.ReadTranscript(conversationID)
	if err != nil {
		return fmt.Errorf("load transcript: %w", err)
	}
	s.Chat.Reconcile(history)
	for _, m := range history {
		s.persisted[m.ID] = true
	}

	s.Chat.OnChange(s.render)
	if s.Cache != nil {
		s.Cache.OnRefresh(s.onRefresh)
	}

	s.printf("💬 Conversation %s (%d messages). Type /help for commands.\n", conversationID, len(history))
	if len(history) > 0 {
		s.withOut(func(w io.Writer) { PrintHistory(w, history) })
	}

	if err := s.Chat.Connect(ctx); err != nil {
		s.printf("⚠️  %v (will retry on send)\n", err)
	}

	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go readLines(s.In, lines, done)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.loop(gctx, lines)
	})
	g.Go(func() error {
		return s.watchRefreshes(gctx)
	})

	err = g.Wait()
	if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
		err = nil
	}

	// Disconnect finalizes an interrupted reply so its partial content is
	// persisted with the rest.
	s.Chat.Disconnect()
	s.persistNew()
	s.printf("👋 Bye\n")
	return err
}

// loop handles one input line at a time. A message blocks further input
// until its reply has finished.
func (s *Session) loop(ctx context.Context, lines <-chan string) error {
	for {
		s.printf("> ")

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok = <-lines:
			if !ok {
				return errQuit
			}
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if err := s.command(ctx, line); err != nil {
				return err
			}
			continue
		}

		if err := s.send(ctx, line); err != nil {
			return err
		}
	}
}

func (s *Session) send(ctx context.Context, text string) error {
	// Drop any stale signal from a previous turn.
	select {
	case <-s.turnEnded:
	default:
	}

	if err := s.Chat.SendMessage(ctx, text); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A rolled back turn has already been reported by render.
		select {
		case <-s.turnEnded:
		default:
			s.printf("⚠️  %v\n", err)
		}
		s.persistNew()
		return nil
	}

	select {
	case <-s.turnEnded:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.persistNew()
	return nil
}

func (s *Session) command(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return errQuit

	case "/help":
		s.printf("Commands: /status /history /delete <id> /clear /reconnect /quit\n")

	case "/status":
		s.printStatus()

	case "/history":
		msgs := s.Chat.Messages()
		s.withOut(func(w io.Writer) { PrintHistory(w, msgs) })

	case "/delete":
		if len(fields) != 2 {
			s.printf("usage: /delete <message-id>\n")
			return nil
		}
		s.deleteMessage(fields[1])

	case "/clear":
		s.clearHistory()

	case "/reconnect":
		s.Chat.Disconnect()
		if err := s.Chat.Connect(ctx); err != nil {
			s.printf("⚠️  %v\n", err)
		}

	default:
		s.printf("unknown command %s, try /help\n", fields[0])
	}
	return nil
}

func (s *Session) deleteMessage(id string) {
	if err := s.Chat.DeleteMessage(id); err != nil {
		s.printf("⚠️  %v\n", err)
		return
	}

	s.stateMu.Lock()
	wasPersisted := s.persisted[id]
	delete(s.persisted, id)
	s.stateMu.Unlock()

	if wasPersisted {
		ev, err := schema.NewMessageDeleted(id)
		if err == nil {
			err = s.Store.Append(s.Chat.ConversationID(), []schema.TranscriptEvent{ev})
		}
		if err != nil {
			s.printf("⚠️  failed to persist deletion: %v\n", err)
			return
		}
	}
	s.printf("🗑  deleted %s\n", id)
}

func (s *Session) clearHistory() {
	s.Chat.ClearHistory()

	s.stateMu.Lock()
	s.persisted = make(map[string]bool)
	s.stateMu.Unlock()

	ev, err := schema.NewHistoryCleared()
	if err == nil {
		err = s.Store.Append(s.Chat.ConversationID(), []schema.TranscriptEvent{ev})
	}
	if err != nil {
		s.printf("⚠️  failed to persist clear: %v\n", err)
		return
	}
	s.printf("🧹 history cleared\n")
}

// persistNew records every finished message that is not in the transcript
// yet.
func (s *Session) persistNew() {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	var events []schema.TranscriptEvent
	var ids []string
	for _, m := range s.Chat.Messages() {
		if m.Streaming || s.persisted[m.ID] {
			continue
		}
		ev, err := schema.NewMessageRecorded(m)
		if err != nil {
			s.Logger.Error("Failed to build transcript event", "error", err)
			return
		}
		events = append(events, ev)
		ids = append(ids, m.ID)
	}
	if len(events) == 0 {
		return
	}

	if err := s.Store.Append(s.Chat.ConversationID(), events); err != nil {
		s.Logger.Error("Failed to persist transcript",
			"conversation_id", s.Chat.ConversationID(),
			"error", err,
		)
		return
	}
	for _, id := range ids {
		s.persisted[id] = true
	}
}

func (s *Session) printStatus() {
	snap := s.Chat.Snapshot()

	s.stateMu.Lock()
	title, count, seen := s.remoteTitle, s.remoteCount, s.remoteSeen
	s.stateMu.Unlock()

	s.withOut(func(w io.Writer) {
		fmt.Fprintf(w, "conversation: %s\n", snap.ConversationID)
		fmt.Fprintf(w, "connection:   %s\n", snap.State)
		fmt.Fprintf(w, "messages:     %d\n", len(snap.Messages))
		if snap.ReconnectAttempts > 0 {
			fmt.Fprintf(w, "reconnects:   %d\n", snap.ReconnectAttempts)
		}
		if snap.Error != "" {
			fmt.Fprintf(w, "last error:   %s\n", snap.Error)
		}
		if seen {
			fmt.Fprintf(w, "server copy:  %q, %d messages\n", title, count)
		}
	})
}

// render writes streaming output. It runs on the session's read loop.
func (s *Session) render(c chat.Change) {
	switch c.Kind {
	case chat.ChangeContentAppended:
		s.printf("%s", c.Delta)

	case chat.ChangeToolCallUpdated:
		s.withOut(func(w io.Writer) { printToolCall(w, *c.ToolCall) })

	case chat.ChangePayloadAttached:
		s.withOut(func(w io.Writer) {
			switch c.Payload {
			case schema.FrameModificationProposal:
				printProposal(w, c.Message.Proposal)
			case schema.FrameResearchRequest:
				printResearchRequest(w, c.Message.ResearchRequest)
			}
		})

	case chat.ChangeTurnDone:
		s.printf("\n")
		s.signalTurnEnded()

	case chat.ChangeTurnFailed:
		if c.Err != nil {
			s.printf("\n⚠️  %v\n", c.Err)
		}
		s.signalTurnEnded()

	case chat.ChangeStateChanged:
		switch c.State {
		case chat.Connected:
			s.printf("✅ connected\n")
		case chat.Backoff:
			s.printf("🔌 connection lost, reconnecting...\n")
		}
	}
}

func (s *Session) signalTurnEnded() {
	select {
	case s.turnEnded <- struct{}{}:
	default:
	}
}

func (s *Session) onRefresh(conv *api.Conversation, err error) {
	if err != nil {
		return
	}
	select {
	case s.refreshed <- conv:
	default:
	}
}

// watchRefreshes records the latest server copy delivered by the cache.
func (s *Session) watchRefreshes(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case conv := <-s.refreshed:
			s.stateMu.Lock()
			s.remoteTitle = conv.Title
			s.remoteCount = len(conv.Messages)
			s.remoteSeen = true
			s.stateMu.Unlock()

			s.Logger.Debug("Server conversation refreshed",
				"conversation_id", conv.ID,
				"messages", len(conv.Messages),
			)
		}
	}
}

func (s *Session) printf(format string, args ...any) {
	s.withOut(func(w io.Writer) { fmt.Fprintf(w, format, args...) })
}

func (s *Session) withOut(fn func(w io.Writer)) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fn(s.Out)
}

func readLines(in io.Reader, lines chan<- string, done <-chan struct{}) {
	defer close(lines)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), schema.MessageContentMax*2)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-done:
			return
		}
	}
}
