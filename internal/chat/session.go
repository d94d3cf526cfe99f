package chat

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"streamchat/internal/core"
	"streamchat/pkg/schema"
)

// Options configures a Session.
type Options struct {
	// URL is the WebSocket endpoint of the chat server.
	URL string

	// ConversationID is sent as the id of every outbound frame.
	// A new one is generated when empty.
	ConversationID string

	// ConnectTimeout bounds how long SendMessage waits for a connection.
	// Default: 5 seconds
	ConnectTimeout time.Duration

	// ReconnectInterval is the fixed delay before each reconnect attempt.
	// Default: 3 seconds
	ReconnectInterval time.Duration

	// MaxReconnectAttempts bounds reconnects after an abnormal closure.
	// Zero disables reconnection.
	MaxReconnectAttempts int

	// DialTimeout bounds a single dial.
	// Default: 10 seconds
	DialTimeout time.Duration

	Dialer      Dialer
	Invalidator Invalidator
	Logger      core.Logger
}

// OptionsFromConfig maps application configuration onto session options.
func OptionsFromConfig(cfg *core.Config) Options {
	return Options{
		URL:                  cfg.ServerURL,
		ConversationID:       cfg.ConversationID,
		ConnectTimeout:       cfg.ConnectTimeout,
		ReconnectInterval:    cfg.ReconnectInterval,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		DialTimeout:          cfg.DialTimeout,
		Dialer:               NewWebSocketDialer(cfg.APIToken),
	}
}

func (o *Options) setDefaults() {
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = core.DefaultConnectTimeout
	}
	if o.ReconnectInterval == 0 {
		o.ReconnectInterval = core.DefaultReconnectInterval
	}
	if o.DialTimeout == 0 {
		o.DialTimeout = core.DefaultDialTimeout
	}
	if o.Dialer == nil {
		o.Dialer = &WebSocketDialer{}
	}
	if o.Logger == nil {
		o.Logger = core.NewNopLogger()
	}
}

// Session owns one streaming connection for a conversation and folds the
// server's frames into an ordered list of display messages.
//
// All state is guarded by mu. Frames are applied by the read loop of the
// current connection, one at a time; gen identifies that connection so
// events from a superseded one are dropped.
type Session struct {
	opts   Options
	ids    *schema.IDGenerator
	logger core.Logger

	mu             sync.Mutex
	state          ConnState
	conn           Conn
	gen            uint64
	attempts       int
	manualClose    bool
	reconnectTimer *time.Timer
	cancelDial     context.CancelFunc
	stateChanged   chan struct{}

	messages  []*schema.DisplayMessage
	currentID string
	loading   bool
	err       error

	// gorilla/websocket allows a single concurrent writer.
	writeMu sync.Mutex

	listenerMu sync.RWMutex
	listeners  []Listener
}

// Snapshot is a consistent, deep-copied view of a Session.
type Snapshot struct {
	ConversationID    string
	State             ConnState
	Messages          []schema.DisplayMessage
	CurrentMessageID  string
	Loading           bool
	Error             string
	ReconnectAttempts int
}

// NewSession creates a disconnected session.
func NewSession(opts Options) (*Session, error) {
	if opts.URL == "" {
		return nil, &core.ValidationError{Field: "url", Message: "is required"}
	}
	if opts.MaxReconnectAttempts < 0 {
		return nil, &core.ValidationError{Field: "max_reconnect_attempts", Message: "must not be negative"}
	}
	opts.setDefaults()

	if opts.ConversationID == "" {
		id, err := schema.NewConversationID()
		if err != nil {
			return nil, fmt.Errorf("generate conversation id: %w", err)
		}
		opts.ConversationID = id
	}

	ids, err := schema.NewIDGenerator()
	if err != nil {
		return nil, fmt.Errorf("create id generator: %w", err)
	}

	return &Session{
		opts:         opts,
		ids:          ids,
		logger:       opts.Logger,
		state:        Disconnected,
		stateChanged: make(chan struct{}),
	}, nil
}

// ConversationID returns the id sent with every outbound frame.
func (s *Session) ConversationID() string {
	return s.opts.ConversationID
}

// OnChange registers a listener for session changes.
func (s *Session) OnChange(l Listener) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Connect opens the connection. It is a no-op while a connection is open or
// being established. A failed manual connect is reported and not retried.
func (s *Session) Connect(ctx context.Context) error {
	dialCtx, gen, changes, ok := s.beginConnect(ctx, false)
	s.emit(changes)
	if !ok {
		return nil
	}
	return s.dial(dialCtx, gen, false)
}

// connectAsync starts a connection attempt without waiting for it.
func (s *Session) connectAsync() {
	dialCtx, gen, changes, ok := s.beginConnect(context.Background(), false)
	s.emit(changes)
	if !ok {
		return
	}
	go func() {
		_ = s.dial(dialCtx, gen, false)
	}()
}

// beginConnect moves the session to Connecting. With fromBackoff set it only
// proceeds if a scheduled reconnect is still pending.
func (s *Session) beginConnect(parent context.Context, fromBackoff bool) (context.Context, uint64, []Change, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Connecting || s.state == Connected {
		return nil, 0, nil, false
	}
	if fromBackoff && (s.state != Backoff || s.manualClose) {
		return nil, 0, nil, false
	}

	s.manualClose = false
	s.stopReconnectTimerLocked()
	s.gen++

	ctx, cancel := context.WithTimeout(parent, s.opts.DialTimeout)
	s.cancelDial = cancel

	var changes []Change
	if c, ok := s.setStateLocked(Connecting); ok {
		changes = append(changes, c)
	}
	return ctx, s.gen, changes, true
}

// dial completes a connection attempt started by beginConnect.
func (s *Session) dial(ctx context.Context, gen uint64, reconnecting bool) error {
	s.logger.Debug("Dialing chat server", "url", s.opts.URL, "reconnecting", reconnecting)

	start := time.Now()
	conn, err := s.opts.Dialer.Dial(ctx, s.opts.URL)
	duration := time.Since(start)

	s.mu.Lock()
	if gen != s.gen {
		// Disconnect or a newer Connect superseded this attempt.
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return ErrDisconnected
	}
	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}

	var changes []Change
	if err != nil {
		tErr := &core.TransportError{
			Operation: "dial",
			URL:       s.opts.URL,
			Message:   "could not connect",
			Err:       err,
		}
		changes = append(changes, s.setErrLocked(tErr))
		if reconnecting {
			changes = append(changes, s.scheduleReconnectLocked()...)
		} else if c, ok := s.setStateLocked(Disconnected); ok {
			changes = append(changes, c)
		}
		s.mu.Unlock()
		s.emit(changes)

		s.logger.Warn("Chat server dial failed",
			"url", s.opts.URL,
			"error", err.Error(),
			"duration", duration,
		)
		return tErr
	}

	s.conn = conn
	s.attempts = 0
	if s.err != nil {
		changes = append(changes, s.setErrLocked(nil))
	}
	if c, ok := s.setStateLocked(Connected); ok {
		changes = append(changes, c)
	}
	s.mu.Unlock()
	s.emit(changes)

	s.logger.Info("Connected to chat server",
		"url", s.opts.URL,
		"conversation_id", s.opts.ConversationID,
		"duration", duration,
	)

	go s.readLoop(gen, conn)
	return nil
}

// Disconnect closes the connection with a normal-closure code. No reconnect
// is attempted until Connect is called again. A streaming turn is ended with
// its partial content kept, and a send waiting for the connection fails with
// ErrDisconnected.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.manualClose = true
	s.stopReconnectTimerLocked()
	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
	conn := s.conn
	s.conn = nil
	s.gen++

	changes := s.endTurnLocked(ErrDisconnected)
	if c, ok := s.setStateLocked(Disconnected); ok {
		changes = append(changes, c)
	}
	s.mu.Unlock()
	s.emit(changes)

	if conn == nil {
		return
	}

	s.writeMu.Lock()
	if err := conn.WriteMessage(websocket.CloseMessage, normalCloseMessage()); err != nil {
		s.logger.Debug("Failed to send close frame", "error", err)
	}
	s.writeMu.Unlock()

	if err := conn.Close(); err != nil {
		s.logger.Debug("Failed to close connection", "error", err)
	}
	s.logger.Info("Disconnected from chat server", "conversation_id", s.opts.ConversationID)
}

// SendMessage starts a turn. Blank content is ignored. The user message and
// an empty streaming assistant message are appended before anything is sent;
// if the connection cannot be used, the assistant placeholder is removed
// again and the error is recorded on the session.
func (s *Session) SendMessage(ctx context.Context, content string) error {
	text := strings.TrimSpace(content)
	if text == "" {
		return nil
	}

	frame := schema.OutboundFrame{ID: s.opts.ConversationID, Message: text}
	if err := schema.ValidateOutbound(&frame); err != nil {
		return &core.ValidationError{Field: "message", Message: err.Error(), Err: err}
	}

	s.mu.Lock()
	if s.currentID != "" {
		s.mu.Unlock()
		return ErrTurnInProgress
	}

	user := schema.NewUserMessage(s.ids.NewMessageID(), text)
	assistant := schema.NewAssistantPlaceholder(s.ids.NewMessageID())
	s.messages = append(s.messages, &user, &assistant)
	s.currentID = assistant.ID
	s.loading = true

	changes := []Change{
		{Kind: ChangeMessageAppended, Message: user.Clone()},
		{Kind: ChangeMessageAppended, Message: assistant.Clone()},
	}
	if s.err != nil {
		changes = append(changes, s.setErrLocked(nil))
	}
	connected := s.state == Connected
	s.mu.Unlock()
	s.emit(changes)

	if !connected {
		if err := s.awaitConnection(ctx); err != nil {
			s.rollbackTurn(assistant.ID, err)
			return err
		}
	}

	if err := s.writeFrame(frame); err != nil {
		s.rollbackTurn(assistant.ID, err)
		return err
	}

	s.logger.Debug("Sent message",
		"conversation_id", s.opts.ConversationID,
		"message_id", assistant.ID,
		"length", len(text),
	)
	return nil
}

// awaitConnection triggers a connect and waits until it succeeds, fails, the
// session is disconnected, ctx ends, or ConnectTimeout elapses.
func (s *Session) awaitConnection(ctx context.Context) error {
	timer := time.NewTimer(s.opts.ConnectTimeout)
	defer timer.Stop()

	s.connectAsync()

	for {
		s.mu.Lock()
		state, manual, changed, lastErr := s.state, s.manualClose, s.stateChanged, s.err
		s.mu.Unlock()

		switch {
		case state == Connected:
			return nil
		case manual:
			return ErrDisconnected
		case state == Disconnected:
			if lastErr != nil {
				return lastErr
			}
			return ErrDisconnected
		}

		select {
		case <-changed:
		case <-timer.C:
			return &core.TimeoutError{Operation: "connect", After: s.opts.ConnectTimeout}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Session) writeFrame(frame schema.OutboundFrame) error {
	data, err := schema.EncodeOutbound(frame)
	if err != nil {
		return err
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return &core.TransportError{Operation: "write", URL: s.opts.URL, Message: "not connected"}
	}

	s.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	s.writeMu.Unlock()
	if err != nil {
		return &core.TransportError{Operation: "write", URL: s.opts.URL, Message: "send failed", Err: err}
	}
	return nil
}

// rollbackTurn removes the assistant placeholder of a turn that never
// reached the server and records why.
func (s *Session) rollbackTurn(assistantID string, cause error) {
	s.mu.Lock()
	var changes []Change
	if idx := s.indexLocked(assistantID); idx >= 0 {
		removed := s.messages[idx].Clone()
		s.messages = slices.Delete(s.messages, idx, idx+1)
		changes = append(changes, Change{Kind: ChangeMessageRemoved, Message: removed})
	}
	if s.currentID == assistantID {
		s.currentID = ""
		s.loading = false
	}
	changes = append(changes,
		s.setErrLocked(cause),
		Change{Kind: ChangeTurnFailed, Err: cause},
	)
	s.mu.Unlock()
	s.emit(changes)

	s.logger.Warn("Message not sent",
		"conversation_id", s.opts.ConversationID,
		"error", cause.Error(),
	)
}

// DeleteMessage removes a message on explicit user request. The message
// that is currently streaming cannot be deleted.
func (s *Session) DeleteMessage(id string) error {
	s.mu.Lock()
	if id == s.currentID {
		s.mu.Unlock()
		return ErrTurnInProgress
	}
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return ErrMessageNotFound
	}
	removed := s.messages[idx].Clone()
	s.messages = slices.Delete(s.messages, idx, idx+1)
	s.mu.Unlock()

	s.emit([]Change{{Kind: ChangeMessageRemoved, Message: removed}})
	return nil
}

// ClearHistory drops every message. Frames still arriving for a cleared
// turn are ignored.
func (s *Session) ClearHistory() {
	s.mu.Lock()
	s.messages = nil
	s.currentID = ""
	s.loading = false
	s.mu.Unlock()

	s.emit([]Change{{Kind: ChangeHistoryCleared}})
}

// Reconcile replaces the local history with confirmed messages, for example
// a persisted transcript or the server's copy of the conversation. It
// returns false and does nothing while a turn is in progress.
func (s *Session) Reconcile(confirmed []schema.DisplayMessage) bool {
	s.mu.Lock()
	if s.currentID != "" {
		s.mu.Unlock()
		return false
	}
	s.messages = make([]*schema.DisplayMessage, len(confirmed))
	for i := range confirmed {
		msg := confirmed[i].Clone()
		msg.Streaming = false
		s.messages[i] = &msg
	}
	s.mu.Unlock()

	s.emit([]Change{{Kind: ChangeHistoryReplaced}})
	return true
}

// Snapshot returns a deep copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ConversationID:    s.opts.ConversationID,
		State:             s.state,
		Messages:          make([]schema.DisplayMessage, len(s.messages)),
		CurrentMessageID:  s.currentID,
		Loading:           s.loading,
		ReconnectAttempts: s.attempts,
	}
	for i, m := range s.messages {
		snap.Messages[i] = m.Clone()
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	return snap
}

// Messages returns a copy of the message list.
func (s *Session) Messages() []schema.DisplayMessage {
	return s.Snapshot().Messages
}

// State returns the connection state.
func (s *Session) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the session-level error, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Loading reports whether a turn is waiting for the server.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Session) setStateLocked(state ConnState) (Change, bool) {
	if s.state == state {
		return Change{}, false
	}
	s.state = state
	close(s.stateChanged)
	s.stateChanged = make(chan struct{})
	return Change{Kind: ChangeStateChanged, State: state}, true
}

func (s *Session) setErrLocked(err error) Change {
	s.err = err
	return Change{Kind: ChangeErrorChanged, Err: err}
}

func (s *Session) indexLocked(id string) int {
	return slices.IndexFunc(s.messages, func(m *schema.DisplayMessage) bool {
		return m.ID == id
	})
}

func (s *Session) currentLocked() *schema.DisplayMessage {
	if s.currentID == "" {
		return nil
	}
	if idx := s.indexLocked(s.currentID); idx >= 0 {
		return s.messages[idx]
	}
	return nil
}

// endTurnLocked stops streaming into the current message without touching
// its content.
func (s *Session) endTurnLocked(cause error) []Change {
	msg := s.currentLocked()
	s.currentID = ""
	s.loading = false
	if msg == nil {
		return nil
	}
	msg.Streaming = false
	return []Change{{Kind: ChangeTurnFailed, Message: msg.Clone(), Err: cause}}
}

func (s *Session) emit(changes []Change) {
	if len(changes) == 0 {
		return
	}

	s.listenerMu.RLock()
	listeners := slices.Clone(s.listeners)
	s.listenerMu.RUnlock()

	for _, c := range changes {
		for _, l := range listeners {
			l(c)
		}
	}
}
