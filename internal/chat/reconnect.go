package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"streamchat/internal/core"
	"streamchat/pkg/schema"
)

// readLoop consumes frames from conn until it fails. gen is the connection
// generation the loop belongs to.
func (s *Session) readLoop(gen uint64, conn Conn) {
	defer conn.Close()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			s.handleClosure(gen, err)
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		frame, err := schema.DecodeInbound(data)
		if err == nil {
			err = schema.ValidateInbound(frame)
		}
		if err != nil {
			s.logger.Warn("Ignoring malformed frame", "error", err.Error(), "size", len(data))
			continue
		}

		s.mu.Lock()
		if gen != s.gen {
			s.mu.Unlock()
			return
		}
		changes := s.applyFrameLocked(frame)
		s.mu.Unlock()
		s.emit(changes)

		// A finished or failed turn changed the server's copy.
		if frame.IsTerminal() && len(changes) > 0 && s.opts.Invalidator != nil {
			s.opts.Invalidator.Invalidate(s.opts.ConversationID)
		}
	}
}

// handleClosure reacts to the end of a connection. A normal closure only
// ends the turn; anything else fails the turn and schedules a reconnect.
func (s *Session) handleClosure(gen uint64, readErr error) {
	code := closeCode(readErr)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.conn = nil

	var changes []Change
	if code == schema.CloseNormal || s.manualClose {
		changes = append(changes, s.endTurnLocked(ErrDisconnected)...)
		if c, ok := s.setStateLocked(Disconnected); ok {
			changes = append(changes, c)
		}
		s.mu.Unlock()
		s.emit(changes)

		s.logger.Info("Chat server closed the connection", "code", code)
		return
	}

	tErr := &core.TransportError{
		Operation: "read",
		URL:       s.opts.URL,
		Code:      code,
		Message:   "connection lost",
		Err:       readErr,
	}
	changes = append(changes, s.endTurnLocked(tErr)...)
	changes = append(changes, s.setErrLocked(tErr))
	changes = append(changes, s.scheduleReconnectLocked()...)
	attempts := s.attempts
	s.mu.Unlock()
	s.emit(changes)

	s.logger.Warn("Connection lost",
		"code", code,
		"error", readErr.Error(),
		"reconnect_attempt", attempts,
	)
}

// scheduleReconnectLocked arms the reconnect timer, or gives up once the
// attempt budget is spent.
func (s *Session) scheduleReconnectLocked() []Change {
	var changes []Change

	if s.attempts >= s.opts.MaxReconnectAttempts {
		if s.opts.MaxReconnectAttempts > 0 {
			changes = append(changes, s.setErrLocked(&core.TransportError{
				Operation: "reconnect",
				URL:       s.opts.URL,
				Message:   fmt.Sprintf("giving up after %d attempts", s.attempts),
				Err:       s.err,
			}))
		}
		if c, ok := s.setStateLocked(Disconnected); ok {
			changes = append(changes, c)
		}
		return changes
	}

	s.attempts++
	s.stopReconnectTimerLocked()
	s.reconnectTimer = time.AfterFunc(s.opts.ReconnectInterval, s.reconnect)
	if c, ok := s.setStateLocked(Backoff); ok {
		changes = append(changes, c)
	}
	return changes
}

// reconnect runs when the backoff timer fires.
func (s *Session) reconnect() {
	dialCtx, gen, changes, ok := s.beginConnect(context.Background(), true)
	s.emit(changes)
	if !ok {
		return
	}
	_ = s.dial(dialCtx, gen, true)
}

func (s *Session) stopReconnectTimerLocked() {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
}
