package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamchat/internal/chat"
	"streamchat/internal/core"
	"streamchat/internal/repository"
	"streamchat/pkg/schema"
)

// syncBuffer guards output written from the session's read loop.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// newChatServer answers each outbound frame with the frames built by reply.
func newChatServer(t *testing.T, reply func(message string) []schema.InboundFrame) string {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			var req schema.OutboundFrame
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			for _, f := range reply(req.Message) {
				if err := conn.WriteJSON(f); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// newEchoServer answers each message with "echo: <message>" split over two
// text frames.
func newEchoServer(t *testing.T) string {
	t.Helper()
	return newChatServer(t, func(message string) []schema.InboundFrame {
		return []schema.InboundFrame{
			{Type: schema.FrameText, Content: "echo: "},
			{Type: schema.FrameText, Content: message},
			{Type: schema.FrameDone},
		}
	})
}

func newStore(t *testing.T) *repository.TranscriptStore {
	t.Helper()
	return repository.NewTranscriptStore(filepath.Join(t.TempDir(), ".streamchat"), core.NewNopLogger())
}

func newChat(t *testing.T, url string) *chat.Session {
	t.Helper()
	s, err := chat.NewSession(chat.Options{
		URL:            url,
		ConversationID: "CNV-cli",
		ConnectTimeout: 2 * time.Second,
		Dialer:         &chat.WebSocketDialer{Dialer: &websocket.Dialer{HandshakeTimeout: time.Second}},
		Logger:         core.NewNopLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(s.Disconnect)
	return s
}

func seed(t *testing.T, store *repository.TranscriptStore, msgs ...schema.DisplayMessage) {
	t.Helper()
	var events []schema.TranscriptEvent
	for _, m := range msgs {
		ev, err := schema.NewMessageRecorded(m)
		require.NoError(t, err)
		events = append(events, ev)
	}
	require.NoError(t, store.Append("CNV-cli", events))
}

func run(t *testing.T, session *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, session.Run(ctx))
}

func TestSession_SendAndPersist(t *testing.T) {
	store := newStore(t)
	out := &syncBuffer{}
	session := NewSession(newChat(t, newEchoServer(t)), store, strings.NewReader("hello\n/status\n/quit\n"), out, nil)

	run(t, session)

	output := out.String()
	assert.Contains(t, output, "echo: hello")
	assert.Contains(t, output, "conversation: CNV-cli")
	assert.Contains(t, output, "messages:     2")

	messages, err := store.ReadTranscript("CNV-cli")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, schema.RoleUser, messages[0].Role)
	assert.Equal(t, "hello", messages[0].Content)
	assert.Equal(t, schema.RoleAssistant, messages[1].Role)
	assert.Equal(t, "echo: hello", messages[1].Content)
	assert.False(t, messages[1].Streaming)
}

func TestSession_ResumesTranscript(t *testing.T) {
	store := newStore(t)
	seed(t, store, schema.NewUserMessage("MSG-a", "earlier question"))

	out := &syncBuffer{}
	session := NewSession(newChat(t, newEchoServer(t)), store, strings.NewReader("again\n"), out, nil)

	run(t, session)

	assert.Contains(t, out.String(), "earlier question")

	messages, err := store.ReadTranscript("CNV-cli")
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "MSG-a", messages[0].ID)
	assert.Equal(t, "echo: again", messages[2].Content)
}

func TestSession_DeletePersisted(t *testing.T) {
	store := newStore(t)
	seed(t, store,
		schema.NewUserMessage("MSG-a", "first"),
		schema.NewUserMessage("MSG-b", "second"),
	)

	out := &syncBuffer{}
	input := "/delete MSG-a\n/delete MSG-zzz\n/quit\n"
	session := NewSession(newChat(t, "ws://127.0.0.1:1/ws"), store, strings.NewReader(input), out, nil)

	run(t, session)

	output := out.String()
	assert.Contains(t, output, "deleted MSG-a")
	assert.Contains(t, output, "message not found")

	messages, err := store.ReadTranscript("CNV-cli")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "MSG-b", messages[0].ID)
}

func TestSession_ClearHistory(t *testing.T) {
	store := newStore(t)
	seed(t, store, schema.NewUserMessage("MSG-a", "first"))

	out := &syncBuffer{}
	session := NewSession(newChat(t, "ws://127.0.0.1:1/ws"), store, strings.NewReader("/clear\n/history\n"), out, nil)

	run(t, session)

	output := out.String()
	assert.Contains(t, output, "history cleared")
	assert.Contains(t, output, "(no messages)")

	messages, err := store.ReadTranscript("CNV-cli")
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestSession_UnknownCommand(t *testing.T) {
	out := &syncBuffer{}
	session := NewSession(newChat(t, "ws://127.0.0.1:1/ws"), newStore(t), strings.NewReader("/frobnicate\n"), out, nil)

	run(t, session)

	assert.Contains(t, out.String(), "unknown command /frobnicate")
}

func TestSession_LockHeld(t *testing.T) {
	store := newStore(t)
	other := store.NewLock("history")
	require.NoError(t, other.Acquire())
	defer other.Release()

	session := NewSession(newChat(t, "ws://127.0.0.1:1/ws"), store, strings.NewReader(""), &syncBuffer{}, nil)

	err := session.Run(context.Background())

	var lockErr *core.LockError
	require.ErrorAs(t, err, &lockErr)
	assert.Contains(t, err.Error(), "locked by history")
}

func TestSession_ContextCancelled(t *testing.T) {
	// The pipe is never written, so only cancellation ends the loop.
	r, w := io.Pipe()
	defer w.Close()

	session := NewSession(newChat(t, "ws://127.0.0.1:1/ws"), newStore(t), r, &syncBuffer{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- session.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSession_CancelMidReplyPersistsPartial(t *testing.T) {
	// The reply never finishes.
	url := newChatServer(t, func(string) []schema.InboundFrame {
		return []schema.InboundFrame{{Type: schema.FrameText, Content: "partial"}}
	})
	store := newStore(t)
	out := &syncBuffer{}

	r, w := io.Pipe()
	defer w.Close()
	go func() { _, _ = io.WriteString(w, "hello\n") }()

	session := NewSession(newChat(t, url), store, r, out, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- session.Run(ctx) }()

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "partial") }, 5*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	messages, err := store.ReadTranscript("CNV-cli")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "hello", messages[0].Content)
	assert.Equal(t, "partial", messages[1].Content)
	assert.False(t, messages[1].Streaming)
}
