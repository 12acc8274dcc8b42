package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"agriwise-backend/internal/chat"
	"agriwise-backend/internal/models"
	"agriwise-backend/internal/services"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubCompleter struct {
	reply   string
	err     error
	started chan struct{}
	release chan struct{}
}

func (s *stubCompleter) Complete(ctx context.Context, _ []models.Message, _ string, _ services.GenerationConfig) (string, error) {
	if s.started != nil {
		s.started <- struct{}{}
		select {
		case <-s.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.reply, s.err
}

const dashboardOrigin = "http://localhost:5173"

func allowDashboard(origin string) bool { return origin == dashboardOrigin }

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func dial(t *testing.T, completer services.Completer, observers ...chat.Observer) (*Hub, *websocket.Conn, func()) {
	t.Helper()
	hub := NewHub(completer, nil, allowDashboard, []chat.Option{chat.WithTimeout(5 * time.Second)}, observers...)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	return hub, conn, func() {
		conn.Close()
		assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
		srv.Close()
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func readSnapshot(t *testing.T, conn *websocket.Conn) models.ChatSnapshot {
	t.Helper()
	f := readFrame(t, conn)
	require.Equal(t, "snapshot", f.Type)
	var s models.ChatSnapshot
	require.NoError(t, json.Unmarshal(f.Payload, &s))
	return s
}

func sendText(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(models.ClientFrame{Type: "send", Text: text}))
}

func TestHub_SnapshotOnConnect(t *testing.T) {
	hub, conn, done := dial(t, &stubCompleter{reply: "ok"})
	defer done()

	s := readSnapshot(t, conn)
	require.Len(t, s.Messages, 1)
	assert.Equal(t, models.RoleAssistant, s.Messages[0].Role)
	assert.Equal(t, chat.DefaultGreeting, s.Messages[0].Content)
	assert.False(t, s.Pending)
	assert.NotEmpty(t, s.SessionID)
	assert.Equal(t, 1, hub.Count())
}

func TestHub_SendRoundTrip(t *testing.T) {
	_, conn, done := dial(t, &stubCompleter{reply: "Rotate your crops."})
	defer done()
	readSnapshot(t, conn)

	sendText(t, conn, "How do I keep soil healthy?")

	pending := readSnapshot(t, conn)
	assert.True(t, pending.Pending)
	require.Len(t, pending.Messages, 2)
	assert.Equal(t, "How do I keep soil healthy?", pending.Messages[1].Content)

	final := readSnapshot(t, conn)
	assert.False(t, final.Pending)
	require.Len(t, final.Messages, 3)
	assert.Equal(t, models.NewMessage(models.RoleAssistant, "Rotate your crops."), final.Messages[2])
}

func TestHub_FailureSendsNotification(t *testing.T) {
	_, conn, done := dial(t, &stubCompleter{err: models.NewRemoteRejection(403, "API key not valid")})
	defer done()
	readSnapshot(t, conn)

	sendText(t, conn, "hello")
	readSnapshot(t, conn)

	f := readFrame(t, conn)
	require.Equal(t, "error", f.Type)
	var n models.Notification
	require.NoError(t, json.Unmarshal(f.Payload, &n))
	assert.Equal(t, models.KindRemoteRejection, n.Kind)
	assert.Equal(t, "AI Assistant Error", n.Title)

	final := readSnapshot(t, conn)
	assert.False(t, final.Pending)
	assert.Len(t, final.Messages, 2, "user message stays, no assistant reply")
}

func TestHub_BusyWhilePending(t *testing.T) {
	stub := &stubCompleter{reply: "done", started: make(chan struct{}, 1), release: make(chan struct{})}
	_, conn, done := dial(t, stub)
	defer done()
	readSnapshot(t, conn)

	sendText(t, conn, "first")
	<-stub.started
	assert.True(t, readSnapshot(t, conn).Pending)

	sendText(t, conn, "second")
	assert.Equal(t, "busy", readFrame(t, conn).Type)

	close(stub.release)
	final := readSnapshot(t, conn)
	require.Len(t, final.Messages, 3)
	assert.Equal(t, "first", final.Messages[1].Content)
}

func TestHub_BackToBackSendsKeepArrivalOrder(t *testing.T) {
	stub := &stubCompleter{reply: "done", started: make(chan struct{}, 1), release: make(chan struct{})}
	_, conn, done := dial(t, stub)
	defer done()
	readSnapshot(t, conn)

	sendText(t, conn, "first")
	sendText(t, conn, "second")

	pending := readSnapshot(t, conn)
	assert.True(t, pending.Pending)
	require.Len(t, pending.Messages, 2)
	assert.Equal(t, "first", pending.Messages[1].Content)
	assert.Equal(t, "busy", readFrame(t, conn).Type, "second is rejected")

	<-stub.started
	close(stub.release)
	final := readSnapshot(t, conn)
	require.Len(t, final.Messages, 3)
	assert.Equal(t, "first", final.Messages[1].Content)
	assert.Equal(t, "done", final.Messages[2].Content)
}

func TestHub_CheckOrigin(t *testing.T) {
	hub := NewHub(&stubCompleter{reply: "ok"}, nil, allowDashboard, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
	assert.Zero(t, hub.Count())

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {dashboardOrigin}})
	require.NoError(t, err)
	readSnapshot(t, conn)
	conn.Close()
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_CancelFrame(t *testing.T) {
	stub := &stubCompleter{started: make(chan struct{}, 1), release: make(chan struct{})}
	_, conn, done := dial(t, stub)
	defer done()
	readSnapshot(t, conn)

	sendText(t, conn, "slow question")
	<-stub.started
	readSnapshot(t, conn)

	require.NoError(t, conn.WriteJSON(models.ClientFrame{Type: "cancel"}))

	f := readFrame(t, conn)
	require.Equal(t, "error", f.Type)
	var n models.Notification
	require.NoError(t, json.Unmarshal(f.Payload, &n))
	assert.Equal(t, models.KindTransportFailure, n.Kind)
	assert.Equal(t, "Connection Error", n.Title)

	assert.False(t, readSnapshot(t, conn).Pending)
}

func TestHub_ExtraObserversReceiveEvents(t *testing.T) {
	got := make(chan models.Notification, 1)
	obs := chat.ObserverFuncs{Error: func(n models.Notification) { got <- n }}

	_, conn, done := dial(t, &stubCompleter{err: errors.New("connection refused")}, obs)
	defer done()
	readSnapshot(t, conn)

	sendText(t, conn, "hello")

	select {
	case n := <-got:
		assert.Equal(t, models.KindTransportFailure, n.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("observer was not notified")
	}
}

func TestHub_CloseDropsConnections(t *testing.T) {
	hub, conn, done := dial(t, &stubCompleter{reply: "ok"})
	defer done()
	readSnapshot(t, conn)

	hub.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}
