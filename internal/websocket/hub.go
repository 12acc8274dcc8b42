package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"agriwise-backend/internal/chat"
	"agriwise-backend/internal/models"
	"agriwise-backend/internal/services"
)

const writeWait = 10 * time.Second

// Hub serves chat sessions over WebSocket, one session per connection.
type Hub struct {
	upgrader  websocket.Upgrader
	completer services.Completer
	opts      []chat.Option
	observers []chat.Observer
	logger    *zap.Logger

	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub returns a hub whose sessions call completer and are built with opts.
// Extra observers (e.g. the Redis publisher) are attached to every session.
//
// allowOrigin decides browser handshakes by their Origin header. Requests
// without one are accepted. A nil allowOrigin accepts same-origin requests only.
func NewHub(completer services.Completer, logger *zap.Logger, allowOrigin func(origin string) bool, opts []chat.Option, observers ...chat.Observer) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if allowOrigin != nil {
		upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowOrigin(origin)
		}
	}

	return &Hub{
		upgrader:  upgrader,
		completer: completer,
		opts:      opts,
		observers: observers,
		logger:    logger,
		clients:   make(map[string]*client),
	}
}

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	logger  *zap.Logger
}

func (c *client) write(msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to encode frame", zap.Error(err))
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Debug("WebSocket write failed", zap.Error(err))
	}
}

func (c *client) OnSnapshot(snapshot models.ChatSnapshot) {
	c.write(models.WSMessage{Type: "snapshot", Payload: snapshot})
}

func (c *client) OnError(n models.Notification) {
	c.write(models.WSMessage{Type: "error", Payload: n})
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err), zap.String("origin", r.Header.Get("Origin")))
		return
	}

	id := uuid.NewString()
	c := &client{conn: conn, logger: h.logger.With(zap.String("session_id", id))}

	opts := append([]chat.Option{}, h.opts...)
	opts = append(opts, chat.WithID(id), chat.WithLogger(h.logger), chat.WithObserver(c))
	for _, o := range h.observers {
		opts = append(opts, chat.WithObserver(o))
	}
	session := chat.New(h.completer, opts...)

	h.registerConnection(id, c)
	c.OnSnapshot(session.Snapshot())

	go h.serve(session, c)
}

// serve reads client frames until the connection drops, then tears the
// session down and waits for any in-flight request to finish.
func (h *Hub) serve(session *chat.Session, c *client) {
	ctx, cancel := context.WithCancel(context.Background())
	var inflight sync.WaitGroup
	defer func() {
		cancel()
		session.Close()
		inflight.Wait()
		h.unregisterConnection(session.ID(), c)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame models.ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Debug("Ignoring malformed frame", zap.Error(err))
			continue
		}

		switch frame.Type {
		case "send":
			// Accept in the read loop so frames win the single slot in arrival order.
			wait, err := session.Start(ctx, frame.Text)
			switch {
			case errors.Is(err, chat.ErrBusy):
				c.write(models.WSMessage{Type: "busy"})
			case err != nil:
				c.logger.Debug("Send rejected", zap.Error(err))
			default:
				inflight.Add(1)
				go func() {
					defer inflight.Done()
					_ = wait()
				}()
			}
		case "cancel":
			session.Cancel()
		default:
			c.logger.Debug("Ignoring unknown frame", zap.String("type", frame.Type))
		}
	}
}

func (h *Hub) registerConnection(id string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[id] = c
	h.logger.Info("WebSocket connected", zap.String("session_id", id), zap.Int("total", len(h.clients)))
}

func (h *Hub) unregisterConnection(id string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.conn.Close()
	delete(h.clients, id)
	h.logger.Info("WebSocket disconnected", zap.String("session_id", id))
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close drops every connection. Each connection's read loop then closes its session.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.conn.Close()
	}
}
