package notify

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vidrelay/vidrelay/internal/auth"
	"github.com/vidrelay/vidrelay/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// sendBuffer bounds per-client queued notifications; overflow drops.
	sendBuffer = 32
)

// Journal receives a copy of every emitted notification for the activity
// log. Optional.
type Journal interface {
	Emit(event domain.Event)
}

// TokenVerifier validates a session token presented on the join path.
type TokenVerifier interface {
	Verify(token string) (*auth.Identity, error)
}

// Hub is the push-notification channel: clients join a per-session room
// derived from their token, and server components emit fire-and-forget
// messages into rooms. Delivery is at-most-once, best-effort; a failed emit
// is logged and never propagated into the relay path.
type Hub struct {
	upgrader websocket.Upgrader
	verifier TokenVerifier
	journal  Journal
	logger   *slog.Logger

	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
}

// NewHub creates a notification hub.
func NewHub(verifier TokenVerifier, journal Journal, logger *slog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The channel carries no credentials beyond the join token and
			// is consumed by browser clients on other origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		verifier: verifier,
		journal:  journal,
		logger:   logger,
		rooms:    make(map[string]map[*client]struct{}),
	}
}

type client struct {
	conn *websocket.Conn
	send chan domain.Notification
	room string
}

// inboundFrame is a client-to-server websocket message.
type inboundFrame struct {
	Event string `json:"event"`
	Token string `json:"token"`
}

// outboundFrame is a server-to-client websocket message.
type outboundFrame struct {
	Event       string `json:"event"`
	Message     string `json:"message"`
	MessageType string `json:"messageType"`
}

// ServeWS upgrades the connection and runs the client until it disconnects.
// The client is placed into its room only after presenting a valid token in
// a join_respective frame.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan domain.Notification, sendBuffer),
	}

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", "error", err)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.logger.Warn("malformed websocket frame", "error", err)
			continue
		}

		if frame.Event == "join_respective" {
			h.join(c, frame.Token)
		}
	}
}

// join verifies the token and places the client in its derived room. The
// greeting confirms the join on the same channel the ladder will use.
func (h *Hub) join(c *client, token string) {
	if token == "" {
		h.logger.Warn("join without token")
		return
	}
	if _, err := h.verifier.Verify(token); err != nil {
		h.logger.Warn("join with invalid token", "error", err)
		return
	}

	room := auth.RoomID(token)

	h.mu.Lock()
	if c.room != "" {
		// Re-join moves the client out of its previous room.
		h.removeLocked(c)
	}
	c.room = room
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*client]struct{})
	}
	h.rooms[room][c] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("client joined notification room", "room", room)
	h.deliver(c, domain.Notification{Room: room, Message: "e-zed", MessageType: "success"})
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()
	close(c.send)
}

func (h *Hub) removeLocked(c *client) {
	if c.room == "" {
		return
	}
	if set, ok := h.rooms[c.room]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.rooms, c.room)
		}
	}
	c.room = ""
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case n, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			frame := outboundFrame{
				Event:       "download_message",
				Message:     n.Message,
				MessageType: n.MessageType,
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Notify emits a message into a room. Best-effort: unknown rooms and full
// client buffers drop silently, and the emit is mirrored into the journal.
// Never returns an error into the caller's relay path.
func (h *Hub) Notify(room, message, messageType string) {
	if h.journal != nil {
		h.journal.Emit(domain.Event{
			Severity: severityFor(messageType),
			Category: domain.EventCategoryNotify,
			Source:   "hub",
			Message:  message,
			Metadata: domain.EventMetadata{"room": room, "message_type": messageType}.ToJSON(),
		})
	}
	if room == "" {
		return
	}

	n := domain.Notification{Room: room, Message: message, MessageType: messageType}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.deliver(c, n)
	}
}

func (h *Hub) deliver(c *client, n domain.Notification) {
	defer func() {
		// A racing unregister can close the send channel; a lost
		// notification must never abort the emitting download.
		if r := recover(); r != nil {
			h.logger.Debug("notification dropped on closed client", "room", n.Room)
		}
	}()

	select {
	case c.send <- n:
	default:
		h.logger.Warn("client notification buffer full, dropping",
			"room", n.Room,
			"message", n.Message,
		)
	}
}

// RoomCount reports the number of active rooms.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func severityFor(messageType string) domain.EventSeverity {
	switch messageType {
	case "success":
		return domain.EventSeveritySuccess
	case "error":
		return domain.EventSeverityError
	default:
		return domain.EventSeverityInfo
	}
}
