package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	clsync "classlink/internal/sync"
	"classlink/pkg/interfaces"
	"classlink/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Student links get opened from anywhere (LMS pages, chat apps,
		// QR scans), so origins are not restricted.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Event types pushed to student views.
const (
	eventSession  = "session"  // full row snapshot
	eventRedirect = "redirect" // navigate now
	eventFallback = "fallback" // open was blocked, show a manual link
)

// clientMessage is what a student page may send back.
type clientMessage struct {
	Type string `json:"type"`
}

// pushEvent is the wire format for server-to-student messages.
type pushEvent struct {
	Type    string              `json:"type"`
	Session *types.ClassSession `json:"session,omitempty"`
	URL     string              `json:"url,omitempty"`
}

// Config carries the connection-level timing knobs.
type Config struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
	PollInterval time.Duration
}

// Handler upgrades student connections and runs one sync client per
// connection, forwarding its updates as push events.
type Handler struct {
	store    interfaces.SessionStore
	feed     interfaces.ChangeFeed
	registry *Registry
	config   Config
	logger   *zap.Logger
}

// NewHandler creates a WebSocket handler.
func NewHandler(store interfaces.SessionStore, changeFeed interfaces.ChangeFeed, registry *Registry, config Config, logger *zap.Logger) *Handler {
	return &Handler{
		store:    store,
		feed:     changeFeed,
		registry: registry,
		config:   config,
		logger:   logger,
	}
}

// HandleWebSocket serves GET /ws?teacher_id=...
//
// A connection is accepted even when the teacher has no session row yet:
// the student view sits in its waiting state and the sync client picks
// the row up once the teacher saves for the first time.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	teacherID := r.URL.Query().Get("teacher_id")
	if teacherID == "" {
		http.Error(w, "Missing required query parameter: teacher_id", http.StatusBadRequest)
		return
	}
	if !types.IsValidTeacherID(teacherID) {
		http.Error(w, "Invalid teacher_id format", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	wsConn := NewConnection(conn, uuid.New().String(), teacherID, h.config.BufferSize)

	if err := h.registry.Register(wsConn); err != nil {
		h.logger.Error("failed to register connection", zap.Error(err))
		_ = wsConn.Close()
		return
	}

	client := clsync.NewClient(h.store, h.feed, teacherID, h.config.PollInterval, h.logger)
	if err := client.Start(context.Background()); err != nil {
		h.logger.Error("failed to start sync client", zap.Error(err))
		h.registry.Unregister(wsConn)
		_ = wsConn.Close()
		return
	}

	h.logger.Info("student connected",
		zap.String("teacher_id", teacherID),
		zap.String("conn_id", wsConn.ID()))

	go h.pushUpdates(wsConn, client)
	go h.handleConnection(wsConn, client)
}

// pushUpdates forwards sync client updates to the student until the
// client stops or the connection dies.
func (h *Handler) pushUpdates(conn *Connection, client *clsync.Client) {
	for update := range client.Updates() {
		if update.Session != nil {
			if err := conn.WriteJSON(pushEvent{Type: eventSession, Session: update.Session}); err != nil {
				return
			}
		}
		if update.Redirect != nil && update.Redirect.Type == clsync.ActionNavigate {
			conn.SetFallbackURL(update.Redirect.URL)
			if err := conn.WriteJSON(pushEvent{Type: eventRedirect, URL: update.Redirect.URL}); err != nil {
				return
			}
		}
	}
}

// handleConnection runs the read pump and heartbeat, and tears the
// connection down when either fails.
func (h *Handler) handleConnection(conn *Connection, client *clsync.Client) {
	defer func() {
		client.Stop()
		h.registry.Unregister(conn)
		_ = conn.Close()
		h.logger.Info("student disconnected",
			zap.String("teacher_id", conn.TeacherID()),
			zap.String("conn_id", conn.ID()))
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(h.config.WriteTimeout)
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		// A student page reports when its window.open attempt came back
		// closed/undefined; answer with the same URL as a manual link.
		if msg.Type == "open_blocked" {
			if url := conn.FallbackURL(); url != "" {
				_ = conn.WriteJSON(pushEvent{Type: eventFallback, URL: url})
			}
		}
	}
}
