package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection wraps a student's WebSocket with serialized writes. All
// outbound traffic goes through a single writer goroutine, so the update
// pump and the read pump can both send without racing on the socket.
type Connection struct {
	conn        *websocket.Conn
	writeCh     chan []byte
	id          string
	teacherID   string
	fallbackURL string // last URL pushed, offered back on a blocked open
	ctx         context.Context
	cancel      context.CancelFunc
	closeOnce   sync.Once
	mu          sync.RWMutex
}

// NewConnection creates a connection wrapper and starts its writer.
func NewConnection(conn *websocket.Conn, id, teacherID string, bufferSize int) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:      conn,
		writeCh:   make(chan []byte, bufferSize),
		id:        id,
		teacherID: teacherID,
		ctx:       ctx,
		cancel:    cancel,
	}

	go c.writeLoop()
	return c
}

// writeLoop never closes writeCh: a sender may still be selected into
// the queue case while shutdown races it, and a send to a closed channel
// would panic. Queued messages after cancel are simply dropped.
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON queues a message for the writer goroutine.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(5 * time.Second):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close shuts down the writer and the underlying socket. Idempotent.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// ID returns the connection's unique identifier.
func (c *Connection) ID() string {
	return c.id
}

// TeacherID returns the teacher row this connection follows.
func (c *Connection) TeacherID() string {
	return c.teacherID
}

// SetFallbackURL records the URL of the last redirect pushed to this
// connection, for answering a blocked-open report.
func (c *Connection) SetFallbackURL(url string) {
	c.mu.Lock()
	c.fallbackURL = url
	c.mu.Unlock()
}

// FallbackURL returns the last pushed redirect URL, if any.
func (c *Connection) FallbackURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fallbackURL
}

// Done exposes the connection's lifetime for goroutines tied to it.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}
