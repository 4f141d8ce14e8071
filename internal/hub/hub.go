// Package hub tracks WebSocket client connections and their session bindings.
package hub

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrBufferFull is returned when a connection's send buffer is full.
var ErrBufferFull = errors.New("send buffer full")

// ErrConnClosed is returned when sending on an unregistered connection.
var ErrConnClosed = errors.New("connection closed")

// sendBufferSize is the per-connection outbound event buffer.
const sendBufferSize = 256

// Connection is one client's WebSocket connection. Outbound events for a
// session are delivered only through the connection that originated the
// query; there is no cross-connection broadcast.
type Connection struct {
	ID        string
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte

	done     chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex
}

// Done is closed when the connection is unregistered. The pipeline may still
// be streaming a response at that point; sends fail with ErrConnClosed
// instead of panicking on a closed channel.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Hub manages the set of live connections.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	sessions    map[string]string // session id -> connection id
	logger      *slog.Logger
}

// New creates a Hub.
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		connections: make(map[string]*Connection),
		sessions:    make(map[string]string),
		logger:      logger,
	}
}

// NewConnection wraps a WebSocket connection and registers it.
func (h *Hub) NewConnection(ws *websocket.Conn) *Connection {
	conn := &Connection{
		ID:   uuid.NewString(),
		Conn: ws,
		Send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.connections[conn.ID] = conn
	h.mu.Unlock()
	h.logger.Info("connection registered", "connection_id", conn.ID)
	return conn
}

// Unregister removes the connection and signals its done channel. Safe to
// call more than once.
func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.connections[conn.ID]; !ok {
		return
	}
	delete(h.connections, conn.ID)
	if conn.SessionID != "" && h.sessions[conn.SessionID] == conn.ID {
		delete(h.sessions, conn.SessionID)
	}
	conn.stopOnce.Do(func() { close(conn.done) })
	h.logger.Info("connection unregistered", "connection_id", conn.ID)
}

// BindSession associates the connection with a session id, replacing any
// previous binding for the connection.
func (h *Hub) BindSession(conn *Connection, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conn.SessionID != "" && h.sessions[conn.SessionID] == conn.ID {
		delete(h.sessions, conn.SessionID)
	}
	conn.SessionID = sessionID
	h.sessions[sessionID] = conn.ID
}

// Send queues data for delivery on the connection.
func (h *Hub) Send(conn *Connection, data []byte) error {
	select {
	case <-conn.done:
		return ErrConnClosed
	default:
	}
	select {
	case conn.Send <- data:
		return nil
	case <-conn.done:
		return ErrConnClosed
	default:
		return ErrBufferFull
	}
}

// SendJSON marshals v and queues it for delivery on the connection.
func (h *Hub) SendJSON(conn *Connection, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.Send(conn, data)
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// SessionCount returns the number of session-bound connections.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// WriteMessage writes a frame to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the underlying connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}
