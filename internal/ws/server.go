// Package ws provides the WebSocket transport for client connections.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"newsrag/internal/config"
	"newsrag/internal/hub"
	"newsrag/internal/orchestrator"
	"newsrag/internal/protocol"
	"newsrag/internal/session"
)

// QueryHandler runs the pipeline for one query, streaming events through the
// emitter. Implemented by orchestrator.Orchestrator.
type QueryHandler interface {
	HandleQuery(ctx context.Context, sessionID, query string, emit orchestrator.Emitter) error
}

// Server handles WebSocket connections.
type Server struct {
	cfg      *config.Config
	hub      *hub.Hub
	sessions *session.Manager
	handler  QueryHandler
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a WebSocket server.
func NewServer(cfg *config.Config, h *hub.Hub, sessions *session.Manager, handler QueryHandler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		hub:      h,
		sessions: sessions,
		handler:  handler,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// pendingQuery is one queued query awaiting its turn on the connection's
// pipeline worker.
type pendingQuery struct {
	sessionID string
	query     string
}

// HandleWebSocket upgrades the request and runs the connection lifecycle.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return err
	}

	conn := s.hub.NewConnection(ws)
	ws.SetReadLimit(s.cfg.MaxMessageSize)

	// The connection context bounds every pipeline run started by this
	// client; disconnecting cancels in-flight gateway calls.
	ctx, cancel := context.WithCancel(c.Request().Context())
	queries := make(chan pendingQuery, s.cfg.QueryQueueSize)

	go s.writePump(conn)
	go s.pipelineWorker(ctx, conn, queries)
	s.readPump(conn, queries, cancel)

	return nil
}

// readPump reads inbound events until the connection drops. It runs on the
// handler goroutine; closing the queries channel stops the pipeline worker
// after any queued queries drain.
func (s *Server) readPump(conn *hub.Connection, queries chan<- pendingQuery, cancel context.CancelFunc) {
	defer func() {
		cancel()
		close(queries)
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read error", "connection_id", conn.ID, "error", err)
			}
			return
		}
		s.handleMessage(conn, queries, message)
	}
}

// writePump delivers queued outbound events and keepalive pings.
func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Warn("websocket write failed", "connection_id", conn.ID, "error", err)
				return
			}

		case <-conn.Done():
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// pipelineWorker runs queued queries strictly one at a time, so one query's
// chunk stream is fully emitted before the next begins and history commits
// never race within a session.
func (s *Server) pipelineWorker(ctx context.Context, conn *hub.Connection, queries <-chan pendingQuery) {
	emit := &connEmitter{hub: s.hub, conn: conn}
	for q := range queries {
		if ctx.Err() != nil {
			return
		}
		if err := s.handler.HandleQuery(ctx, q.sessionID, q.query, emit); err != nil {
			s.logger.Warn("query pipeline ended early", "session_id", q.sessionID, "error", err)
		}
	}
}

// handleMessage dispatches one inbound event. Malformed events are answered
// with a protocol error and never crash the handler.
func (s *Server) handleMessage(conn *hub.Connection, queries chan<- pendingQuery, data []byte) {
	var base protocol.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		s.sendError(conn, protocol.ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	switch base.Type {
	case protocol.TypeSendMessage:
		s.handleSendMessage(conn, queries, data)
	case protocol.TypeResetSession:
		s.handleResetSession(conn)
	default:
		s.sendError(conn, protocol.ErrorCodeInvalidMessage, "unknown message type: "+base.Type)
	}
}

// handleSendMessage resolves the session and enqueues the query. When a new
// session is created, its id is announced before any other event tied to it.
func (s *Server) handleSendMessage(conn *hub.Connection, queries chan<- pendingQuery, data []byte) {
	var msg protocol.SendMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, protocol.ErrorCodeInvalidMessage, "invalid sendMessage")
		return
	}
	if msg.Query == "" {
		s.logger.Warn("sendMessage without query text", "connection_id", conn.ID)
		s.sendError(conn, protocol.ErrorCodeInvalidMessage, "query is required")
		return
	}

	sessionID, created := s.sessions.Resolve(msg.SessionID)
	if created {
		s.announceSession(conn, sessionID)
	} else if conn.SessionID != sessionID {
		s.hub.BindSession(conn, sessionID)
	}

	select {
	case queries <- pendingQuery{sessionID: sessionID, query: msg.Query}:
	default:
		s.sendError(conn, protocol.ErrorCodeQueryQueueFull, "too many queries in flight")
	}
}

// handleResetSession clears the connection's current history and announces a
// fresh session id. An in-flight query is not cancelled.
func (s *Server) handleResetSession(conn *hub.Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GatewayTimeout)
	defer cancel()

	newID, err := s.sessions.Reset(ctx, conn.SessionID)
	if err != nil {
		s.logger.Warn("failed to clear session history", "session_id", conn.SessionID, "error", err)
	}
	s.announceSession(conn, newID)
}

// announceSession binds the connection to the id and emits the newSession
// event.
func (s *Server) announceSession(conn *hub.Connection, sessionID string) {
	s.hub.BindSession(conn, sessionID)
	event := protocol.NewSession{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeNewSession, Ts: time.Now().UnixMilli()},
		SessionID:   sessionID,
	}
	if err := s.hub.SendJSON(conn, event); err != nil {
		s.logger.Warn("failed to announce session", "session_id", sessionID, "error", err)
	}
	s.logger.Info("session announced", "session_id", sessionID, "connection_id", conn.ID)
}

// sendError sends a protocol error event to the connection.
func (s *Server) sendError(conn *hub.Connection, code, message string) {
	event := protocol.ErrorMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeError, Ts: time.Now().UnixMilli()},
		Code:        code,
		Message:     message,
	}
	if err := s.hub.SendJSON(conn, event); err != nil {
		s.logger.Warn("failed to send error event", "connection_id", conn.ID, "error", err)
	}
}

// connEmitter delivers stream events to the originating connection only.
type connEmitter struct {
	hub  *hub.Hub
	conn *hub.Connection
}

func (e *connEmitter) Chunk(sessionID, chunk string) error {
	return e.hub.SendJSON(e.conn, protocol.ResponseChunk{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeResponseChunk, Ts: time.Now().UnixMilli()},
		SessionID:   sessionID,
		Chunk:       chunk,
	})
}

func (e *connEmitter) Done(sessionID string) error {
	return e.hub.SendJSON(e.conn, protocol.ResponseDone{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeResponseDone, Ts: time.Now().UnixMilli()},
		SessionID:   sessionID,
	})
}
