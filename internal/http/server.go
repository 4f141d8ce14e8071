// Package http provides the HTTP server for the relay: the WebSocket
// endpoint plus a small REST surface over conversation history.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"newsrag/internal/history"
	"newsrag/internal/hub"
)

// Server is the relay's HTTP server.
type Server struct {
	echo   *echo.Echo
	hub    *hub.Hub
	store  history.Store
	logger *slog.Logger
}

// NewServer creates the HTTP server and registers routes. wsHandler serves
// the WebSocket upgrade on GET /ws.
func NewServer(h *hub.Hub, store history.Store, wsHandler echo.HandlerFunc, logger *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	s := &Server{
		echo:   e,
		hub:    h,
		store:  store,
		logger: logger,
	}

	// Register routes
	e.GET("/ws", wsHandler)
	e.GET("/health", s.handleHealth)
	e.GET("/api/history/:sessionId", s.HandleGetHistory)
	e.DELETE("/api/clear/:sessionId", s.HandleClearSession)

	return s
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"connections": s.hub.ConnectionCount(),
		"sessions":    s.hub.SessionCount(),
	})
}

// HandleGetHistory returns the full turn list for a session. An unknown or
// expired session yields an empty array, not an error.
func (s *Server) HandleGetHistory(c echo.Context) error {
	sessionID := c.Param("sessionId")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "sessionId is required"})
	}

	turns, err := s.store.ReadAll(c.Request().Context(), sessionID)
	if err != nil {
		s.logger.Error("failed to read history", "session_id", sessionID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to read history"})
	}
	if turns == nil {
		turns = []history.Turn{}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessionId": sessionID,
		"history":   turns,
	})
}

// HandleClearSession deletes a session's history. Clearing a session that
// does not exist succeeds.
func (s *Server) HandleClearSession(c echo.Context) error {
	sessionID := c.Param("sessionId")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "sessionId is required"})
	}

	if err := s.store.Clear(c.Request().Context(), sessionID); err != nil {
		s.logger.Error("failed to clear session", "session_id", sessionID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to clear session"})
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Session cleared"})
}
