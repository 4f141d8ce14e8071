package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"newsrag/internal/history"
	"newsrag/internal/hub"
)

func newTestServer(t *testing.T) (*Server, history.Store) {
	t.Helper()
	store, err := history.NewSQLiteStore(":memory:", time.Hour)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	wsHandler := func(c echo.Context) error { return nil }
	return NewServer(hub.New(logger), store, wsHandler, logger), store
}

func TestGetHistory(t *testing.T) {
	s, store := newTestServer(t)

	ctx := context.Background()
	if err := store.Append(ctx, "s1", history.Turn{Role: history.RoleUser, Content: "what happened?"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Append(ctx, "s1", history.Turn{Role: history.RoleBot, Content: "an answer"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/history/s1", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)
	c.SetParamNames("sessionId")
	c.SetParamValues("s1")

	if err := s.HandleGetHistory(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		SessionID string         `json:"sessionId"`
		History   []history.Turn `json:"history"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SessionID != "s1" || len(resp.History) != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.History[0].Role != history.RoleUser || resp.History[1].Role != history.RoleBot {
		t.Fatalf("unexpected turn order: %+v", resp.History)
	}
}

func TestGetHistoryUnknownSession(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/history/nope", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)
	c.SetParamNames("sessionId")
	c.SetParamValues("nope")

	if err := s.HandleGetHistory(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		History []history.Turn `json:"history"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.History == nil || len(resp.History) != 0 {
		t.Fatalf("expected empty history array, got %+v", resp.History)
	}
}

func TestClearSession(t *testing.T) {
	s, store := newTestServer(t)

	ctx := context.Background()
	if err := store.Append(ctx, "s1", history.Turn{Role: history.RoleUser, Content: "hello"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/clear/s1", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)
	c.SetParamNames("sessionId")
	c.SetParamValues("s1")

	if err := s.HandleClearSession(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	turns, err := store.ReadAll(ctx, "s1")
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("expected history cleared, got %+v", turns)
	}
}

func TestClearUnknownSession(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/clear/ghost", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)
	c.SetParamNames("sessionId")
	c.SetParamValues("ghost")

	if err := s.HandleClearSession(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	if err := s.handleHealth(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Fatalf("unexpected health response: %+v", resp)
	}
}
