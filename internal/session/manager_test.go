package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"newsrag/internal/history"
)

func newTestManager(t *testing.T) (*Manager, history.Store) {
	t.Helper()
	store, err := history.NewSQLiteStore(":memory:", time.Hour)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewManager(store), store
}

func TestResolvePassesThroughSuppliedID(t *testing.T) {
	m, _ := newTestManager(t)

	id, created := m.Resolve("existing-id")
	if id != "existing-id" {
		t.Errorf("expected supplied id unchanged, got %q", id)
	}
	if created {
		t.Error("expected created=false for supplied id")
	}
}

func TestResolveGeneratesFreshID(t *testing.T) {
	m, _ := newTestManager(t)

	id, created := m.Resolve("")
	if !created {
		t.Fatal("expected created=true for empty id")
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("expected a uuid, got %q: %v", id, err)
	}

	other, _ := m.Resolve("")
	if other == id {
		t.Fatal("expected distinct ids for distinct sessions")
	}
}

func TestResetClearsHistoryAndReturnsNewID(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	if err := store.Append(ctx, "old", history.Turn{Role: history.RoleUser, Content: "hello"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	newID, err := m.Reset(ctx, "old")
	if err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if newID == "old" {
		t.Fatal("expected a different session id after reset")
	}

	turns, err := store.ReadAll(ctx, "old")
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("expected cleared history, got %d turns", len(turns))
	}
}

func TestResetIdempotent(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	first, err := m.Reset(ctx, "ghost")
	if err != nil {
		t.Fatalf("first Reset failed: %v", err)
	}
	second, err := m.Reset(ctx, "ghost")
	if err != nil {
		t.Fatalf("second Reset failed: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct ids from consecutive resets")
	}
}
