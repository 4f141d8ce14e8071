package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store on a local SQLite database. It is the fallback
// for deployments without Redis; expiry is bookkept per session and expired
// histories are purged lazily on access.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
}

// NewSQLiteStore opens (or creates) the database at dsn.
func NewSQLiteStore(dsn string, ttl time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db, ttl: ttl}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			expires_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, id)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Append adds the turn and slides the session's expiry forward.
func (s *SQLiteStore) Append(ctx context.Context, sessionID string, turn Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	expiresAt := time.Now().Add(s.ttl)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (session_id, expires_at) VALUES (?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET expires_at = excluded.expires_at`,
		sessionID, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("refresh session expiry: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO turns (session_id, role, content) VALUES (?, ?, ?)",
		sessionID, turn.Role, turn.Content,
	)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ReadAll returns the session's turns in insertion order. An expired session
// reads as empty and is purged.
func (s *SQLiteStore) ReadAll(ctx context.Context, sessionID string) ([]Turn, error) {
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx,
		"SELECT expires_at FROM sessions WHERE session_id = ?", sessionID,
	).Scan(&expiresAt)
	if err == sql.ErrNoRows {
		return []Turn{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if time.Now().After(expiresAt) {
		if err := s.Clear(ctx, sessionID); err != nil {
			return nil, err
		}
		return []Turn{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT role, content FROM turns WHERE session_id = ? ORDER BY id", sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}
	defer rows.Close()

	turns := []Turn{}
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.Role, &t.Content); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// Clear removes the session and its turns. Idempotent.
func (s *SQLiteStore) Clear(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// TTL reports the session's remaining expiry, or a negative duration when the
// session does not exist.
func (s *SQLiteStore) TTL(ctx context.Context, sessionID string) (time.Duration, error) {
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx,
		"SELECT expires_at FROM sessions WHERE session_id = ?", sessionID,
	).Scan(&expiresAt)
	if err == sql.ErrNoRows {
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load session: %w", err)
	}
	return time.Until(expiresAt), nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
