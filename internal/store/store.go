// Package store provides a SQLite-backed chat session store. Each session
// has its own conversation thread; messages are persisted across server
// restarts and injected into the LLM context window on subsequent turns.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // register "sqlite" driver
)

// ErrSessionNotFound is returned by operations on an unknown session ID.
var ErrSessionNotFound = errors.New("store: session not found")

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser is a message sent by the human operator.
	RoleUser Role = "user"
	// RoleAssistant is a message produced by the LLM.
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	// Role is the author of the message.
	Role Role `json:"role"`
	// Content is the text of the message.
	Content string `json:"content"`
	// CreatedAt is when the message was persisted.
	CreatedAt time.Time `json:"timestamp"`
}

// Session summarises one conversation thread.
type Session struct {
	// ID is the session identifier.
	ID string `json:"session_id"`
	// MessageCount is the number of stored messages.
	MessageCount int `json:"message_count"`
	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the last message was appended.
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationStore persists and retrieves conversation history keyed by
// session ID. Implementations must be safe for concurrent use.
type ConversationStore interface {
	// CreateSession ensures a session exists and returns its ID. An empty id
	// generates a new one.
	CreateSession(ctx context.Context, id string) (string, error)
	// Append persists a single message, creating the session if needed.
	Append(ctx context.Context, sessionID string, role Role, content string) error
	// Recent returns the most recent n messages for the session, ordered
	// oldest-first so they can be prepended to the LLM message slice directly.
	// If fewer than n messages exist, all are returned.
	Recent(ctx context.Context, sessionID string, n int) ([]Message, error)
	// History returns every stored message for the session, oldest-first.
	History(ctx context.Context, sessionID string) ([]Message, error)
	// Exists reports whether the session is known.
	Exists(ctx context.Context, sessionID string) (bool, error)
	// Delete removes the session and its messages.
	Delete(ctx context.Context, sessionID string) error
	// List returns all sessions, most recently updated first.
	List(ctx context.Context) ([]Session, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a ConversationStore backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB

	// retain is the maximum number of messages kept per session (0 = all).
	retain int
}

// Option configures a SQLiteStore at Open time.
type Option func(*SQLiteStore)

// WithRetention keeps only the newest n messages of each session. Older
// messages are pruned on Append. n <= 0 keeps everything.
func WithRetention(n int) Option {
	return func(s *SQLiteStore) { s.retain = n }
}

// DefaultDBPath returns the default path for the session database.
// It resolves to ~/.ragchat/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".ragchat")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string, opts ...Option) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// A single connection avoids SQLITE_BUSY under concurrent writes and keeps
	// one shared database for ":memory:".
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sessions (
    id          TEXT    PRIMARY KEY,
    created_at  INTEGER NOT NULL,  -- Unix milliseconds
    updated_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id  TEXT    NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    role        TEXT    NOT NULL CHECK(role IN ('user','assistant')),
    content     TEXT    NOT NULL,
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session_id
    ON messages (session_id, id);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// CreateSession ensures a session row exists and returns its ID. Calling it
// with an existing ID is a no-op.
func (s *SQLiteStore) CreateSession(ctx context.Context, id string) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UnixMilli()
	const q = `INSERT OR IGNORE INTO sessions (id, created_at, updated_at) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, id, now, now); err != nil {
		return "", fmt.Errorf("store: create session: %w", err)
	}
	return id, nil
}

// Append persists a single message for the given session, creating the
// session if it does not exist, and prunes beyond the retention limit.
func (s *SQLiteStore) Append(ctx context.Context, sessionID string, role Role, content string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: append: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, created_at, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		sessionID, now, now); err != nil {
		return fmt.Errorf("store: append: touch session: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, string(role), content, now); err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	if s.retain > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM messages WHERE session_id = ? AND id NOT IN (
			     SELECT id FROM messages WHERE session_id = ? ORDER BY id DESC LIMIT ?
			 )`, sessionID, sessionID, s.retain); err != nil {
			return fmt.Errorf("store: append: prune: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: append: commit: %w", err)
	}
	return nil
}

// Recent returns the most recent n messages for the session, ordered
// oldest-first. Uses a subquery to select the tail then re-order for injection.
func (s *SQLiteStore) Recent(ctx context.Context, sessionID string, n int) ([]Message, error) {
	const q = `
SELECT role, content, created_at FROM (
    SELECT id, role, content, created_at
    FROM   messages
    WHERE  session_id = ?
    ORDER  BY id DESC
    LIMIT  ?
) ORDER BY id ASC`

	msgs, err := s.queryMessages(ctx, q, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	return msgs, nil
}

// History returns every stored message for the session, oldest-first.
// It returns ErrSessionNotFound for unknown sessions.
func (s *SQLiteStore) History(ctx context.Context, sessionID string) ([]Message, error) {
	ok, err := s.Exists(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	const q = `SELECT role, content, created_at FROM messages WHERE session_id = ? ORDER BY id ASC`
	msgs, err := s.queryMessages(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: history: %w", err)
	}
	return msgs, nil
}

// queryMessages runs q and scans (role, content, created_at) rows.
func (s *SQLiteStore) queryMessages(ctx context.Context, q string, args ...any) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		var m Message
		var ts int64
		var role string
		if err := rows.Scan(&role, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		m.Role = Role(role)
		m.CreatedAt = time.UnixMilli(ts)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return msgs, nil
}

// Exists reports whether the session is known.
func (s *SQLiteStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, sessionID).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("store: exists: %w", err)
	}
	return true, nil
}

// Delete removes the session and, through the foreign key cascade, all of
// its messages. It returns ErrSessionNotFound for unknown sessions.
func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("store: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return nil
}

// List returns all sessions with their message counts, most recently
// updated first.
func (s *SQLiteStore) List(ctx context.Context) ([]Session, error) {
	const q = `
SELECT s.id, s.created_at, s.updated_at, COUNT(m.id)
FROM   sessions s
LEFT   JOIN messages m ON m.session_id = s.id
GROUP  BY s.id
ORDER  BY s.updated_at DESC, s.id ASC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		var created, updated int64
		if err := rows.Scan(&sess.ID, &created, &updated, &sess.MessageCount); err != nil {
			return nil, fmt.Errorf("store: list scan: %w", err)
		}
		sess.CreatedAt = time.UnixMilli(created)
		sess.UpdatedAt = time.UnixMilli(updated)
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list rows: %w", err)
	}
	return sessions, nil
}

// Ping verifies the database is reachable, for readiness probes.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
