package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/oakdemir/pharmachat/internal/model/chat"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository at the given path.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// WAL mode keeps readers unblocked while a turn is being written.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT 'general',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_owner_activity ON sessions(owner_id, updated_at);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'normal',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session_created ON messages(session_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InsertSession persists a new session row.
func (s *SQLiteStore) InsertSession(ctx context.Context, session *chat.Session) error {
	query := `
	INSERT INTO sessions (id, owner_id, title, category, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		session.ID, session.OwnerID, session.Title, session.Category,
		session.CreatedAt.UnixNano(), session.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// SessionByID retrieves a session by identifier.
func (s *SQLiteStore) SessionByID(ctx context.Context, sessionID string) (*chat.Session, error) {
	query := `
		SELECT id, owner_id, title, category, created_at, updated_at
		FROM sessions WHERE id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID)

	var session chat.Session
	var createdAt, updatedAt int64

	err := row.Scan(&session.ID, &session.OwnerID, &session.Title, &session.Category, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	session.CreatedAt = time.Unix(0, createdAt)
	session.UpdatedAt = time.Unix(0, updatedAt)
	return &session, nil
}

// ListSessions returns the owner's sessions newest-activity first.
func (s *SQLiteStore) ListSessions(ctx context.Context, ownerID string) ([]chat.SessionSummary, error) {
	query := `
		SELECT s.id, s.owner_id, s.title, s.category, s.created_at, s.updated_at,
		       COUNT(m.id)
		FROM sessions s
		LEFT JOIN messages m ON m.session_id = s.id
		WHERE s.owner_id = ?
		GROUP BY s.id
		ORDER BY s.updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	summaries := make([]chat.SessionSummary, 0, 16)
	for rows.Next() {
		var summary chat.SessionSummary
		var createdAt, updatedAt int64
		if err := rows.Scan(
			&summary.ID, &summary.OwnerID, &summary.Title, &summary.Category,
			&createdAt, &updatedAt, &summary.MessageCount,
		); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		summary.CreatedAt = time.Unix(0, createdAt)
		summary.UpdatedAt = time.Unix(0, updatedAt)
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return summaries, nil
}

// InsertMessage persists a message row.
func (s *SQLiteStore) InsertMessage(ctx context.Context, message *chat.Message) error {
	query := `
	INSERT INTO messages (id, session_id, owner_id, role, content, kind, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		message.ID, message.SessionID, message.OwnerID,
		message.Role, message.Content, message.Kind,
		message.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// MessageByID retrieves a message by identifier.
func (s *SQLiteStore) MessageByID(ctx context.Context, messageID string) (*chat.Message, error) {
	query := `
		SELECT id, session_id, owner_id, role, content, kind, created_at
		FROM messages WHERE id = ?`

	row := s.db.QueryRowContext(ctx, query, messageID)

	var message chat.Message
	var createdAt int64

	err := row.Scan(&message.ID, &message.SessionID, &message.OwnerID, &message.Role, &message.Content, &message.Kind, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan message row: %w", err)
	}

	message.CreatedAt = time.Unix(0, createdAt)
	return &message, nil
}

// ListMessages returns a session's messages in creation order.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]chat.Message, error) {
	query := `
		SELECT id, session_id, owner_id, role, content, kind, created_at
		FROM messages WHERE session_id = ?
		ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]chat.Message, 0, 32)
	for rows.Next() {
		var message chat.Message
		var createdAt int64
		if err := rows.Scan(
			&message.ID, &message.SessionID, &message.OwnerID,
			&message.Role, &message.Content, &message.Kind, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		message.CreatedAt = time.Unix(0, createdAt)
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// TouchSession refreshes updated_at; MAX keeps the timestamp monotonic when
// appends land out of order.
func (s *SQLiteStore) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	query := `UPDATE sessions SET updated_at = MAX(updated_at, ?) WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, at.UnixNano(), sessionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("touch session: no session %s", sessionID)
	}
	return nil
}

// DeleteSession removes the owner's session and its messages atomically.
// Messages go first so a failed commit can never leave orphaned rows.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID, ownerID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE session_id = ? AND owner_id = ?`,
		sessionID, ownerID,
	); err != nil {
		return false, fmt.Errorf("delete messages: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = ? AND owner_id = ?`,
		sessionID, ownerID,
	)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		// Nothing owned by this user; leave everything untouched.
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete tx: %w", err)
	}
	return true, nil
}
