// Package store provides persistence for chat sessions and messages.
package store

import (
	"context"
	"time"

	"github.com/oakdemir/pharmachat/internal/model/chat"
)

// Repository defines the interface for persisting sessions and messages.
// Every query is scoped by owner or session id; callers never see another
// tenant's rows.
type Repository interface {
	// InsertSession persists a new session row.
	InsertSession(ctx context.Context, session *chat.Session) error

	// SessionByID retrieves a session, or (nil, nil) when absent.
	SessionByID(ctx context.Context, sessionID string) (*chat.Session, error)

	// ListSessions returns the owner's sessions with derived message counts,
	// ordered by last activity descending.
	ListSessions(ctx context.Context, ownerID string) ([]chat.SessionSummary, error)

	// InsertMessage persists a message row.
	InsertMessage(ctx context.Context, message *chat.Message) error

	// MessageByID retrieves a message, or (nil, nil) when absent.
	MessageByID(ctx context.Context, messageID string) (*chat.Message, error)

	// ListMessages returns a session's messages ordered by creation time
	// ascending. An empty slice is not an error.
	ListMessages(ctx context.Context, sessionID string) ([]chat.Message, error)

	// TouchSession refreshes a session's last-activity timestamp. The stored
	// value never moves backwards.
	TouchSession(ctx context.Context, sessionID string, at time.Time) error

	// DeleteSession removes a session and all its messages in one
	// transaction, scoped to the owner. Returns whether a row was deleted.
	DeleteSession(ctx context.Context, sessionID, ownerID string) (bool, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
