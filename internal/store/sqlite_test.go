package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/oakdemir/pharmachat/internal/model/chat"
)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newSession(owner string) *chat.Session {
	now := time.Now().UTC()
	return &chat.Session{
		ID:        uuid.NewString(),
		OwnerID:   owner,
		Title:     "Test",
		Category:  chat.DefaultCategory,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newMessage(session *chat.Session, role, content string, at time.Time) *chat.Message {
	return &chat.Message{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		OwnerID:   session.OwnerID,
		Role:      role,
		Content:   content,
		Kind:      chat.KindNormal,
		CreatedAt: at,
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	session := newSession("user-1")
	if err := s.InsertSession(ctx, session); err != nil {
		t.Fatalf("InsertSession err: %v", err)
	}

	got, err := s.SessionByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("SessionByID err: %v", err)
	}
	if got == nil || got.ID != session.ID || got.OwnerID != "user-1" {
		t.Fatalf("unexpected session: %+v", got)
	}

	missing, err := s.SessionByID(ctx, "missing")
	if err != nil {
		t.Fatalf("SessionByID err: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing session, got %+v", missing)
	}
}

func TestListMessagesOrderedByCreation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	session := newSession("user-1")
	if err := s.InsertSession(ctx, session); err != nil {
		t.Fatalf("InsertSession err: %v", err)
	}

	base := time.Now().UTC()
	// Insert out of order on purpose.
	for _, offset := range []time.Duration{2 * time.Second, 0, time.Second} {
		msg := newMessage(session, chat.RoleUser, "m", base.Add(offset))
		if err := s.InsertMessage(ctx, msg); err != nil {
			t.Fatalf("InsertMessage err: %v", err)
		}
	}

	messages, err := s.ListMessages(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListMessages err: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	for i := 1; i < len(messages); i++ {
		if messages[i].CreatedAt.Before(messages[i-1].CreatedAt) {
			t.Fatalf("messages out of order at index %d", i)
		}
	}
}

func TestListSessionsCountsAndOrders(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	older := newSession("user-1")
	older.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	newer := newSession("user-1")
	foreign := newSession("user-2")

	for _, session := range []*chat.Session{older, newer, foreign} {
		if err := s.InsertSession(ctx, session); err != nil {
			t.Fatalf("InsertSession err: %v", err)
		}
	}
	if err := s.InsertMessage(ctx, newMessage(older, chat.RoleUser, "m", time.Now().UTC())); err != nil {
		t.Fatalf("InsertMessage err: %v", err)
	}

	summaries, err := s.ListSessions(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListSessions err: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(summaries))
	}
	if summaries[0].ID != newer.ID {
		t.Fatal("sessions must be ordered by last activity descending")
	}
	if summaries[1].MessageCount != 1 || summaries[0].MessageCount != 0 {
		t.Fatalf("unexpected message counts: %d / %d", summaries[0].MessageCount, summaries[1].MessageCount)
	}
}

func TestTouchSessionMonotonic(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	session := newSession("user-1")
	if err := s.InsertSession(ctx, session); err != nil {
		t.Fatalf("InsertSession err: %v", err)
	}

	future := session.UpdatedAt.Add(time.Minute)
	if err := s.TouchSession(ctx, session.ID, future); err != nil {
		t.Fatalf("TouchSession err: %v", err)
	}
	// A stale touch must not move the timestamp backwards.
	if err := s.TouchSession(ctx, session.ID, session.UpdatedAt.Add(-time.Minute)); err != nil {
		t.Fatalf("TouchSession err: %v", err)
	}

	got, err := s.SessionByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("SessionByID err: %v", err)
	}
	if !got.UpdatedAt.Equal(future) {
		t.Fatalf("expected %v, got %v", future, got.UpdatedAt)
	}
}

func TestTouchSessionMissing(t *testing.T) {
	s := newStore(t)
	if err := s.TouchSession(context.Background(), "missing", time.Now()); err == nil {
		t.Fatal("expected error for missing session")
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	session := newSession("user-1")
	if err := s.InsertSession(ctx, session); err != nil {
		t.Fatalf("InsertSession err: %v", err)
	}
	if err := s.InsertMessage(ctx, newMessage(session, chat.RoleUser, "m", time.Now().UTC())); err != nil {
		t.Fatalf("InsertMessage err: %v", err)
	}

	deleted, err := s.DeleteSession(ctx, session.ID, "user-1")
	if err != nil {
		t.Fatalf("DeleteSession err: %v", err)
	}
	if !deleted {
		t.Fatal("expected deletion")
	}

	messages, err := s.ListMessages(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListMessages err: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("expected no surviving messages, got %d", len(messages))
	}
}

func TestDeleteSessionCrossOwnerLeavesData(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	session := newSession("user-1")
	if err := s.InsertSession(ctx, session); err != nil {
		t.Fatalf("InsertSession err: %v", err)
	}
	if err := s.InsertMessage(ctx, newMessage(session, chat.RoleUser, "m", time.Now().UTC())); err != nil {
		t.Fatalf("InsertMessage err: %v", err)
	}

	deleted, err := s.DeleteSession(ctx, session.ID, "user-2")
	if err != nil {
		t.Fatalf("DeleteSession err: %v", err)
	}
	if deleted {
		t.Fatal("cross-owner delete must not remove anything")
	}

	messages, err := s.ListMessages(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListMessages err: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected the message to survive, got %d", len(messages))
	}
}
