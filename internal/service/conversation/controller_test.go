package conversation_test

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/oakdemir/pharmachat/internal/model/chat"
	chatservice "github.com/oakdemir/pharmachat/internal/service/chat"
	"github.com/oakdemir/pharmachat/internal/service/conversation"
	"github.com/oakdemir/pharmachat/internal/store"
)

// fakeGateway scripts the completion provider.
type fakeGateway struct {
	reply     string
	err       error
	deltas    []string
	streamErr error
	block     chan struct{}
}

func (g *fakeGateway) Generate(ctx context.Context, _ string, _ []chat.Message, _ string) (string, error) {
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return g.reply, g.err
}

func (g *fakeGateway) Stream(_ context.Context, _ string, _ []chat.Message, _ string) (chat.TokenStream, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &fakeStream{deltas: g.deltas, finalErr: g.streamErr}, nil
}

type fakeStream struct {
	deltas   []string
	idx      int
	finalErr error
}

func (s *fakeStream) Recv() (string, error) {
	if s.idx < len(s.deltas) {
		delta := s.deltas[s.idx]
		s.idx++
		return delta, nil
	}
	if s.finalErr != nil {
		return "", s.finalErr
	}
	return "", io.EOF
}

func (s *fakeStream) Close() {}

type assistantInsertFailer struct {
	store.Repository
	fail bool
}

func (r *assistantInsertFailer) InsertMessage(ctx context.Context, message *chat.Message) error {
	if r.fail && message.Role == chat.RoleAssistant {
		return errors.New("injected insert failure")
	}
	return r.Repository.InsertMessage(ctx, message)
}

func newService(t *testing.T) (*chatservice.Service, *assistantInsertFailer) {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	failer := &assistantInsertFailer{Repository: repo}
	return chatservice.NewService(failer), failer
}

func newController(t *testing.T, gateway conversation.Gateway) (*conversation.Controller, *chatservice.Service, *assistantInsertFailer) {
	t.Helper()
	svc, failer := newService(t)
	ctrl := conversation.NewController("user-1", svc, gateway, 5*time.Second)
	return ctrl, svc, failer
}

func TestSendMessageNewUserCreatesSession(t *testing.T) {
	ctrl, svc, _ := newController(t, &fakeGateway{reply: "Aspirin bir ağrı kesicidir."})
	ctx := context.Background()

	result, err := ctrl.SendMessage(ctx, "Aspirin ne işe yarar?")
	if err != nil {
		t.Fatalf("SendMessage err: %v", err)
	}
	if !result.IsNewSession {
		t.Fatal("expected a new session")
	}
	if ctrl.CurrentSession() != result.SessionID {
		t.Fatal("controller must adopt the new session id")
	}
	if ctrl.State() != conversation.StateIdle {
		t.Fatalf("expected idle state, got %s", ctrl.State())
	}

	entries := ctrl.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	for _, entry := range entries {
		if entry.Pending {
			t.Fatal("no pending entry may survive reconciliation")
		}
	}

	sessions, err := svc.ListSessions(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListSessions err: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].Title != "Aspirin ne işe yarar?" {
		t.Fatalf("unexpected title: %q", sessions[0].Title)
	}
	if sessions[0].MessageCount != 2 {
		t.Fatalf("expected 2 messages, got %d", sessions[0].MessageCount)
	}
}

func TestSendMessageEmptyReplyFailsWithoutSession(t *testing.T) {
	ctrl, svc, _ := newController(t, &fakeGateway{reply: "   "})
	ctx := context.Background()

	_, err := ctrl.SendMessage(ctx, "Soru?")
	if !errors.Is(err, chat.ErrGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if len(ctrl.Entries()) != 0 {
		t.Fatal("optimistic entry must be purged on failure")
	}

	sessions, err := svc.ListSessions(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListSessions err: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("no session should exist, got %d", len(sessions))
	}
}

func TestSendMessageGatewayFailurePurgesOptimistic(t *testing.T) {
	ctrl, _, _ := newController(t, &fakeGateway{err: errors.New("provider exploded")})

	_, err := ctrl.SendMessage(context.Background(), "Soru?")
	if err == nil {
		t.Fatal("expected an error")
	}
	if len(ctrl.Entries()) != 0 {
		t.Fatal("optimistic entry must be purged on failure")
	}
	if ctrl.State() != conversation.StateFailed {
		t.Fatalf("expected failed state, got %s", ctrl.State())
	}
	if ctrl.LastError() == nil {
		t.Fatal("failure must be surfaced")
	}
}

func TestSendMessageRejectsEmptyText(t *testing.T) {
	ctrl, _, _ := newController(t, &fakeGateway{reply: "x"})

	if _, err := ctrl.SendMessage(context.Background(), "  \n "); !errors.Is(err, chat.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSendMessageRejectsConcurrentInvocation(t *testing.T) {
	gateway := &fakeGateway{reply: "Yanıt.", block: make(chan struct{})}
	ctrl, _, _ := newController(t, gateway)

	done := make(chan error, 1)
	go func() {
		_, err := ctrl.SendMessage(context.Background(), "İlk mesaj")
		done <- err
	}()

	// Wait for the first send to reach the gateway.
	deadline := time.After(2 * time.Second)
	for ctrl.State() != conversation.StateAwaitingCompletion {
		select {
		case <-deadline:
			t.Fatal("controller never reached awaiting-completion")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if _, err := ctrl.SendMessage(context.Background(), "İkinci mesaj"); !errors.Is(err, chat.ErrValidation) {
		t.Fatalf("expected validation error for concurrent send, got %v", err)
	}

	close(gateway.block)
	if err := <-done; err != nil {
		t.Fatalf("first send failed: %v", err)
	}
}

func TestReconciliationKeepsEntryCountStable(t *testing.T) {
	ctrl, _, _ := newController(t, &fakeGateway{reply: "İlk yanıt."})
	ctx := context.Background()

	if _, err := ctrl.SendMessage(ctx, "İlk soru?"); err != nil {
		t.Fatalf("SendMessage err: %v", err)
	}
	before := len(ctrl.Entries())

	if _, err := ctrl.SendMessage(ctx, "İkinci soru?"); err != nil {
		t.Fatalf("SendMessage err: %v", err)
	}
	// One transient removed, one persisted user and one assistant added.
	if got := len(ctrl.Entries()); got != before+2 {
		t.Fatalf("expected %d entries, got %d", before+2, got)
	}
}

func TestSelectSessionNotInLoadedList(t *testing.T) {
	ctrl, _, _ := newController(t, &fakeGateway{reply: "x"})

	err := ctrl.SelectSession(context.Background(), "unknown")
	if !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestSelectSessionLoadsTranscript(t *testing.T) {
	ctrl, svc, _ := newController(t, &fakeGateway{reply: "x"})
	ctx := context.Background()

	result, err := svc.CompleteTurn(ctx, "user-1", "", "Soru?", "Yanıt.", "Soru?", "")
	if err != nil {
		t.Fatalf("CompleteTurn err: %v", err)
	}

	if err := ctrl.RefreshSessions(ctx); err != nil {
		t.Fatalf("RefreshSessions err: %v", err)
	}
	if err := ctrl.SelectSession(ctx, result.SessionID); err != nil {
		t.Fatalf("SelectSession err: %v", err)
	}

	entries := ctrl.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Role != chat.RoleUser || entries[1].Role != chat.RoleAssistant {
		t.Fatalf("unexpected roles: %s / %s", entries[0].Role, entries[1].Role)
	}
}

func TestDeleteSelectedSessionResetsController(t *testing.T) {
	ctrl, _, _ := newController(t, &fakeGateway{reply: "Yanıt."})
	ctx := context.Background()

	result, err := ctrl.SendMessage(ctx, "Soru?")
	if err != nil {
		t.Fatalf("SendMessage err: %v", err)
	}

	if err := ctrl.DeleteSession(ctx, result.SessionID); err != nil {
		t.Fatalf("DeleteSession err: %v", err)
	}
	if ctrl.CurrentSession() != "" {
		t.Fatal("deleting the selected session must reset to a fresh chat")
	}
	if len(ctrl.Entries()) != 0 {
		t.Fatal("entries must be cleared")
	}
}

func TestPartialTurnRetriesOnlyAssistantHalf(t *testing.T) {
	ctrl, svc, failer := newController(t, &fakeGateway{reply: "Yanıt."})
	ctx := context.Background()

	failer.fail = true
	_, err := ctrl.SendMessage(ctx, "Soru?")
	var partial *chat.PartialTurnError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialTurnError, got %v", err)
	}

	entries := ctrl.Entries()
	if len(entries) != 1 || entries[0].Pending || entries[0].ID != partial.UserMessage.ID {
		t.Fatalf("expected the persisted user half in entries, got %+v", entries)
	}
	if !entries[0].CreatedAt.Equal(partial.UserMessage.CreatedAt) {
		t.Fatal("entry must carry the persisted timestamp, not a fresh one")
	}
	if ctrl.CurrentSession() != partial.SessionID {
		t.Fatal("controller must adopt the session the user half landed in")
	}

	failer.fail = false
	msg, err := ctrl.RetryAssistant(ctx)
	if err != nil {
		t.Fatalf("RetryAssistant err: %v", err)
	}
	if msg.Role != chat.RoleAssistant {
		t.Fatalf("unexpected role: %s", msg.Role)
	}

	messages, err := svc.ListMessages(ctx, "user-1", partial.SessionID)
	if err != nil {
		t.Fatalf("ListMessages err: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("retry must not duplicate the user turn, got %d messages", len(messages))
	}
	if ctrl.State() != conversation.StateIdle {
		t.Fatalf("expected idle state after retry, got %s", ctrl.State())
	}
}

func TestRetryAssistantWithoutPartialTurn(t *testing.T) {
	ctrl, _, _ := newController(t, &fakeGateway{reply: "x"})

	if _, err := ctrl.RetryAssistant(context.Background()); !errors.Is(err, chat.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestResumeLatestPicksMostRecentSession(t *testing.T) {
	ctrl, svc, _ := newController(t, &fakeGateway{reply: "x"})
	ctx := context.Background()

	older, err := svc.CompleteTurn(ctx, "user-1", "", "Eski soru?", "Eski yanıt.", "Eski soru?", "")
	if err != nil {
		t.Fatalf("CompleteTurn err: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	newer, err := svc.CompleteTurn(ctx, "user-1", "", "Yeni soru?", "Yeni yanıt.", "Yeni soru?", "")
	if err != nil {
		t.Fatalf("CompleteTurn err: %v", err)
	}

	if err := ctrl.ResumeLatest(ctx); err != nil {
		t.Fatalf("ResumeLatest err: %v", err)
	}
	if ctrl.CurrentSession() != newer.SessionID {
		t.Fatalf("expected %s, got %s (older %s)", newer.SessionID, ctrl.CurrentSession(), older.SessionID)
	}
}

func TestResumeLatestEmptyListStartsFresh(t *testing.T) {
	ctrl, _, _ := newController(t, &fakeGateway{reply: "x"})

	if err := ctrl.ResumeLatest(context.Background()); err != nil {
		t.Fatalf("ResumeLatest err: %v", err)
	}
	if ctrl.CurrentSession() != "" {
		t.Fatal("empty session list must leave no selection")
	}
}
