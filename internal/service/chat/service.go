package chat

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oakdemir/pharmachat/internal/model/chat"
	"github.com/oakdemir/pharmachat/internal/store"
)

// Service owns session bookkeeping and the paired user/assistant turn write.
type Service struct {
	repo store.Repository
	now  func() time.Time
}

// NewService wraps the repository with transaction semantics.
func NewService(repo store.Repository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// ListSessions returns the owner's sessions, newest activity first.
func (s *Service) ListSessions(ctx context.Context, ownerID string) ([]chat.SessionSummary, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, chat.ErrNotAuthenticated
	}
	summaries, err := s.repo.ListSessions(ctx, ownerID)
	if err != nil {
		return nil, storeErr("list sessions", err)
	}
	return summaries, nil
}

// ListMessages returns the session transcript in creation order, verifying
// the caller owns the session first.
func (s *Service) ListMessages(ctx context.Context, ownerID, sessionID string) ([]chat.Message, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, chat.ErrNotAuthenticated
	}
	session, err := s.repo.SessionByID(ctx, sessionID)
	if err != nil {
		return nil, storeErr("load session", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session %s", chat.ErrNotFound, sessionID)
	}
	if session.OwnerID != ownerID {
		return nil, chat.ErrForbidden
	}
	messages, err := s.repo.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, storeErr("list messages", err)
	}
	return messages, nil
}

// CreateSession provisions a session with a normalized title. Category
// defaults to "general" when blank.
func (s *Service) CreateSession(ctx context.Context, ownerID, rawTitle, category string) (*chat.Session, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, chat.ErrNotAuthenticated
	}
	title, err := GenerateTitle(rawTitle)
	if err != nil {
		return nil, err
	}
	if category == "" {
		category = chat.DefaultCategory
	}

	now := s.now()
	session := &chat.Session{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Title:     title,
		Category:  category,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertSession(ctx, session); err != nil {
		return nil, storeErr("insert session", err)
	}
	return session, nil
}

// AppendMessage persists one message and refreshes the session's
// last-activity timestamp. A failed refresh is logged, never fatal: losing a
// display-ordering hint is acceptable, losing a message is not.
func (s *Service) AppendMessage(ctx context.Context, sessionID, role, content string) (*chat.Message, error) {
	return s.appendMessageAfter(ctx, sessionID, role, content, time.Time{})
}

// appendMessageAfter is AppendMessage with a timestamp floor: the persisted
// row is stamped strictly past after even when the clock has not advanced
// between two reads. The durable rows must stay totally ordered, so the floor
// has to be applied before the insert, not on a returned copy.
func (s *Service) appendMessageAfter(ctx context.Context, sessionID, role, content string, after time.Time) (*chat.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: empty message content", chat.ErrValidation)
	}

	session, err := s.repo.SessionByID(ctx, sessionID)
	if err != nil {
		return nil, storeErr("load session", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session %s", chat.ErrNotFound, sessionID)
	}

	createdAt := s.now()
	if !after.IsZero() && !createdAt.After(after) {
		createdAt = after.Add(time.Nanosecond)
	}

	message := &chat.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		OwnerID:   session.OwnerID,
		Role:      chat.NormalizeRole(role),
		Content:   content,
		Kind:      chat.KindNormal,
		CreatedAt: createdAt,
	}
	if err := s.repo.InsertMessage(ctx, message); err != nil {
		return nil, storeErr("insert message", err)
	}

	if err := s.repo.TouchSession(ctx, sessionID, message.CreatedAt); err != nil {
		log.Printf("[chat] failed to refresh session %s activity: %v", sessionID, err)
	}
	return message, nil
}

// CompleteTurn appends a user message and its assistant reply as one unit,
// creating the session first when sessionID is empty. The user half is
// written before the assistant half so a crash never leaves a reply without
// its prompt. When only the assistant half fails, the caller gets a
// PartialTurnError carrying the persisted user message id.
func (s *Service) CompleteTurn(ctx context.Context, ownerID, sessionID, userContent, assistantContent, titleIfNew, categoryIfNew string) (*chat.TurnResult, error) {
	if strings.TrimSpace(userContent) == "" {
		return nil, fmt.Errorf("%w: empty user content", chat.ErrValidation)
	}
	if strings.TrimSpace(assistantContent) == "" {
		return nil, fmt.Errorf("%w: empty assistant content", chat.ErrValidation)
	}

	isNew := sessionID == ""
	if isNew {
		session, err := s.CreateSession(ctx, ownerID, titleIfNew, categoryIfNew)
		if err != nil {
			return nil, err
		}
		sessionID = session.ID
	}

	userMsg, err := s.AppendMessage(ctx, sessionID, chat.RoleUser, userContent)
	if err != nil {
		return nil, err
	}

	assistantMsg, err := s.appendMessageAfter(ctx, sessionID, chat.RoleAssistant, assistantContent, userMsg.CreatedAt)
	if err != nil {
		return nil, &chat.PartialTurnError{
			SessionID:   sessionID,
			UserMessage: *userMsg,
			Err:         err,
		}
	}

	return &chat.TurnResult{
		SessionID:        sessionID,
		UserMessage:      *userMsg,
		AssistantMessage: *assistantMsg,
		IsNewSession:     isNew,
	}, nil
}

// RetryAssistant appends only the assistant half of a previously partial
// turn. The user message must already exist in the session; the retry never
// duplicates it.
func (s *Service) RetryAssistant(ctx context.Context, sessionID, userMessageID, assistantContent string) (*chat.Message, error) {
	userMsg, err := s.repo.MessageByID(ctx, userMessageID)
	if err != nil {
		return nil, storeErr("load user message", err)
	}
	if userMsg == nil || userMsg.SessionID != sessionID {
		return nil, fmt.Errorf("%w: user message %s in session %s", chat.ErrNotFound, userMessageID, sessionID)
	}
	if userMsg.Role != chat.RoleUser {
		return nil, fmt.Errorf("%w: message %s is not a user turn", chat.ErrValidation, userMessageID)
	}
	return s.appendMessageAfter(ctx, sessionID, chat.RoleAssistant, assistantContent, userMsg.CreatedAt)
}

// DeleteSession removes the owner's session with all its messages. Deleting
// another owner's session fails with ErrForbidden and changes nothing.
func (s *Service) DeleteSession(ctx context.Context, sessionID, ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return chat.ErrNotAuthenticated
	}
	session, err := s.repo.SessionByID(ctx, sessionID)
	if err != nil {
		return storeErr("load session", err)
	}
	if session == nil {
		return fmt.Errorf("%w: session %s", chat.ErrNotFound, sessionID)
	}
	if session.OwnerID != ownerID {
		return chat.ErrForbidden
	}

	deleted, err := s.repo.DeleteSession(ctx, sessionID, ownerID)
	if err != nil {
		return storeErr("delete session", err)
	}
	if !deleted {
		return chat.ErrForbidden
	}
	return nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", chat.ErrStore, op, err)
}
