// Package conversation holds the per-client session state machine: it keeps
// the in-memory message list, performs optimistic insertion, drives the
// completion gateway and reconciles results through the transaction service.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oakdemir/pharmachat/internal/analysis/topic"
	"github.com/oakdemir/pharmachat/internal/model/chat"
	chatservice "github.com/oakdemir/pharmachat/internal/service/chat"
)

// State of the controller round trip. SendMessage is rejected while a
// request is in flight; Failed behaves as ready so the next send recovers.
type State int

const (
	StateIdle State = iota
	StateAwaitingCompletion
	StateReconciling
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingCompletion:
		return "awaiting-completion"
	case StateReconciling:
		return "reconciling"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Entry is one row of the in-memory message list. Pending entries are
// optimistic: shown immediately, correlated with their durable counterpart
// by TxnID and replaced on reconciliation.
type Entry struct {
	chat.Message
	Pending bool   `json:"pending,omitempty"`
	TxnID   string `json:"txnId,omitempty"`
}

// Gateway is the completion provider seam.
type Gateway interface {
	Generate(ctx context.Context, ownerID string, history []chat.Message, userText string) (string, error)
	Stream(ctx context.Context, ownerID string, history []chat.Message, userText string) (chat.TokenStream, error)
}

// Controller drives one client's conversation.
type Controller struct {
	ownerID string
	svc     *chatservice.Service
	gateway Gateway
	timeout time.Duration

	mu        sync.Mutex
	state     State
	lastErr   error
	sessionID string
	entries   []Entry
	sessions  []chat.SessionSummary
	retry     *pendingRetry
}

// pendingRetry remembers a partial turn: the user half is durable, only the
// assistant half still needs persisting.
type pendingRetry struct {
	sessionID        string
	userMessageID    string
	assistantContent string
}

// NewController builds a controller for one owner. timeout bounds each
// gateway call.
func NewController(ownerID string, svc *chatservice.Service, gateway Gateway, timeout time.Duration) *Controller {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Controller{
		ownerID: ownerID,
		svc:     svc,
		gateway: gateway,
		timeout: timeout,
		state:   StateIdle,
	}
}

// State returns the current round-trip state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the error surfaced by the most recent failed operation.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// CurrentSession returns the selected session id, "" for a fresh chat.
func (c *Controller) CurrentSession() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Entries returns a copy of the in-memory message list.
func (c *Controller) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Entry(nil), c.entries...)
}

// Sessions returns a copy of the loaded session list.
func (c *Controller) Sessions() []chat.SessionSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]chat.SessionSummary(nil), c.sessions...)
}

// RefreshSessions reloads the owner's session list.
func (c *Controller) RefreshSessions(ctx context.Context) error {
	sessions, err := c.svc.ListSessions(ctx, c.ownerID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.sessions = sessions
	c.mu.Unlock()
	return nil
}

// ResumeLatest applies the reload rule: select the session with the greatest
// last-activity timestamp, or start fresh when the list is empty.
func (c *Controller) ResumeLatest(ctx context.Context) error {
	if err := c.RefreshSessions(ctx); err != nil {
		return err
	}
	id, ok := chat.PickCurrent(c.Sessions())
	if !ok {
		c.StartNewChat()
		return nil
	}
	return c.SelectSession(ctx, id)
}

// SelectSession switches to a session from the already-loaded list and pulls
// its transcript. A stale list yields ErrNotFound; the caller should refresh
// the list rather than retry blindly.
func (c *Controller) SelectSession(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	if c.state == StateAwaitingCompletion || c.state == StateReconciling {
		c.mu.Unlock()
		return fmt.Errorf("%w: a message is in flight", chat.ErrValidation)
	}
	found := false
	for _, summary := range c.sessions {
		if summary.ID == sessionID {
			found = true
			break
		}
	}
	c.mu.Unlock()
	if !found {
		return fmt.Errorf("%w: session %s not in loaded list", chat.ErrNotFound, sessionID)
	}

	messages, err := c.svc.ListMessages(ctx, c.ownerID, sessionID)
	if err != nil {
		return err
	}

	entries := make([]Entry, 0, len(messages))
	for _, msg := range messages {
		msg.Role = chat.NormalizeRole(msg.Role)
		entries = append(entries, Entry{Message: msg})
	}

	c.mu.Lock()
	c.sessionID = sessionID
	c.entries = entries
	c.state = StateIdle
	c.lastErr = nil
	c.retry = nil
	c.mu.Unlock()
	return nil
}

// StartNewChat resets to a fresh, session-less idle state.
func (c *Controller) StartNewChat() {
	c.mu.Lock()
	c.sessionID = ""
	c.entries = nil
	c.state = StateIdle
	c.lastErr = nil
	c.retry = nil
	c.mu.Unlock()
}

// DeleteSession removes a session; deleting the selected one resets the
// controller to a fresh chat.
func (c *Controller) DeleteSession(ctx context.Context, sessionID string) error {
	if err := c.svc.DeleteSession(ctx, sessionID, c.ownerID); err != nil {
		return err
	}

	c.mu.Lock()
	kept := c.sessions[:0]
	for _, summary := range c.sessions {
		if summary.ID != sessionID {
			kept = append(kept, summary)
		}
	}
	c.sessions = kept
	wasCurrent := c.sessionID == sessionID
	c.mu.Unlock()

	if wasCurrent {
		c.StartNewChat()
	}
	return nil
}

// SendMessage runs one full round trip: optimistic insert, gateway call,
// atomic turn persistence, reconciliation. Concurrent sends are rejected.
func (c *Controller) SendMessage(ctx context.Context, text string) (*chat.TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty message", chat.ErrValidation)
	}

	txnID, sessionID, history, err := c.begin(text)
	if err != nil {
		return nil, err
	}

	gctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reply, err := c.gateway.Generate(gctx, c.ownerID, history, text)
	if err != nil {
		return nil, c.fail(txnID, err)
	}
	if strings.TrimSpace(reply) == "" {
		return nil, c.fail(txnID, fmt.Errorf("%w: provider returned empty reply", chat.ErrGateway))
	}

	c.setState(StateReconciling)
	return c.persistTurn(ctx, txnID, sessionID, text, reply)
}

// RetryAssistant re-attempts only the assistant half of a partial turn. The
// user message is never resent.
func (c *Controller) RetryAssistant(ctx context.Context) (*chat.Message, error) {
	c.mu.Lock()
	if c.retry == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: no partial turn to retry", chat.ErrValidation)
	}
	retry := *c.retry
	c.mu.Unlock()

	msg, err := c.svc.RetryAssistant(ctx, retry.sessionID, retry.userMessageID, retry.assistantContent)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries = append(c.entries, Entry{Message: *msg})
	c.retry = nil
	c.state = StateIdle
	c.lastErr = nil
	c.mu.Unlock()

	c.refreshSessionsQuiet(ctx)
	return msg, nil
}

// begin inserts the optimistic user entry and snapshots the persisted
// history for the gateway call.
func (c *Controller) begin(text string) (txnID, sessionID string, history []chat.Message, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateAwaitingCompletion || c.state == StateReconciling {
		return "", "", nil, fmt.Errorf("%w: a message is already in flight", chat.ErrValidation)
	}

	txnID = uuid.NewString()
	c.entries = append(c.entries, Entry{
		Message: chat.Message{
			SessionID: c.sessionID,
			OwnerID:   c.ownerID,
			Role:      chat.RoleUser,
			Content:   text,
			Kind:      chat.KindNormal,
			CreatedAt: time.Now().UTC(),
		},
		Pending: true,
		TxnID:   txnID,
	})

	for _, entry := range c.entries {
		if !entry.Pending {
			history = append(history, entry.Message)
		}
	}

	c.state = StateAwaitingCompletion
	c.lastErr = nil
	return txnID, c.sessionID, history, nil
}

// persistTurn writes the turn pair and reconciles the optimistic entry.
func (c *Controller) persistTurn(ctx context.Context, txnID, sessionID, userText, reply string) (*chat.TurnResult, error) {
	category := string(topic.Classify(userText))
	result, err := c.svc.CompleteTurn(ctx, c.ownerID, sessionID, userText, reply, userText, category)
	if err != nil {
		var partial *chat.PartialTurnError
		if errors.As(err, &partial) {
			c.notePartial(txnID, partial, reply)
			return nil, err
		}
		return nil, c.fail(txnID, err)
	}

	c.mu.Lock()
	c.dropEntry(txnID)
	c.entries = append(c.entries,
		Entry{Message: result.UserMessage},
		Entry{Message: result.AssistantMessage},
	)
	if result.IsNewSession {
		c.sessionID = result.SessionID
	}
	c.state = StateIdle
	c.lastErr = nil
	c.retry = nil
	c.mu.Unlock()

	c.refreshSessionsQuiet(ctx)
	return result, nil
}

// notePartial reconciles the durable user half and stashes the assistant
// content so RetryAssistant can finish the turn without resending the user
// message. The entry adopts the persisted row as-is so the transcript agrees
// with a later reload.
func (c *Controller) notePartial(txnID string, partial *chat.PartialTurnError, reply string) {
	c.mu.Lock()
	c.dropEntry(txnID)
	c.entries = append(c.entries, Entry{Message: partial.UserMessage})
	if c.sessionID == "" {
		c.sessionID = partial.SessionID
	}
	c.retry = &pendingRetry{
		sessionID:        partial.SessionID,
		userMessageID:    partial.UserMessage.ID,
		assistantContent: reply,
	}
	c.state = StateFailed
	c.lastErr = partial
	c.mu.Unlock()
}

// fail purges the optimistic entry and surfaces the error. No assistant
// placeholder survives a failed round trip.
func (c *Controller) fail(txnID string, err error) error {
	c.mu.Lock()
	c.dropEntry(txnID)
	c.state = StateFailed
	c.lastErr = err
	c.mu.Unlock()
	return err
}

// dropEntry removes the entry correlated by txn id. Caller holds c.mu.
func (c *Controller) dropEntry(txnID string) {
	kept := c.entries[:0]
	for _, entry := range c.entries {
		if entry.TxnID != txnID {
			kept = append(kept, entry)
		}
	}
	c.entries = kept
}

func (c *Controller) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// refreshSessionsQuiet updates the session list after a successful write;
// list staleness is tolerable, so failures are only logged.
func (c *Controller) refreshSessionsQuiet(ctx context.Context) {
	if err := c.RefreshSessions(ctx); err != nil {
		log.Printf("[conversation] failed to refresh session list for owner=%s: %v", c.ownerID, err)
	}
}
