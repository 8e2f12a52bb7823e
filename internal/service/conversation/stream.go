package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/oakdemir/pharmachat/internal/model/chat"
)

// Stream event types. Exactly one terminal event (complete or error) ends
// every stream; a cancelled stream emits no terminal event because the
// client is gone.
type EventType string

const (
	EventChunk    EventType = "chunk"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// StreamEvent is one JSON payload of the incremental delivery protocol.
// Chunk carries the delta plus the authoritative cumulative text; error
// carries a user-facing message, a diagnostic detail meant for logs only,
// and a machine-readable code when the failure has a dedicated recovery.
type StreamEvent struct {
	Type        EventType `json:"-"`
	Content     string    `json:"content"`
	FullContent string    `json:"fullContent,omitempty"`
	Error       string    `json:"error,omitempty"`
	Code        string    `json:"code,omitempty"`
}

// CodePartialTurn on a terminal error event tells the client the user half is
// durable and the assistant half can be re-requested via the retry endpoint.
const CodePartialTurn = "partial_turn"

// Outcome is the terminal result of a streaming round trip.
type Outcome string

const (
	OutcomeComplete  Outcome = "complete"
	OutcomeError     Outcome = "error"
	OutcomeCancelled Outcome = "cancelled"
)

// genericFailureMessage is what end users see when a stream fails; the
// diagnostic detail stays in the error field and the logs.
const genericFailureMessage = "Yanıt oluşturulamadı. Lütfen tekrar deneyin."

// partialFailureMessage covers the partial-turn case: the question is saved,
// only the reply needs to be re-requested.
const partialFailureMessage = "Yanıt kaydedilemedi. Lütfen yanıtı tekrar isteyin."

// SendMessageStream runs one round trip with incremental delivery: the same
// optimistic insert and persistence path as SendMessage, with chunk events
// emitted between invocation and reconciliation. send is called once per
// event; a send failure is treated as client departure and cancels the turn.
func (c *Controller) SendMessageStream(ctx context.Context, text string, send func(StreamEvent) error) (Outcome, *chat.TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return OutcomeError, nil, fmt.Errorf("%w: empty message", chat.ErrValidation)
	}

	txnID, sessionID, history, err := c.begin(text)
	if err != nil {
		return OutcomeError, nil, err
	}

	gctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stream, err := c.gateway.Stream(gctx, c.ownerID, history, text)
	if err != nil {
		return c.streamFailed(txnID, err, send)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		delta, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			if errors.Is(recvErr, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				return c.streamCancelled(txnID, recvErr)
			}
			return c.streamFailed(txnID, gatewayRecvErr(gctx, recvErr), send)
		}
		if delta == "" {
			continue
		}

		full.WriteString(delta)
		event := StreamEvent{Type: EventChunk, Content: delta, FullContent: full.String()}
		if sendErr := send(event); sendErr != nil {
			return c.streamCancelled(txnID, sendErr)
		}
	}

	reply := strings.TrimSpace(full.String())
	if reply == "" {
		return c.streamFailed(txnID, fmt.Errorf("%w: provider returned empty stream", chat.ErrGateway), send)
	}

	c.setState(StateReconciling)
	result, err := c.persistTurn(ctx, txnID, sessionID, text, reply)
	if err != nil {
		// persistTurn already purged or reconciled the optimistic state.
		sendErrorEvent(send, err)
		return OutcomeError, nil, err
	}

	event := StreamEvent{Type: EventComplete, Content: reply, FullContent: reply}
	if sendErr := send(event); sendErr != nil {
		// The turn is durable; only the notification was lost.
		return OutcomeComplete, result, nil
	}
	return OutcomeComplete, result, nil
}

// streamFailed purges the optimistic entry and emits the single terminal
// error event.
func (c *Controller) streamFailed(txnID string, err error, send func(StreamEvent) error) (Outcome, *chat.TurnResult, error) {
	c.fail(txnID, err)
	sendErrorEvent(send, err)
	return OutcomeError, nil, err
}

// streamCancelled purges the optimistic entry without emitting events; the
// consumer initiated the shutdown.
func (c *Controller) streamCancelled(txnID string, err error) (Outcome, *chat.TurnResult, error) {
	c.fail(txnID, err)
	return OutcomeCancelled, nil, err
}

func sendErrorEvent(send func(StreamEvent) error, err error) {
	event := StreamEvent{
		Type:    EventError,
		Content: genericFailureMessage,
		Error:   err.Error(),
	}
	if errors.Is(err, chat.ErrPartialTurn) {
		event.Code = CodePartialTurn
		event.Content = partialFailureMessage
	}
	_ = send(event)
}

// gatewayRecvErr classifies a mid-stream receive failure.
func gatewayRecvErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", chat.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", chat.ErrGateway, err)
}
