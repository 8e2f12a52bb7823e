package chat

import (
	"errors"
	"fmt"
)

// Failure taxonomy shared by the store, services, controller and handlers.
var (
	ErrValidation       = errors.New("validation failed")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrGateway          = errors.New("completion gateway failed")
	ErrTimeout          = errors.New("completion timed out")
	ErrStore            = errors.New("store failure")
	ErrPartialTurn      = errors.New("partial turn")
)

// PartialTurnError reports a turn whose user half was durably written before
// the assistant half failed. Callers must retry only the assistant half;
// UserMessage is the prompt row exactly as persisted.
type PartialTurnError struct {
	SessionID   string
	UserMessage Message
	Err         error
}

func (e *PartialTurnError) Error() string {
	return fmt.Sprintf("partial turn in session %s (user message %s persisted): %v", e.SessionID, e.UserMessage.ID, e.Err)
}

func (e *PartialTurnError) Unwrap() error { return e.Err }

// Is matches ErrPartialTurn so errors.Is works without unwrapping to Err.
func (e *PartialTurnError) Is(target error) bool { return target == ErrPartialTurn }
