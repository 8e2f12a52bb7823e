package chat

import "time"

// DefaultCategory tags sessions that were created without a topic hint.
const DefaultCategory = "general"

// Session is one conversation thread owned by a single user. The owner never
// changes after creation; UpdatedAt moves forward on every message append.
type Session struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SessionSummary augments a session with the derived message count for
// session-list rendering.
type SessionSummary struct {
	Session
	MessageCount int `json:"messageCount"`
}

// TurnResult reports the outcome of a completed user/assistant turn pair.
type TurnResult struct {
	SessionID        string  `json:"sessionId"`
	UserMessage      Message `json:"userMessage"`
	AssistantMessage Message `json:"assistantMessage"`
	IsNewSession     bool    `json:"isNewSession"`
}

// PickCurrent selects the session a reloading client should resume: the one
// with the greatest last-activity timestamp, or none for an empty list.
func PickCurrent(sessions []SessionSummary) (string, bool) {
	if len(sessions) == 0 {
		return "", false
	}
	best := 0
	for i := 1; i < len(sessions); i++ {
		if sessions[i].UpdatedAt.After(sessions[best].UpdatedAt) {
			best = i
		}
	}
	return sessions[best].ID, true
}
