package chat

import "time"

// Message roles. Older clients persisted assistant turns under "system";
// NormalizeRole folds that synonym away.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	legacyRoleSystem = "system"
)

// KindNormal is the only message kind currently produced.
const KindNormal = "normal"

// Message is a single persisted turn. Messages are immutable once stored and
// totally ordered within a session by CreatedAt.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	OwnerID   string    `json:"ownerId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"createdAt"`
}

// NormalizeRole maps the legacy "system" sender onto assistant for display
// and leaves everything else untouched.
func NormalizeRole(role string) string {
	if role == legacyRoleSystem {
		return RoleAssistant
	}
	return role
}

// TokenStream yields incremental completion deltas. Recv returns io.EOF when
// the provider has finished; Close releases the underlying stream.
type TokenStream interface {
	Recv() (string, error)
	Close()
}
