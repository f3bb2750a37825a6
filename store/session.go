package store

// SessionState is the lifecycle state of a dialogue session.
type SessionState string

const (
	SessionActive    SessionState = "active"
	SessionCompleted SessionState = "completed"
	SessionExpired   SessionState = "expired"
	SessionError     SessionState = "error"
)

// Session context keys shared between orchestrator and session manager.
const (
	ContextKeyCurrentIntent      = "current_intent"
	ContextKeyIntentStack        = "intent_stack"
	ContextKeyPendingAmbiguity   = "pending_ambiguity_id"
	ContextKeyPendingConfirm     = "pending_confirmation_id"
	ContextKeyAmbiguityRetries   = "ambiguity_retry_count"
	ContextKeyLastHandlerCall    = "last_handler_call"
	ContextKeyAwaitingSlotIntent = "awaiting_slot_intent"
	ContextKeyAwaitingSlotTurn   = "awaiting_slot_turn"
)

// Session holds the per-conversation dialogue state.
// Context is a free-form map: current intent, intent stack, pending
// confirmation/ambiguity ids, feature flags.
type Session struct {
	ID        string
	UserID    string
	State     SessionState
	Context   map[string]any
	CreatedTs int64
	UpdatedTs int64
	ExpiresTs int64 // 0 means no expiry
}

// IsExpired reports whether the session has passed its expiry at the given unix time.
func (s *Session) IsExpired(now int64) bool {
	return s.ExpiresTs > 0 && now > s.ExpiresTs
}

type FindSession struct {
	ID     *string
	UserID *string
	State  *SessionState
	Limit  *int
}

type UpdateSession struct {
	ID        string
	State     *SessionState
	Context   map[string]any // full replacement when non-nil
	UpdatedTs *int64
	ExpiresTs *int64
}

type DeleteSession struct {
	ID string
}
