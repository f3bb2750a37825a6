package store

// UserContextType scopes a stored user fact.
type UserContextType string

const (
	UserContextPreference UserContextType = "preference"
	UserContextHistory    UserContextType = "history"
	UserContextProfile    UserContextType = "profile"
	UserContextSession    UserContextType = "session"
	UserContextTemporary  UserContextType = "temporary"
)

// ContextScope is the visibility of a user context row.
type ContextScope string

const (
	ScopeGlobal       ContextScope = "global"
	ScopeSession      ContextScope = "session"
	ScopeConversation ContextScope = "conversation"
)

// UserContext is a scoped key-value fact about a user.
// Unique on (user_id, type, key).
type UserContext struct {
	ID        int64
	UserID    string
	Type      UserContextType
	Key       string
	Value     string
	Scope     ContextScope
	Priority  int32
	IsActive  bool
	CreatedTs int64
	UpdatedTs int64
	ExpiresTs int64 // 0 means no expiry
}

type FindUserContext struct {
	UserID   *string
	Type     *UserContextType
	Key      *string
	IsActive *bool
}

// UpsertUserContext inserts or replaces on the (user_id, type, key) natural key.
type UpsertUserContext struct {
	UserID    string
	Type      UserContextType
	Key       string
	Value     string
	Scope     ContextScope
	Priority  int32
	ExpiresTs int64
}

type DeleteUserContext struct {
	UserID     *string
	ExpiredAt  *int64 // delete rows whose expires_ts is non-zero and before this
	BatchLimit int
}
