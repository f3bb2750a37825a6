package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error
	Migrate(ctx context.Context) error

	// User
	UpsertUser(ctx context.Context, upsert *UpsertUser) (*User, error)
	GetUser(ctx context.Context, find *FindUser) (*User, error)

	// Session
	CreateSession(ctx context.Context, create *Session) (*Session, error)
	ListSessions(ctx context.Context, find *FindSession) ([]*Session, error)
	UpdateSession(ctx context.Context, update *UpdateSession) (*Session, error)
	DeleteSession(ctx context.Context, delete *DeleteSession) error

	// Conversation turns
	CreateConversationTurn(ctx context.Context, create *ConversationTurn) (*ConversationTurn, error)
	ListConversationTurns(ctx context.Context, find *FindConversationTurn) ([]*ConversationTurn, error)
	DeleteConversationTurns(ctx context.Context, delete *DeleteConversationTurn) (int64, error)

	// Intent and slot configuration
	CreateIntentDefinition(ctx context.Context, create *IntentDefinition) (*IntentDefinition, error)
	ListIntentDefinitions(ctx context.Context, find *FindIntentDefinition) ([]*IntentDefinition, error)
	UpdateIntentDefinition(ctx context.Context, update *UpdateIntentDefinition) (*IntentDefinition, error)
	DeleteIntentDefinition(ctx context.Context, delete *DeleteIntentDefinition) error
	CreateSlotDefinition(ctx context.Context, create *SlotDefinition) (*SlotDefinition, error)
	ListSlotDefinitions(ctx context.Context, find *FindSlotDefinition) ([]*SlotDefinition, error)

	// Slot values
	CreateSlotValue(ctx context.Context, create *SlotValue) (*SlotValue, error)
	ListSlotValues(ctx context.Context, find *FindSlotValue) ([]*SlotValue, error)
	DeleteSlotValues(ctx context.Context, delete *DeleteSlotValue) (int64, error)

	// Ambiguities
	CreateIntentAmbiguity(ctx context.Context, create *IntentAmbiguity) (*IntentAmbiguity, error)
	ListIntentAmbiguities(ctx context.Context, find *FindIntentAmbiguity) ([]*IntentAmbiguity, error)
	UpdateIntentAmbiguity(ctx context.Context, update *UpdateIntentAmbiguity) (*IntentAmbiguity, error)

	// Intent transfers
	CreateIntentTransfer(ctx context.Context, create *IntentTransfer) (*IntentTransfer, error)
	ListIntentTransfers(ctx context.Context, find *FindIntentTransfer) ([]*IntentTransfer, error)
	UpdateIntentTransfer(ctx context.Context, update *UpdateIntentTransfer) (*IntentTransfer, error)

	// User contexts
	UpsertUserContext(ctx context.Context, upsert *UpsertUserContext) (*UserContext, error)
	ListUserContexts(ctx context.Context, find *FindUserContext) ([]*UserContext, error)
	DeleteUserContexts(ctx context.Context, delete *DeleteUserContext) (int64, error)

	// Confirmation requests
	CreateConfirmationRequest(ctx context.Context, create *ConfirmationRequest) (*ConfirmationRequest, error)
	GetConfirmationRequest(ctx context.Context, find *FindConfirmationRequest) (*ConfirmationRequest, error)
	UpdateConfirmationRequest(ctx context.Context, update *UpdateConfirmationRequest) (*ConfirmationRequest, error)
	DeleteConfirmationRequests(ctx context.Context, delete *DeleteConfirmationRequest) (int64, error)

	// Audit
	CreateAuditLog(ctx context.Context, create *AuditLog) (*AuditLog, error)
	ListAuditLogs(ctx context.Context, find *FindAuditLog) ([]*AuditLog, error)
	DeleteAuditLogs(ctx context.Context, delete *DeleteAuditLog) (int64, error)
	CreateCacheInvalidationLog(ctx context.Context, create *CacheInvalidationLog) (*CacheInvalidationLog, error)
	DeleteCacheInvalidationLogs(ctx context.Context, delete *DeleteCacheInvalidationLog) (int64, error)
}
