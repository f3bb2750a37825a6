package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/leichangqing/intelligence-intent-sub003/internal/profile"
	"github.com/leichangqing/intelligence-intent-sub003/store/cache"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	cacheConfig cache.Config

	// Caches. Session and history caches hold hot per-conversation reads;
	// writes go through the invalidation helpers below so that cache
	// invalidations for a (session_id, key) stay serialized with writes.
	sessionCache *cache.Cache // session_id -> *Session
	historyCache *cache.Cache // session_id -> []*ConversationTurn (successful turns only)
	slotCache    *cache.Cache // session_id -> compact slot snapshot
	userCache    *cache.Cache // user_id -> *User
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	cacheConfig := cache.Config{
		DefaultTTL:      10 * time.Minute,
		CleanupInterval: 5 * time.Minute,
		MaxItems:        1000,
	}

	return &Store{
		driver:       driver,
		profile:      profile,
		cacheConfig:  cacheConfig,
		sessionCache: cache.New(cacheConfig),
		historyCache: cache.New(cacheConfig),
		slotCache:    cache.New(cacheConfig),
		userCache:    cache.New(cacheConfig),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Profile() *profile.Profile {
	return s.profile
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	s.sessionCache.Close()
	s.historyCache.Close()
	s.slotCache.Close()
	s.userCache.Close()
	return s.driver.Close()
}

// ============================================================================
// Users
// ============================================================================

func (s *Store) UpsertUser(ctx context.Context, upsert *UpsertUser) (*User, error) {
	user, err := s.driver.UpsertUser(ctx, upsert)
	if err != nil {
		return nil, err
	}
	s.invalidate(s.userCache, "user", user.ID, "upsert")
	return user, nil
}

func (s *Store) GetUser(ctx context.Context, find *FindUser) (*User, error) {
	if find.ID != nil {
		if v, ok := s.userCache.Get(*find.ID); ok {
			if user, ok := v.(*User); ok {
				return user, nil
			}
		}
	}
	user, err := s.driver.GetUser(ctx, find)
	if err != nil {
		return nil, err
	}
	if user != nil {
		s.userCache.Set(user.ID, user)
	}
	return user, nil
}

// ============================================================================
// Sessions
// ============================================================================

func (s *Store) CreateSession(ctx context.Context, create *Session) (*Session, error) {
	session, err := s.driver.CreateSession(ctx, create)
	if err != nil {
		return nil, err
	}
	s.sessionCache.Set(session.ID, session)
	return session, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	if v, ok := s.sessionCache.Get(id); ok {
		if session, ok := v.(*Session); ok {
			return session, nil
		}
	}
	sessions, err := s.driver.ListSessions(ctx, &FindSession{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	s.sessionCache.Set(id, sessions[0])
	return sessions[0], nil
}

func (s *Store) ListSessions(ctx context.Context, find *FindSession) ([]*Session, error) {
	return s.driver.ListSessions(ctx, find)
}

func (s *Store) UpdateSession(ctx context.Context, update *UpdateSession) (*Session, error) {
	session, err := s.driver.UpdateSession(ctx, update)
	if err != nil {
		return nil, err
	}
	s.invalidate(s.sessionCache, "session", update.ID, "update")
	s.sessionCache.Set(session.ID, session)
	return session, nil
}

func (s *Store) DeleteSession(ctx context.Context, delete *DeleteSession) error {
	if err := s.driver.DeleteSession(ctx, delete); err != nil {
		return err
	}
	s.invalidate(s.sessionCache, "session", delete.ID, "delete")
	s.invalidate(s.historyCache, "history", delete.ID, "session delete")
	s.invalidate(s.slotCache, "slots", delete.ID, "session delete")
	return nil
}

// EvictSession drops a session from the hot caches without touching the store.
// Used when expiry is detected on access.
func (s *Store) EvictSession(id string) {
	s.invalidate(s.sessionCache, "session", id, "expired")
	s.invalidate(s.historyCache, "history", id, "expired")
	s.invalidate(s.slotCache, "slots", id, "expired")
}

// ============================================================================
// Conversation turns
// ============================================================================

func (s *Store) CreateConversationTurn(ctx context.Context, create *ConversationTurn) (*ConversationTurn, error) {
	turn, err := s.driver.CreateConversationTurn(ctx, create)
	if err != nil {
		return nil, err
	}
	// History cache holds only successful turns; any write invalidates it so
	// the next recall reconstructs from the store.
	s.invalidate(s.historyCache, "history", turn.SessionID, "turn created")
	return turn, nil
}

// ListConversationTurns reads turns directly from the store (audit path,
// includes error turns unless the find excludes them).
func (s *Store) ListConversationTurns(ctx context.Context, find *FindConversationTurn) ([]*ConversationTurn, error) {
	return s.driver.ListConversationTurns(ctx, find)
}

// RecallHistory returns the cached, bounded recent history of successful
// turns for classification context. Error turns never appear here.
func (s *Store) RecallHistory(ctx context.Context, sessionID string, window int) ([]*ConversationTurn, error) {
	if v, ok := s.historyCache.Get(sessionID); ok {
		if turns, ok := v.([]*ConversationTurn); ok {
			if len(turns) > window {
				return turns[:window], nil
			}
			return turns, nil
		}
	}
	limit := window
	turns, err := s.driver.ListConversationTurns(ctx, &FindConversationTurn{
		SessionID:     &sessionID,
		ExcludeErrors: true,
		Limit:         &limit,
	})
	if err != nil {
		return nil, err
	}
	s.historyCache.Set(sessionID, turns)
	return turns, nil
}

func (s *Store) DeleteConversationTurns(ctx context.Context, delete *DeleteConversationTurn) (int64, error) {
	return s.driver.DeleteConversationTurns(ctx, delete)
}

// ============================================================================
// Intent / slot configuration (registry reads through here)
// ============================================================================

func (s *Store) CreateIntentDefinition(ctx context.Context, create *IntentDefinition) (*IntentDefinition, error) {
	return s.driver.CreateIntentDefinition(ctx, create)
}

func (s *Store) ListIntentDefinitions(ctx context.Context, find *FindIntentDefinition) ([]*IntentDefinition, error) {
	return s.driver.ListIntentDefinitions(ctx, find)
}

func (s *Store) UpdateIntentDefinition(ctx context.Context, update *UpdateIntentDefinition) (*IntentDefinition, error) {
	return s.driver.UpdateIntentDefinition(ctx, update)
}

func (s *Store) DeleteIntentDefinition(ctx context.Context, delete *DeleteIntentDefinition) error {
	return s.driver.DeleteIntentDefinition(ctx, delete)
}

func (s *Store) CreateSlotDefinition(ctx context.Context, create *SlotDefinition) (*SlotDefinition, error) {
	return s.driver.CreateSlotDefinition(ctx, create)
}

func (s *Store) ListSlotDefinitions(ctx context.Context, find *FindSlotDefinition) ([]*SlotDefinition, error) {
	return s.driver.ListSlotDefinitions(ctx, find)
}

// ============================================================================
// Slot values
// ============================================================================

func (s *Store) CreateSlotValue(ctx context.Context, create *SlotValue) (*SlotValue, error) {
	value, err := s.driver.CreateSlotValue(ctx, create)
	if err != nil {
		return nil, err
	}
	s.invalidate(s.slotCache, "slots", value.SessionID, "slot write")
	return value, nil
}

func (s *Store) ListSlotValues(ctx context.Context, find *FindSlotValue) ([]*SlotValue, error) {
	return s.driver.ListSlotValues(ctx, find)
}

func (s *Store) DeleteSlotValues(ctx context.Context, delete *DeleteSlotValue) (int64, error) {
	n, err := s.driver.DeleteSlotValues(ctx, delete)
	if err != nil {
		return 0, err
	}
	if delete.SessionID != nil {
		s.invalidate(s.slotCache, "slots", *delete.SessionID, "slot delete")
	}
	return n, nil
}

// SlotCache exposes the per-session compact slot cache to the slot store facade.
func (s *Store) SlotCache() *cache.Cache {
	return s.slotCache
}

// ============================================================================
// Ambiguities, transfers, contexts, confirmations, audit: passthrough
// ============================================================================

func (s *Store) CreateIntentAmbiguity(ctx context.Context, create *IntentAmbiguity) (*IntentAmbiguity, error) {
	return s.driver.CreateIntentAmbiguity(ctx, create)
}

func (s *Store) ListIntentAmbiguities(ctx context.Context, find *FindIntentAmbiguity) ([]*IntentAmbiguity, error) {
	return s.driver.ListIntentAmbiguities(ctx, find)
}

func (s *Store) UpdateIntentAmbiguity(ctx context.Context, update *UpdateIntentAmbiguity) (*IntentAmbiguity, error) {
	return s.driver.UpdateIntentAmbiguity(ctx, update)
}

func (s *Store) CreateIntentTransfer(ctx context.Context, create *IntentTransfer) (*IntentTransfer, error) {
	return s.driver.CreateIntentTransfer(ctx, create)
}

func (s *Store) ListIntentTransfers(ctx context.Context, find *FindIntentTransfer) ([]*IntentTransfer, error) {
	return s.driver.ListIntentTransfers(ctx, find)
}

func (s *Store) UpdateIntentTransfer(ctx context.Context, update *UpdateIntentTransfer) (*IntentTransfer, error) {
	return s.driver.UpdateIntentTransfer(ctx, update)
}

func (s *Store) UpsertUserContext(ctx context.Context, upsert *UpsertUserContext) (*UserContext, error) {
	return s.driver.UpsertUserContext(ctx, upsert)
}

func (s *Store) ListUserContexts(ctx context.Context, find *FindUserContext) ([]*UserContext, error) {
	return s.driver.ListUserContexts(ctx, find)
}

func (s *Store) DeleteUserContexts(ctx context.Context, delete *DeleteUserContext) (int64, error) {
	return s.driver.DeleteUserContexts(ctx, delete)
}

func (s *Store) CreateConfirmationRequest(ctx context.Context, create *ConfirmationRequest) (*ConfirmationRequest, error) {
	return s.driver.CreateConfirmationRequest(ctx, create)
}

func (s *Store) GetConfirmationRequest(ctx context.Context, find *FindConfirmationRequest) (*ConfirmationRequest, error) {
	return s.driver.GetConfirmationRequest(ctx, find)
}

func (s *Store) UpdateConfirmationRequest(ctx context.Context, update *UpdateConfirmationRequest) (*ConfirmationRequest, error) {
	return s.driver.UpdateConfirmationRequest(ctx, update)
}

func (s *Store) DeleteConfirmationRequests(ctx context.Context, delete *DeleteConfirmationRequest) (int64, error) {
	return s.driver.DeleteConfirmationRequests(ctx, delete)
}

func (s *Store) CreateAuditLog(ctx context.Context, create *AuditLog) (*AuditLog, error) {
	return s.driver.CreateAuditLog(ctx, create)
}

func (s *Store) ListAuditLogs(ctx context.Context, find *FindAuditLog) ([]*AuditLog, error) {
	return s.driver.ListAuditLogs(ctx, find)
}

func (s *Store) DeleteAuditLogs(ctx context.Context, delete *DeleteAuditLog) (int64, error) {
	return s.driver.DeleteAuditLogs(ctx, delete)
}

func (s *Store) CreateCacheInvalidationLog(ctx context.Context, create *CacheInvalidationLog) (*CacheInvalidationLog, error) {
	return s.driver.CreateCacheInvalidationLog(ctx, create)
}

func (s *Store) DeleteCacheInvalidationLogs(ctx context.Context, delete *DeleteCacheInvalidationLog) (int64, error) {
	return s.driver.DeleteCacheInvalidationLogs(ctx, delete)
}

// invalidate removes a cache entry and records the invalidation.
// The log write is best effort; a full invalidation log is not worth
// failing the caller's write for.
func (s *Store) invalidate(c *cache.Cache, name, key, reason string) {
	if !c.Delete(key) {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if _, err := s.driver.CreateCacheInvalidationLog(ctx, &CacheInvalidationLog{
			CacheName: name,
			Key:       key,
			Reason:    reason,
			CreatedTs: time.Now().Unix(),
		}); err != nil {
			slog.Debug("failed to record cache invalidation", "cache", name, "key", key, "error", err)
		}
	}()
}
