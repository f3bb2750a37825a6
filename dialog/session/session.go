// Package session manages dialogue session lifecycle, context recall and
// the intent stack materialized over unresumed transfers.
package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/leichangqing/intelligence-intent-sub003/internal/profile"
	"github.com/leichangqing/intelligence-intent-sub003/store"
)

// Manager resolves sessions and maintains their lifecycle.
type Manager struct {
	store   *store.Store
	profile *profile.Profile
}

// NewManager creates a session manager.
func NewManager(s *store.Store, p *profile.Profile) *Manager {
	return &Manager{store: s, profile: p}
}

// View is the loaded per-turn session context.
type View struct {
	Session *store.Session
	User    *store.User
	Created bool
	// History holds the most recent successful turns, newest first,
	// bounded by the configured window. Error turns are excluded.
	History []*store.ConversationTurn
}

// CurrentIntent reads the current intent from the session context.
func (v *View) CurrentIntent() string {
	if s, ok := v.Session.Context[store.ContextKeyCurrentIntent].(string); ok {
		return s
	}
	return ""
}

// Resolve locates or creates the session for a turn. The supplied session
// id wins when it refers to a live active session; otherwise the user's
// most recently updated active session is reused; otherwise a new session
// is created seeded with the user's preferences.
func (m *Manager) Resolve(ctx context.Context, userID, sessionID string) (*View, error) {
	now := time.Now()

	user, err := m.store.GetUser(ctx, &store.FindUser{ID: &userID})
	if err != nil {
		return nil, errors.Wrap(err, "failed to load user")
	}
	if user == nil {
		user, err = m.store.UpsertUser(ctx, &store.UpsertUser{ID: userID})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create user")
		}
	}

	if sessionID != "" {
		session, err := m.store.GetSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if session != nil && session.UserID == userID {
			if live, err := m.checkExpiry(ctx, session, now); err != nil {
				return nil, err
			} else if live {
				return m.view(ctx, session, user, false)
			}
		}
	}

	// Most recently updated active session for the user.
	activeState := store.SessionActive
	limit := 5
	sessions, err := m.store.ListSessions(ctx, &store.FindSession{
		UserID: &userID,
		State:  &activeState,
		Limit:  &limit,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list sessions")
	}
	for _, session := range sessions {
		if live, err := m.checkExpiry(ctx, session, now); err != nil {
			return nil, err
		} else if live {
			return m.view(ctx, session, user, false)
		}
	}

	created, err := m.create(ctx, user, now)
	if err != nil {
		return nil, err
	}
	return m.view(ctx, created, user, true)
}

func (m *Manager) create(ctx context.Context, user *store.User, now time.Time) (*store.Session, error) {
	initialContext := map[string]any{}
	if len(user.Preferences) > 0 {
		prefs := make(map[string]any, len(user.Preferences))
		for k, v := range user.Preferences {
			prefs[k] = v
		}
		initialContext["preferences"] = prefs
	}

	ttl := time.Duration(m.profile.SessionTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	session, err := m.store.CreateSession(ctx, &store.Session{
		ID:        shortuuid.New(),
		UserID:    user.ID,
		State:     store.SessionActive,
		Context:   initialContext,
		CreatedTs: now.Unix(),
		UpdatedTs: now.Unix(),
		ExpiresTs: now.Add(ttl).Unix(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session")
	}
	slog.Info("session created", "session", session.ID, "user", user.ID)
	return session, nil
}

// checkExpiry transitions an active session to expired when past its
// expiry, evicting it from the hot caches. Returns whether it is live.
func (m *Manager) checkExpiry(ctx context.Context, session *store.Session, now time.Time) (bool, error) {
	if session.State != store.SessionActive {
		return false, nil
	}
	if !session.IsExpired(now.Unix()) {
		return true, nil
	}
	expired := store.SessionExpired
	if _, err := m.store.UpdateSession(ctx, &store.UpdateSession{
		ID:    session.ID,
		State: &expired,
	}); err != nil {
		return false, errors.Wrap(err, "failed to expire session")
	}
	m.store.EvictSession(session.ID)
	slog.Info("session expired", "session", session.ID)
	return false, nil
}

func (m *Manager) view(ctx context.Context, session *store.Session, user *store.User, created bool) (*View, error) {
	window := m.profile.HistoryWindow
	if window <= 0 {
		window = 10
	}
	history, err := m.store.RecallHistory(ctx, session.ID, window)
	if err != nil {
		return nil, errors.Wrap(err, "failed to recall history")
	}
	return &View{Session: session, User: user, Created: created, History: history}, nil
}

// SaveContext persists the session context map and bumps updated_ts.
func (m *Manager) SaveContext(ctx context.Context, session *store.Session) error {
	updated, err := m.store.UpdateSession(ctx, &store.UpdateSession{
		ID:      session.ID,
		Context: session.Context,
	})
	if err != nil {
		return errors.Wrap(err, "failed to save session context")
	}
	session.UpdatedTs = updated.UpdatedTs
	return nil
}

// IntentStack returns the interrupted intents of a session, newest first.
// The stack is a query over unresumed user_request transfers, not a
// mutable in-memory list.
func (m *Manager) IntentStack(ctx context.Context, sessionID string) ([]*store.IntentTransfer, error) {
	return m.store.ListIntentTransfers(ctx, &store.FindIntentTransfer{
		SessionID: &sessionID,
		Unresumed: true,
	})
}

// RecordInterruption writes a user_request transfer preserving the slot
// snapshot of the interrupted intent.
func (m *Manager) RecordInterruption(ctx context.Context, sessionID, fromIntent, toIntent string, savedSlots map[string]string, confidence float64) error {
	saved := make(map[string]any, len(savedSlots))
	for k, v := range savedSlots {
		saved[k] = v
	}
	_, err := m.store.CreateIntentTransfer(ctx, &store.IntentTransfer{
		SessionID:    sessionID,
		FromIntent:   fromIntent,
		ToIntent:     toIntent,
		TransferType: store.TransferUserRequest,
		Reason:       "intent switch with incomplete slots",
		SavedContext: saved,
		Confidence:   confidence,
	})
	return err
}

// MarkResumed closes the most recent unresumed transfer from the given intent.
func (m *Manager) MarkResumed(ctx context.Context, transferID int64) error {
	now := time.Now().Unix()
	_, err := m.store.UpdateIntentTransfer(ctx, &store.UpdateIntentTransfer{
		ID:        transferID,
		ResumedTs: &now,
	})
	return err
}
