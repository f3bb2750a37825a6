package cleanup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leichangqing/intelligence-intent-sub003/internal/profile"
	"github.com/leichangqing/intelligence-intent-sub003/store"
	"github.com/leichangqing/intelligence-intent-sub003/store/db/sqlite"
)

func newTestStore(t *testing.T) (*profile.Profile, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	p := &profile.Profile{
		Mode:                         "dev",
		Driver:                       "sqlite",
		Data:                         dir,
		DSN:                          filepath.Join(dir, "cleanup_test.db"),
		SessionTTLHours:              24,
		RetentionDaysConversations:   90,
		RetentionDaysAuditLogs:       30,
		RetentionDaysInvalidationLog: 7,
	}
	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	s := store.New(driver, p)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return p, s
}

func TestRunOnce(t *testing.T) {
	ctx := context.Background()
	p, s := newTestStore(t)
	now := time.Now()

	_, err := s.UpsertUser(ctx, &store.UpsertUser{ID: "u1"})
	require.NoError(t, err)

	// An overdue active session and a live one.
	stale, err := s.CreateSession(ctx, &store.Session{
		ID: "stale", UserID: "u1", State: store.SessionActive,
		Context:   map[string]any{},
		CreatedTs: now.Add(-48 * time.Hour).Unix(),
		UpdatedTs: now.Add(-48 * time.Hour).Unix(),
		ExpiresTs: now.Add(-24 * time.Hour).Unix(),
	})
	require.NoError(t, err)
	live, err := s.CreateSession(ctx, &store.Session{
		ID: "live", UserID: "u1", State: store.SessionActive,
		Context:   map[string]any{},
		CreatedTs: now.Unix(),
		UpdatedTs: now.Unix(),
		ExpiresTs: now.Add(24 * time.Hour).Unix(),
	})
	require.NoError(t, err)

	// An already expired confirmation request.
	_, err = s.CreateConfirmationRequest(ctx, &store.ConfirmationRequest{
		RequestID: "req-old", SessionID: stale.ID, Intent: "book_flight",
		ProposedSlots: map[string]string{},
		Strategy:      store.ConfirmationExplicit, Risk: store.RiskMedium,
		CreatedTs: now.Add(-time.Hour).Unix(),
		ExpiresTs: now.Add(-time.Minute).Unix(),
	})
	require.NoError(t, err)

	// A conversation turn past the retention window, and a recent one.
	_, err = s.CreateConversationTurn(ctx, &store.ConversationTurn{
		SessionID: stale.ID, UserID: "u1", TurnNumber: 1,
		UserInput: "old", Status: store.TurnCompleted,
		CreatedTs: now.AddDate(0, 0, -120).Unix(),
	})
	require.NoError(t, err)
	_, err = s.CreateConversationTurn(ctx, &store.ConversationTurn{
		SessionID: live.ID, UserID: "u1", TurnNumber: 1,
		UserInput: "recent", Status: store.TurnCompleted,
		CreatedTs: now.Unix(),
	})
	require.NoError(t, err)

	// An audit log past its shorter retention window.
	_, err = s.CreateAuditLog(ctx, &store.AuditLog{
		SessionID: stale.ID, UserID: "u1", Action: "turn",
		Detail:    map[string]any{},
		CreatedTs: now.AddDate(0, 0, -40).Unix(),
	})
	require.NoError(t, err)

	// An expired user context fact.
	_, err = s.UpsertUserContext(ctx, &store.UpsertUserContext{
		UserID: "u1", Type: store.UserContextTemporary, Key: "tmp",
		Value: "x", Scope: store.ScopeSession,
		ExpiresTs: now.Add(-time.Hour).Unix(),
	})
	require.NoError(t, err)

	NewScheduler(s, p).RunOnce(ctx)

	// The overdue session flipped to expired; the live one survived.
	staleAfter, err := s.GetSession(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, store.SessionExpired, staleAfter.State)
	liveAfter, err := s.GetSession(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, store.SessionActive, liveAfter.State)

	requestID := "req-old"
	request, err := s.GetConfirmationRequest(ctx, &store.FindConfirmationRequest{RequestID: &requestID})
	require.NoError(t, err)
	assert.Nil(t, request)

	staleID := stale.ID
	oldTurns, err := s.ListConversationTurns(ctx, &store.FindConversationTurn{SessionID: &staleID})
	require.NoError(t, err)
	assert.Empty(t, oldTurns)
	liveID := live.ID
	recentTurns, err := s.ListConversationTurns(ctx, &store.FindConversationTurn{SessionID: &liveID})
	require.NoError(t, err)
	assert.Len(t, recentTurns, 1)

	logs, err := s.ListAuditLogs(ctx, &store.FindAuditLog{SessionID: &staleID})
	require.NoError(t, err)
	assert.Empty(t, logs)

	userID := "u1"
	contexts, err := s.ListUserContexts(ctx, &store.FindUserContext{UserID: &userID})
	require.NoError(t, err)
	assert.Empty(t, contexts)
}
