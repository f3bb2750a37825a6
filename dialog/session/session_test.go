package session

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

func newTestManager(t *testing.T) (*Manager, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	p := &profile.Profile{
		Mode:            "dev",
		Driver:          "sqlite",
		Data:            dir,
		DSN:             filepath.Join(dir, "session_test.db"),
		SessionTTLHours: 24,
		HistoryWindow:   10,
	}
	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	s := store.New(driver, p)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return NewManager(s, p), s
}

func TestResolve_CreatesUserAndSession(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	view, err := m.Resolve(ctx, "alice", "")
	require.NoError(t, err)

	assert.True(t, view.Created)
	assert.Equal(t, "alice", view.User.ID)
	assert.Equal(t, store.UserTypeNovice, view.User.Type)
	assert.Equal(t, store.SessionActive, view.Session.State)
	assert.Greater(t, view.Session.ExpiresTs, time.Now().Unix())
	assert.Empty(t, view.History)
}

func TestResolve_ReusesActiveSession(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	first, err := m.Resolve(ctx, "alice", "")
	require.NoError(t, err)
	second, err := m.Resolve(ctx, "alice", "")
	require.NoError(t, err)

	assert.False(t, second.Created)
	assert.Equal(t, first.Session.ID, second.Session.ID)
}

func TestResolve_SessionIDOfAnotherUserIgnored(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	alice, err := m.Resolve(ctx, "alice", "")
	require.NoError(t, err)

	bob, err := m.Resolve(ctx, "bob", alice.Session.ID)
	require.NoError(t, err)
	assert.True(t, bob.Created)
	assert.NotEqual(t, alice.Session.ID, bob.Session.ID)
}

func TestResolve_ExpiredSessionReplaced(t *testing.T) {
	ctx := context.Background()
	m, s := newTestManager(t)
	now := time.Now()

	_, err := s.UpsertUser(ctx, &store.UpsertUser{ID: "alice"})
	require.NoError(t, err)
	overdue, err := s.CreateSession(ctx, &store.Session{
		ID: "overdue", UserID: "alice", State: store.SessionActive,
		Context:   map[string]any{},
		CreatedTs: now.Add(-48 * time.Hour).Unix(),
		UpdatedTs: now.Add(-48 * time.Hour).Unix(),
		ExpiresTs: now.Add(-time.Hour).Unix(),
	})
	require.NoError(t, err)

	view, err := m.Resolve(ctx, "alice", overdue.ID)
	require.NoError(t, err)

	assert.True(t, view.Created)
	assert.NotEqual(t, overdue.ID, view.Session.ID)

	after, err := s.GetSession(ctx, overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, store.SessionExpired, after.State)
}

func TestSaveContext(t *testing.T) {
	ctx := context.Background()
	m, s := newTestManager(t)

	view, err := m.Resolve(ctx, "alice", "")
	require.NoError(t, err)
	view.Session.Context[store.ContextKeyCurrentIntent] = "book_flight"
	require.NoError(t, m.SaveContext(ctx, view.Session))

	s.EvictSession(view.Session.ID)
	reloaded, err := s.GetSession(ctx, view.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, "book_flight", reloaded.Context[store.ContextKeyCurrentIntent])
}

func TestIntentStack(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	view, err := m.Resolve(ctx, "alice", "")
	require.NoError(t, err)
	sessionID := view.Session.ID

	require.NoError(t, m.RecordInterruption(ctx, sessionID, "book_flight", "check_weather",
		map[string]string{"departure_city": "北京"}, 0.9))
	require.NoError(t, m.RecordInterruption(ctx, sessionID, "check_weather", "book_train",
		nil, 0.8))

	stack, err := m.IntentStack(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, stack, 2)
	// Newest interruption first.
	assert.Equal(t, "check_weather", stack[0].FromIntent)
	assert.Equal(t, "book_flight", stack[1].FromIntent)
	assert.Equal(t, "北京", stack[1].SavedContext["departure_city"])
	assert.True(t, stack[1].IsInterruption())

	require.NoError(t, m.MarkResumed(ctx, stack[0].ID))
	stack, err = m.IntentStack(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, stack, 1)
	assert.Equal(t, "book_flight", stack[0].FromIntent)
}
