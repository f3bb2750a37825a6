package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leichangqing/intelligence-intent-sub003/dialog/metrics"
	"github.com/leichangqing/intelligence-intent-sub003/dialog/registry"
	"github.com/leichangqing/intelligence-intent-sub003/internal/profile"
	"github.com/leichangqing/intelligence-intent-sub003/store"
	"github.com/leichangqing/intelligence-intent-sub003/store/db/sqlite"
)

func newTestEnv(t *testing.T) (*profile.Profile, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	p := &profile.Profile{
		Mode:                        "dev",
		Driver:                      "sqlite",
		Data:                        dir,
		DSN:                         filepath.Join(dir, "intentd_test.db"),
		IntentConfidenceThreshold:   0.70,
		AmbiguityDetectionThreshold: 0.15,
		ConfidenceHigh:              0.85,
		ConfidenceMedium:            0.70,
		ConfidenceLow:               0.55,
		ConfidenceReject:            0.40,
		SessionTTLHours:             24,
		HistoryWindow:               10,
		TurnTimeoutMS:               30000,
		HandlerDefaultTimeoutMS:     2000,
	}

	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	s := store.New(driver, p)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return p, s
}

// quiesceSeedHandlers makes the seeded mock services deterministic: always
// succeed, no artificial latency.
func quiesceSeedHandlers(t *testing.T, s *store.Store) {
	t.Helper()
	ctx := context.Background()
	for _, name := range []string{"book_flight", "book_train", "check_weather"} {
		intentName := name
		defs, err := s.ListIntentDefinitions(ctx, &store.FindIntentDefinition{Name: &intentName})
		require.NoError(t, err)
		require.Len(t, defs, 1)

		config := defs[0].HandlerConfig
		config["success_rate"] = 1.0
		config["latency_ms"] = 0
		_, err = s.UpdateIntentDefinition(ctx, &store.UpdateIntentDefinition{
			ID:            defs[0].ID,
			HandlerConfig: config,
		})
		require.NoError(t, err)
	}
}

func newTestOrchestrator(t *testing.T, p *profile.Profile, s *store.Store) *Orchestrator {
	t.Helper()
	reg := registry.New(s)
	require.NoError(t, reg.Warmup(context.Background()))
	return New(p, s, reg, metrics.NewExporter(metrics.DefaultConfig()))
}

func TestHandleTurn_BookingFlow(t *testing.T) {
	ctx := context.Background()
	p, s := newTestEnv(t)
	quiesceSeedHandlers(t, s)
	o := newTestOrchestrator(t, p, s)

	// Turn 1: intent recognized, required slots missing.
	r1, err := o.HandleTurn(ctx, "u1", "", "我要订机票")
	require.NoError(t, err)
	assert.Equal(t, store.TurnIncomplete, r1.Status)
	assert.Equal(t, "book_flight", r1.Intent)
	assert.Equal(t, ActionCollectMissingSlots, r1.NextAction)
	assert.Contains(t, r1.MissingSlots, "departure_city")
	assert.Contains(t, r1.MissingSlots, "departure_date")
	assert.NotEmpty(t, r1.SessionID)
	assert.Equal(t, int32(1), r1.TurnNumber)
	// The optional passenger count defaults immediately.
	assert.Equal(t, "1", r1.Slots["passenger_count"])

	sid := r1.SessionID

	// Turn 2: one utterance supplies the rest, triggering confirmation.
	r2, err := o.HandleTurn(ctx, "u1", sid, "从北京到上海,明天出发")
	require.NoError(t, err)
	assert.Equal(t, store.TurnAwaitingConfirmation, r2.Status)
	assert.Equal(t, ActionUserConfirmation, r2.NextAction)
	assert.Equal(t, store.ResponseConfirmationPrompt, r2.ResponseType)
	assert.Equal(t, "北京", r2.Slots["departure_city"])
	assert.Equal(t, "上海", r2.Slots["arrival_city"])
	tomorrow := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	assert.Equal(t, tomorrow, r2.Slots["departure_date"])

	// Turn 3: a modification re-opens the confirmation with the new date.
	r3, err := o.HandleTurn(ctx, "u1", sid, "改成后天")
	require.NoError(t, err)
	assert.Equal(t, store.TurnAwaitingConfirmation, r3.Status)
	dayAfter := time.Now().AddDate(0, 0, 2).Format("2006-01-02")
	assert.Equal(t, dayAfter, r3.Slots["departure_date"])

	// Turn 4: confirm executes the booking.
	r4, err := o.HandleTurn(ctx, "u1", sid, "确认")
	require.NoError(t, err)
	assert.Equal(t, store.TurnCompleted, r4.Status)
	assert.Equal(t, store.ResponseAPIResult, r4.ResponseType)
	assert.Equal(t, ActionNone, r4.NextAction)
	orderID, _ := r4.APIResult["order_id"].(string)
	require.True(t, strings.HasPrefix(orderID, "FL"))
	assert.Contains(t, r4.Response, orderID)

	// Turn 5: switching to the order query prompts for the order number.
	r5, err := o.HandleTurn(ctx, "u1", sid, "查一下我的订单")
	require.NoError(t, err)
	assert.Equal(t, store.TurnIncomplete, r5.Status)
	assert.Equal(t, "query_order", r5.Intent)
	assert.Equal(t, []string{"order_id"}, r5.MissingSlots)

	// Turn 6: the bare order number fills the slot and executes.
	r6, err := o.HandleTurn(ctx, "u1", sid, orderID)
	require.NoError(t, err)
	assert.Equal(t, store.TurnCompleted, r6.Status)
	assert.Equal(t, "query_order", r6.Intent)
	assert.NotEmpty(t, r6.APIResult["status"])
	assert.Equal(t, int32(6), r6.TurnNumber)

	// Exactly one conversation record per turn.
	turns, err := s.ListConversationTurns(ctx, &store.FindConversationTurn{SessionID: &sid})
	require.NoError(t, err)
	assert.Len(t, turns, 6)
}

func TestHandleTurn_QueriedOrderResolvesAgainstBooking(t *testing.T) {
	ctx := context.Background()
	p, s := newTestEnv(t)
	quiesceSeedHandlers(t, s)
	o := newTestOrchestrator(t, p, s)

	// Seed the order through the database handler's read path directly.
	_, err := s.UpsertUserContext(ctx, &store.UpsertUserContext{
		UserID: "u2",
		Type:   store.UserContextHistory,
		Key:    "order:AB123456",
		Value:  `{"order_id":"AB123456","status":"已出票"}`,
		Scope:  store.ScopeGlobal,
	})
	require.NoError(t, err)

	r, err := o.HandleTurn(ctx, "u2", "", "查一下我的订单 AB123456")
	require.NoError(t, err)
	assert.Equal(t, store.TurnCompleted, r.Status)
	assert.Equal(t, "query_order", r.Intent)
	assert.Equal(t, "已出票", r.APIResult["status"])
	assert.Contains(t, r.Response, "AB123456")
}

func seedAccountIntents(t *testing.T, s *store.Store) {
	t.Helper()
	ctx := context.Background()
	intents := []*store.IntentDefinition{
		{
			Name:                "query_balance",
			DisplayName:         "余额查询",
			ConfidenceThreshold: 0.60,
			Priority:            8,
			Category:            "query",
			IsActive:            true,
			Examples:            []string{"处理一下我的账户"},
			HandlerType:         store.HandlerMockService,
			HandlerConfig:       map[string]any{"service": "balance"},
		},
		{
			Name:                "query_bill",
			DisplayName:         "账单查询",
			ConfidenceThreshold: 0.60,
			Priority:            7,
			Category:            "query",
			IsActive:            true,
			Examples:            []string{"处理一下我的账户"},
			HandlerType:         store.HandlerMockService,
			HandlerConfig:       map[string]any{"service": "billing"},
		},
	}
	for _, intent := range intents {
		_, err := s.CreateIntentDefinition(ctx, intent)
		require.NoError(t, err)
	}
}

func TestHandleTurn_AmbiguityClarification(t *testing.T) {
	ctx := context.Background()
	p, s := newTestEnv(t)
	seedAccountIntents(t, s)
	o := newTestOrchestrator(t, p, s)

	r1, err := o.HandleTurn(ctx, "u3", "", "处理一下我的账户")
	require.NoError(t, err)
	assert.Equal(t, store.TurnAmbiguous, r1.Status)
	assert.Equal(t, ActionUserChoice, r1.NextAction)
	assert.Contains(t, r1.Response, "请回复序号")
	require.Len(t, r1.AmbiguousIntents, 2)
	// Equal confidence falls back to intent priority.
	assert.Equal(t, "query_balance", r1.AmbiguousIntents[0].Name)
	assert.Equal(t, "query_bill", r1.AmbiguousIntents[1].Name)

	sid := r1.SessionID

	r2, err := o.HandleTurn(ctx, "u3", sid, "2")
	require.NoError(t, err)
	assert.Equal(t, store.TurnCompleted, r2.Status)
	assert.Equal(t, "query_bill", r2.Intent)

	rows, err := s.ListIntentAmbiguities(ctx, &store.FindIntentAmbiguity{SessionID: &sid})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Resolved)
	assert.Equal(t, "query_bill", rows[0].ResolvedIntent)
	assert.Equal(t, store.ResolutionUserChoice, rows[0].ResolutionMethod)
	assert.Equal(t, "2", rows[0].UserChoice)
}

func TestHandleTurn_AmbiguityReasksThenEscalates(t *testing.T) {
	ctx := context.Background()
	p, s := newTestEnv(t)
	seedAccountIntents(t, s)
	o := newTestOrchestrator(t, p, s)

	r1, err := o.HandleTurn(ctx, "u4", "", "处理一下我的账户")
	require.NoError(t, err)
	require.Equal(t, store.TurnAmbiguous, r1.Status)
	sid := r1.SessionID

	// Two unclear replies re-ask the same question.
	for i := 0; i < 2; i++ {
		r, err := o.HandleTurn(ctx, "u4", sid, "叽里咕噜")
		require.NoError(t, err)
		assert.Equal(t, store.TurnAmbiguous, r.Status)
		assert.Equal(t, r1.Response, r.Response)
	}

	// The third gives up on the clarification and reclassifies the input.
	r, err := o.HandleTurn(ctx, "u4", sid, "叽里咕噜")
	require.NoError(t, err)
	assert.Equal(t, store.TurnNonIntentInput, r.Status)

	rows, err := s.ListIntentAmbiguities(ctx, &store.FindIntentAmbiguity{SessionID: &sid})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Resolved)
	assert.Equal(t, store.ResolutionEscalate, rows[0].ResolutionMethod)
	assert.Empty(t, rows[0].ResolvedIntent)
}

func TestHandleTurn_CancelConfirmation(t *testing.T) {
	ctx := context.Background()
	p, s := newTestEnv(t)
	quiesceSeedHandlers(t, s)
	o := newTestOrchestrator(t, p, s)

	r1, err := o.HandleTurn(ctx, "u5", "", "我要订机票")
	require.NoError(t, err)
	sid := r1.SessionID

	r2, err := o.HandleTurn(ctx, "u5", sid, "从北京到上海,明天出发")
	require.NoError(t, err)
	require.Equal(t, store.TurnAwaitingConfirmation, r2.Status)

	r3, err := o.HandleTurn(ctx, "u5", sid, "取消")
	require.NoError(t, err)
	assert.Equal(t, store.TurnCancelled, r3.Status)
	assert.Equal(t, store.ResponseCancellation, r3.ResponseType)
	assert.Equal(t, ActionNone, r3.NextAction)
}

func TestHandleTurn_TransientFailureAndRetry(t *testing.T) {
	ctx := context.Background()
	p, s := newTestEnv(t)

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := s.CreateIntentDefinition(ctx, &store.IntentDefinition{
		Name:                "sync_data",
		DisplayName:         "同步数据",
		ConfidenceThreshold: 0.60,
		Priority:            5,
		Category:            "query",
		IsActive:            true,
		Examples:            []string{"同步数据"},
		HandlerType:         store.HandlerAPICall,
		HandlerConfig:       map[string]any{"url": server.URL},
	})
	require.NoError(t, err)
	o := newTestOrchestrator(t, p, s)

	r1, err := o.HandleTurn(ctx, "u6", "", "同步数据")
	require.NoError(t, err)
	assert.Equal(t, store.TurnAPIError, r1.Status)
	assert.Equal(t, ActionRetry, r1.NextAction)
	assert.Contains(t, r1.Response, "再试一次")

	// The retry phrase replays the last handler call without reclassifying.
	r2, err := o.HandleTurn(ctx, "u6", r1.SessionID, "再试一次")
	require.NoError(t, err)
	assert.Equal(t, store.TurnAPIError, r2.Status)
	assert.Equal(t, "sync_data", r2.Intent)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHandleTurn_NonIntentInput(t *testing.T) {
	ctx := context.Background()
	p, s := newTestEnv(t)
	o := newTestOrchestrator(t, p, s)

	r, err := o.HandleTurn(ctx, "u7", "", "blablabla")
	require.NoError(t, err)
	assert.Equal(t, store.TurnNonIntentInput, r.Status)
	assert.Equal(t, store.ResponseErrorWithAlternatives, r.ResponseType)
	assert.Equal(t, ActionClarification, r.NextAction)
	assert.Contains(t, r.Response, "抱歉")
}

func TestHandleTurn_RejectsEmptyInput(t *testing.T) {
	ctx := context.Background()
	p, s := newTestEnv(t)
	o := newTestOrchestrator(t, p, s)

	_, err := o.HandleTurn(ctx, "u8", "", "   ")
	assert.Error(t, err)
	_, err = o.HandleTurn(ctx, "", "", "你好")
	assert.Error(t, err)
}

func TestHandleTurn_IntentSwitchDuringSlotFilling(t *testing.T) {
	ctx := context.Background()
	p, s := newTestEnv(t)
	quiesceSeedHandlers(t, s)
	o := newTestOrchestrator(t, p, s)

	r1, err := o.HandleTurn(ctx, "u9", "", "我要订机票")
	require.NoError(t, err)
	require.Equal(t, store.TurnIncomplete, r1.Status)
	sid := r1.SessionID

	// A full utterance of another intent is an intent switch, not a value
	// for the slot being collected.
	r2, err := o.HandleTurn(ctx, "u9", sid, "查一下我的订单")
	require.NoError(t, err)
	assert.Equal(t, "query_order", r2.Intent)
	assert.Equal(t, store.TurnIncomplete, r2.Status)
	assert.Equal(t, []string{"order_id"}, r2.MissingSlots)
	assert.NotContains(t, r2.Slots, "departure_city")

	transfers, err := s.ListIntentTransfers(ctx, &store.FindIntentTransfer{SessionID: &sid, Unresumed: true})
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, "book_flight", transfers[0].FromIntent)
	assert.Equal(t, "query_order", transfers[0].ToIntent)

	// Returning to the interrupted intent resumes it and restores its
	// saved slot snapshot.
	r3, err := o.HandleTurn(ctx, "u9", sid, "我要订机票")
	require.NoError(t, err)
	assert.Equal(t, "book_flight", r3.Intent)
	assert.Equal(t, store.TurnIncomplete, r3.Status)
	assert.Equal(t, "1", r3.Slots["passenger_count"])

	transfers, err = s.ListIntentTransfers(ctx, &store.FindIntentTransfer{SessionID: &sid, Unresumed: true})
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, "query_order", transfers[0].FromIntent)

	slotName := "passenger_count"
	rows, err := s.ListSlotValues(ctx, &store.FindSlotValue{SessionID: &sid, SlotName: &slotName})
	require.NoError(t, err)
	migrated := false
	for _, row := range rows {
		if row.ExtractionMethod == store.ExtractionMigration {
			migrated = true
		}
	}
	assert.True(t, migrated, "resume should restore the saved slot snapshot")
}

func TestHandleTurn_BareSlotFillStillWorks(t *testing.T) {
	ctx := context.Background()
	p, s := newTestEnv(t)
	quiesceSeedHandlers(t, s)
	o := newTestOrchestrator(t, p, s)

	r1, err := o.HandleTurn(ctx, "u10", "", "我要订机票")
	require.NoError(t, err)
	require.Equal(t, store.TurnIncomplete, r1.Status)
	sid := r1.SessionID

	// A bare city name that also appears inside other intents' example
	// utterances still binds to the awaiting slot.
	r2, err := o.HandleTurn(ctx, "u10", sid, "北京")
	require.NoError(t, err)
	assert.Equal(t, "book_flight", r2.Intent)
	assert.Equal(t, store.TurnIncomplete, r2.Status)
	assert.Equal(t, "北京", r2.Slots["departure_city"])

	slotName := "departure_city"
	rows, err := s.ListSlotValues(ctx, &store.FindSlotValue{SessionID: &sid, SlotName: &slotName})
	require.NoError(t, err)
	supplemented := false
	for _, row := range rows {
		if row.ExtractionMethod == store.ExtractionSupplement {
			supplemented = true
		}
	}
	assert.True(t, supplemented)
}

func TestResolveAmbiguityChoice(t *testing.T) {
	ctx := context.Background()
	p, s := newTestEnv(t)
	seedAccountIntents(t, s)
	o := newTestOrchestrator(t, p, s)

	r1, err := o.HandleTurn(ctx, "u11", "", "处理一下我的账户")
	require.NoError(t, err)
	require.Equal(t, store.TurnAmbiguous, r1.Status)
	sid := r1.SessionID

	pending, err := s.ListIntentAmbiguities(ctx, &store.FindIntentAmbiguity{SessionID: &sid})
	require.NoError(t, err)
	require.Len(t, pending, 1)

	resolution, err := o.ResolveAmbiguityChoice(ctx, pending[0].ID, "2")
	require.NoError(t, err)
	require.NotNil(t, resolution)
	assert.True(t, resolution.Resolved)
	assert.Equal(t, "query_bill", resolution.Intent)

	rows, err := s.ListIntentAmbiguities(ctx, &store.FindIntentAmbiguity{SessionID: &sid})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Resolved)
	assert.Equal(t, "query_bill", rows[0].ResolvedIntent)
	assert.Equal(t, store.ResolutionUserChoice, rows[0].ResolutionMethod)

	// Resolving the same row again reports nothing pending.
	again, err := o.ResolveAmbiguityChoice(ctx, pending[0].ID, "1")
	require.NoError(t, err)
	assert.Nil(t, again)

	// The session no longer treats the next input as a clarification
	// answer.
	r2, err := o.HandleTurn(ctx, "u11", sid, "1")
	require.NoError(t, err)
	assert.Equal(t, store.TurnNonIntentInput, r2.Status)
}

func TestHandleTurn_ConcurrentTurnsSerialized(t *testing.T) {
	ctx := context.Background()
	p, s := newTestEnv(t)
	o := newTestOrchestrator(t, p, s)

	r1, err := o.HandleTurn(ctx, "u12", "", "随便聊聊")
	require.NoError(t, err)
	sid := r1.SessionID

	inputs := []string{"哈哈哈哈", "呵呵呵呵"}
	results := make([]*TurnResult, len(inputs))
	errs := make([]error, len(inputs))
	var wg sync.WaitGroup
	for i := range inputs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = o.HandleTurn(ctx, "u12", sid, inputs[i])
		}(i)
	}
	wg.Wait()

	seen := map[int32]bool{r1.TurnNumber: true}
	for i := range inputs {
		require.NoError(t, errs[i])
		assert.Equal(t, sid, results[i].SessionID)
		assert.False(t, seen[results[i].TurnNumber], "turn number %d assigned twice", results[i].TurnNumber)
		seen[results[i].TurnNumber] = true
	}
	assert.Equal(t, map[int32]bool{1: true, 2: true, 3: true}, seen)

	turns, err := s.ListConversationTurns(ctx, &store.FindConversationTurn{SessionID: &sid})
	require.NoError(t, err)
	assert.Len(t, turns, 3)
}

func TestSessionSlotsAndIntentStats(t *testing.T) {
	ctx := context.Background()
	p, s := newTestEnv(t)
	quiesceSeedHandlers(t, s)
	o := newTestOrchestrator(t, p, s)

	r1, err := o.HandleTurn(ctx, "u13", "", "我要订机票")
	require.NoError(t, err)

	wire, err := o.SessionSlots(ctx, r1.SessionID)
	require.NoError(t, err)
	require.Len(t, wire, 1)
	assert.Equal(t, "passenger_count", wire[0].Name)
	assert.Equal(t, "1", wire[0].Value)

	stats, err := o.IntentStats(ctx, "book_flight")
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, "book_flight", stats.Intent)
	assert.Greater(t, stats.Threshold, 0.0)
	assert.Zero(t, stats.Samples)

	unknown, err := o.IntentStats(ctx, "no_such_intent")
	require.NoError(t, err)
	assert.Nil(t, unknown)
}
