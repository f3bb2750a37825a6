// Package orchestrator drives the per-turn state machine: session
// resolution, pending disambiguation and confirmation handling, intent
// classification, slot filling, and handler execution.
package orchestrator

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/leichangqing/intelligence-intent-sub003/dialog/choice"
	"github.com/leichangqing/intelligence-intent-sub003/dialog/confidence"
	"github.com/leichangqing/intelligence-intent-sub003/dialog/confirm"
	"github.com/leichangqing/intelligence-intent-sub003/dialog/handler"
	"github.com/leichangqing/intelligence-intent-sub003/dialog/kb"
	"github.com/leichangqing/intelligence-intent-sub003/dialog/metrics"
	"github.com/leichangqing/intelligence-intent-sub003/dialog/nlu"
	"github.com/leichangqing/intelligence-intent-sub003/dialog/registry"
	"github.com/leichangqing/intelligence-intent-sub003/dialog/resolver"
	"github.com/leichangqing/intelligence-intent-sub003/dialog/session"
	"github.com/leichangqing/intelligence-intent-sub003/dialog/slots"
	"github.com/leichangqing/intelligence-intent-sub003/internal/profile"
	"github.com/leichangqing/intelligence-intent-sub003/store"
)

// Next-action hints carried in turn results.
const (
	ActionCollectMissingSlots = "collect_missing_slots"
	ActionUserChoice          = "user_choice"
	ActionUserConfirmation    = "user_confirmation"
	ActionExecuteFunction     = "execute_function"
	ActionRetry               = "retry"
	ActionClarification       = "clarification"
	ActionNone                = "none"
)

// maxAmbiguityRetries bounds how often an unclear choice re-asks the same
// clarification before the ambiguity is abandoned.
const maxAmbiguityRetries = 3

// slotSupplementWindow is how many turns back an awaiting_slot turn may
// lie for bare input to still count as a slot supplement.
const slotSupplementWindow = 5

var retryPhrases = []string{"再试一次", "重试", "retry"}

// TurnResult is the outcome of one handled turn.
type TurnResult struct {
	RequestID        string                  `json:"request_id"`
	SessionID        string                  `json:"session_id"`
	TurnNumber       int32                   `json:"conversation_turn"`
	Response         string                  `json:"response"`
	ResponseType     store.ResponseType      `json:"response_type"`
	Status           store.TurnStatus        `json:"status"`
	Intent           string                  `json:"intent,omitempty"`
	Confidence       float64                 `json:"confidence"`
	Slots            map[string]string       `json:"slots"`
	NextAction       string                  `json:"next_action"`
	MissingSlots     []string                `json:"missing_slots,omitempty"`
	ValidationErrors []string                `json:"validation_errors,omitempty"`
	AmbiguousIntents []store.CandidateIntent `json:"ambiguous_intents,omitempty"`
	APIResult        map[string]any          `json:"api_result,omitempty"`
	ElapsedMS        int64                   `json:"elapsed_ms"`
}

// Orchestrator composes the dialogue subsystems into the turn pipeline.
type Orchestrator struct {
	profile    *profile.Profile
	store      *store.Store
	registry   *registry.Registry
	recognizer nlu.Recognizer
	sessions   *session.Manager
	slots      *slots.SlotStore
	confidence *confidence.Manager
	detector   *confidence.Detector
	resolver   *resolver.Resolver
	confirm    *confirm.Manager
	dispatcher *handler.Dispatcher
	kb         *kb.Client
	metrics    *metrics.Exporter
	choices    *choice.Patterns

	// Per-session turn serialization. At most one in-flight turn per
	// session id; concurrent callers queue on the session mutex.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New wires the orchestrator from its subsystems.
func New(p *profile.Profile, s *store.Store, reg *registry.Registry, exporter *metrics.Exporter) *Orchestrator {
	return &Orchestrator{
		profile:    p,
		store:      s,
		registry:   reg,
		recognizer: nlu.NewRecognizer(p),
		sessions:   session.NewManager(s, p),
		slots:      slots.NewSlotStore(s),
		confidence: confidence.NewManager(p),
		detector:   confidence.NewDetector(p),
		resolver:   resolver.New(),
		confirm:    confirm.NewManager(s, p),
		dispatcher: handler.NewDispatcher(p, s),
		kb:         kb.NewClient(p),
		metrics:    exporter,
		choices:    choice.NewPatterns(),
		locks:      make(map[string]*sync.Mutex),
	}
}

func (o *Orchestrator) lockSession(sessionID string) func() {
	o.mu.Lock()
	lock, ok := o.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[sessionID] = lock
	}
	o.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

// HandleTurn processes one user utterance end-to-end and persists exactly
// one conversation record, error branches included.
func (o *Orchestrator) HandleTurn(ctx context.Context, userID, sessionID, input string) (*TurnResult, error) {
	start := time.Now()
	input = strings.TrimSpace(input)
	if userID == "" || input == "" {
		return nil, errors.New("user id and input are required")
	}

	timeout := time.Duration(o.profile.TurnTimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	view, err := o.sessions.Resolve(ctx, userID, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve session")
	}
	unlock := o.lockSession(view.Session.ID)
	defer unlock()

	snap, err := o.registry.Current(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load intent registry")
	}

	turnNumber, err := o.nextTurnNumber(ctx, view.Session.ID)
	if err != nil {
		return nil, err
	}

	t := &turn{
		view:       view,
		snap:       snap,
		input:      input,
		now:        start,
		turnNumber: turnNumber,
		requestID:  uuid.NewString(),
	}

	result := o.process(ctx, t)
	result.RequestID = t.requestID
	result.SessionID = view.Session.ID
	result.TurnNumber = turnNumber
	result.ElapsedMS = time.Since(start).Milliseconds()
	if result.Slots == nil {
		result.Slots = map[string]string{}
	}

	if err := o.finish(ctx, t, result); err != nil {
		slog.Error("failed to finalize turn", "session", view.Session.ID, "error", err)
	}
	o.metrics.RecordTurn(string(result.Status), time.Since(start))
	return result, nil
}

// turn is the mutable per-request state threaded through the pipeline.
type turn struct {
	view       *session.View
	snap       *registry.Snapshot
	input      string
	now        time.Time
	turnNumber int32
	requestID  string
}

func (t *turn) sessionID() string { return t.view.Session.ID }
func (t *turn) userID() string    { return t.view.User.ID }

func (t *turn) contextString(key string) string {
	if s, ok := t.view.Session.Context[key].(string); ok {
		return s
	}
	return ""
}

func (t *turn) contextInt(key string) int64 {
	switch v := t.view.Session.Context[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func (t *turn) setContext(key string, value any) {
	if t.view.Session.Context == nil {
		t.view.Session.Context = map[string]any{}
	}
	t.view.Session.Context[key] = value
}

func (t *turn) clearContext(keys ...string) {
	for _, key := range keys {
		delete(t.view.Session.Context, key)
	}
}

// recentIntents returns successfully recognized intents, most recent first.
func (t *turn) recentIntents() []string {
	var intents []string
	for _, record := range t.view.History {
		if record.RecognizedIntent != "" && record.RecognizedIntent != nlu.IntentUnknown {
			intents = append(intents, record.RecognizedIntent)
		}
	}
	return intents
}

// historyInputs returns recent user inputs, oldest first, for NLU context.
func (t *turn) historyInputs() []string {
	inputs := make([]string, 0, len(t.view.History))
	for i := len(t.view.History) - 1; i >= 0; i-- {
		inputs = append(inputs, t.view.History[i].UserInput)
	}
	return inputs
}

// process picks the first matching transition: pending disambiguation,
// slot supplement, confirmation reply, handler retry, then classification.
func (o *Orchestrator) process(ctx context.Context, t *turn) *TurnResult {
	result, err := o.dispatchBranch(ctx, t)
	if err != nil {
		slog.Error("turn failed", "session", t.sessionID(), "error", err)
		return o.systemError(t)
	}
	return result
}

func (o *Orchestrator) dispatchBranch(ctx context.Context, t *turn) (*TurnResult, error) {
	if ambiguityID := t.contextInt(store.ContextKeyPendingAmbiguity); ambiguityID > 0 {
		result, handled, err := o.handlePendingAmbiguity(ctx, t, ambiguityID)
		if err != nil {
			return nil, err
		}
		if handled {
			return result, nil
		}
	}

	if intentName := t.contextString(store.ContextKeyAwaitingSlotIntent); intentName != "" {
		awaitingTurn := t.contextInt(store.ContextKeyAwaitingSlotTurn)
		if int64(t.turnNumber)-awaitingTurn <= slotSupplementWindow {
			result, handled, err := o.handleSlotSupplement(ctx, t, intentName)
			if err != nil {
				return nil, err
			}
			if handled {
				return result, nil
			}
		} else {
			t.clearContext(store.ContextKeyAwaitingSlotIntent, store.ContextKeyAwaitingSlotTurn)
		}
	}

	if requestID := t.contextString(store.ContextKeyPendingConfirm); requestID != "" {
		result, handled, err := o.handleConfirmationReply(ctx, t, requestID)
		if err != nil {
			return nil, err
		}
		if handled {
			return result, nil
		}
	}

	if o.isRetryPhrase(t.input) {
		if result, handled := o.handleRetry(ctx, t); handled {
			return result, nil
		}
	}

	return o.classify(ctx, t)
}

func (o *Orchestrator) isRetryPhrase(input string) bool {
	lowered := strings.ToLower(input)
	for _, phrase := range retryPhrases {
		if lowered == phrase {
			return true
		}
	}
	return false
}

func (o *Orchestrator) nextTurnNumber(ctx context.Context, sessionID string) (int32, error) {
	limit := 1
	turns, err := o.store.ListConversationTurns(ctx, &store.FindConversationTurn{
		SessionID: &sessionID,
		Limit:     &limit,
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to read last turn")
	}
	if len(turns) == 0 {
		return 1, nil
	}
	return turns[0].TurnNumber + 1, nil
}

// finish persists the turn record, saves the session context, and writes
// the audit trail. Exactly one conversation record per accepted request.
func (o *Orchestrator) finish(ctx context.Context, t *turn, result *TurnResult) error {
	if _, err := o.store.CreateConversationTurn(ctx, &store.ConversationTurn{
		SessionID:        t.sessionID(),
		UserID:           t.userID(),
		TurnNumber:       t.turnNumber,
		UserInput:        t.input,
		RecognizedIntent: result.Intent,
		Confidence:       result.Confidence,
		SystemResponse:   result.Response,
		ResponseType:     result.ResponseType,
		Status:           result.Status,
		ProcessingTimeMS: time.Since(t.now).Milliseconds(),
		CreatedTs:        t.now.Unix(),
	}); err != nil {
		return errors.Wrap(err, "failed to persist turn record")
	}

	if err := o.sessions.SaveContext(ctx, t.view.Session); err != nil {
		return err
	}

	if _, err := o.store.CreateAuditLog(ctx, &store.AuditLog{
		SessionID: t.sessionID(),
		UserID:    t.userID(),
		Action:    "turn",
		Detail: map[string]any{
			"request_id":    t.requestID,
			"turn_number":   t.turnNumber,
			"status":        string(result.Status),
			"response_type": string(result.ResponseType),
			"intent":        result.Intent,
		},
		CreatedTs: time.Now().Unix(),
	}); err != nil {
		slog.Warn("failed to write turn audit log", "session", t.sessionID(), "error", err)
	}
	return nil
}

func (o *Orchestrator) systemError(t *turn) *TurnResult {
	return &TurnResult{
		Response:     "系统处理出现问题,请稍后重试。",
		ResponseType: store.ResponseErrorWithAlternatives,
		Status:       store.TurnSystemError,
		NextAction:   ActionNone,
	}
}

// AmbiguityResolution is the outcome of a clarification answer submitted
// out of band through the disambiguation endpoint.
type AmbiguityResolution struct {
	Ambiguity *store.IntentAmbiguity
	Choice    *choice.Result
	Resolved  bool
	Intent    string
}

// ResolveAmbiguityChoice applies a clarification answer to an open
// ambiguity under the same per-session lock turns use, so it cannot race
// an in-flight turn closing the same row. Returns nil when no open
// ambiguity matches the id.
func (o *Orchestrator) ResolveAmbiguityChoice(ctx context.Context, ambiguityID int64, userChoice string) (*AmbiguityResolution, error) {
	rows, err := o.store.ListIntentAmbiguities(ctx, &store.FindIntentAmbiguity{ID: &ambiguityID})
	if err != nil {
		return nil, errors.Wrap(err, "failed to load ambiguity")
	}
	if len(rows) == 0 || rows[0].Resolved {
		return nil, nil
	}
	sessionID := rows[0].SessionID

	unlock := o.lockSession(sessionID)
	defer unlock()

	// Re-read under the lock; a turn may have closed it meanwhile.
	rows, err = o.store.ListIntentAmbiguities(ctx, &store.FindIntentAmbiguity{ID: &ambiguityID})
	if err != nil {
		return nil, errors.Wrap(err, "failed to reload ambiguity")
	}
	if len(rows) == 0 || rows[0].Resolved {
		return nil, nil
	}
	ambiguity := rows[0]

	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load session")
	}

	parseContext := &choice.Context{Patterns: o.choices}
	if session != nil {
		parseContext.UserID = session.UserID
	}
	parsed := choice.Parse(userChoice, ambiguity.Candidates, parseContext)
	if parsed.SelectedOption < 1 || parsed.SelectedOption > len(ambiguity.Candidates) {
		return &AmbiguityResolution{Ambiguity: ambiguity, Choice: parsed}, nil
	}

	chosen := ambiguity.Candidates[parsed.SelectedOption-1]
	resolved := true
	method := store.ResolutionUserChoice
	resolvedTs := time.Now().Unix()
	if _, err := o.store.UpdateIntentAmbiguity(ctx, &store.UpdateIntentAmbiguity{
		ID:               ambiguity.ID,
		UserChoice:       &userChoice,
		ResolutionMethod: &method,
		ResolvedIntent:   &chosen.Name,
		Resolved:         &resolved,
		ResolvedTs:       &resolvedTs,
	}); err != nil {
		return nil, errors.Wrap(err, "failed to close ambiguity")
	}
	if session != nil {
		o.choices.Record(session.UserID, parsed.Type)
		if err := o.clearPendingAmbiguity(ctx, session); err != nil {
			slog.Warn("failed to clear pending ambiguity", "session", sessionID, "error", err)
		}
	}
	return &AmbiguityResolution{
		Ambiguity: ambiguity,
		Choice:    parsed,
		Resolved:  true,
		Intent:    chosen.Name,
	}, nil
}

// clearPendingAmbiguity rewrites the session context without the pending
// ambiguity keys. It works on a copy so cached readers never observe a
// partially mutated map.
func (o *Orchestrator) clearPendingAmbiguity(ctx context.Context, session *store.Session) error {
	cleared := make(map[string]any, len(session.Context))
	for key, value := range session.Context {
		if key == store.ContextKeyPendingAmbiguity || key == store.ContextKeyAmbiguityRetries {
			continue
		}
		cleared[key] = value
	}
	if _, err := o.store.UpdateSession(ctx, &store.UpdateSession{
		ID:      session.ID,
		Context: cleared,
	}); err != nil {
		return errors.Wrap(err, "failed to clear pending ambiguity")
	}
	return nil
}

// SessionSlots returns the current slot values of a session in wire form,
// ordered by slot name.
func (o *Orchestrator) SessionSlots(ctx context.Context, sessionID string) ([]slots.WireSlot, error) {
	current, err := o.slots.Current(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(current))
	for name := range current {
		names = append(names, name)
	}
	sort.Strings(names)
	wire := make([]slots.WireSlot, 0, len(names))
	for _, name := range names {
		wire = append(wire, current[name].ToWire())
	}
	return wire, nil
}

// IntentStats summarizes the recognition record and effective threshold of
// one intent.
type IntentStats struct {
	Intent        string  `json:"intent"`
	Samples       int64   `json:"samples"`
	Successes     int64   `json:"successes"`
	AvgConfidence float64 `json:"avg_confidence"`
	Threshold     float64 `json:"threshold"`
}

// IntentStats reports the adaptive-threshold state for a configured
// intent; nil when the intent does not exist.
func (o *Orchestrator) IntentStats(ctx context.Context, intentName string) (*IntentStats, error) {
	snap, err := o.registry.Current(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load intent registry")
	}
	intent := snap.Intent(intentName)
	if intent == nil {
		return nil, nil
	}
	samples, successes, avg := o.confidence.Stats(intentName)
	return &IntentStats{
		Intent:        intent.Name,
		Samples:       samples,
		Successes:     successes,
		AvgConfidence: avg,
		Threshold:     o.confidence.Threshold(intent),
	}, nil
}
