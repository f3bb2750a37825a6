package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/leichangqing/intelligence-intent-sub003/dialog/choice"
	"github.com/leichangqing/intelligence-intent-sub003/dialog/confirm"
	"github.com/leichangqing/intelligence-intent-sub003/dialog/handler"
	"github.com/leichangqing/intelligence-intent-sub003/dialog/nlu"
	"github.com/leichangqing/intelligence-intent-sub003/dialog/resolver"
	"github.com/leichangqing/intelligence-intent-sub003/dialog/slots"
	"github.com/leichangqing/intelligence-intent-sub003/store"
)

// handlePendingAmbiguity consumes this turn's input as the answer to an
// open clarification. Returns handled=false when the input should fall
// through to classification instead.
func (o *Orchestrator) handlePendingAmbiguity(ctx context.Context, t *turn, ambiguityID int64) (*TurnResult, bool, error) {
	rows, err := o.store.ListIntentAmbiguities(ctx, &store.FindIntentAmbiguity{ID: &ambiguityID})
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to load pending ambiguity")
	}
	if len(rows) == 0 || rows[0].Resolved {
		t.clearContext(store.ContextKeyPendingAmbiguity, store.ContextKeyAmbiguityRetries)
		return nil, false, nil
	}
	ambiguity := rows[0]

	parsed := choice.Parse(t.input, ambiguity.Candidates, &choice.Context{
		RecentIntents: t.recentIntents(),
		Preferences:   t.view.User.Preferences,
		UserID:        t.userID(),
		Patterns:      o.choices,
	})

	if parsed.Type == choice.TypeNegative {
		if err := o.closeAmbiguity(ctx, t, ambiguity, "", store.ResolutionFallback); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}

	if parsed.SelectedOption < 1 || parsed.SelectedOption > len(ambiguity.Candidates) {
		retries := t.contextInt(store.ContextKeyAmbiguityRetries) + 1
		if retries >= maxAmbiguityRetries {
			if err := o.closeAmbiguity(ctx, t, ambiguity, "", store.ResolutionEscalate); err != nil {
				return nil, false, err
			}
			return nil, false, nil
		}
		t.setContext(store.ContextKeyAmbiguityRetries, retries)
		return &TurnResult{
			Response:         ambiguity.Question,
			ResponseType:     store.ResponseDisambiguation,
			Status:           store.TurnAmbiguous,
			NextAction:       ActionUserChoice,
			AmbiguousIntents: ambiguity.Candidates,
		}, true, nil
	}

	chosen := ambiguity.Candidates[parsed.SelectedOption-1]
	if err := o.closeAmbiguity(ctx, t, ambiguity, chosen.Name, store.ResolutionUserChoice); err != nil {
		return nil, false, err
	}
	o.choices.Record(t.userID(), parsed.Type)
	intent := t.snap.Intent(chosen.Name)
	if intent == nil {
		return nil, false, nil
	}
	result, err := o.proceed(ctx, t, intent, chosen.Confidence, nil)
	return result, err == nil, err
}

func (o *Orchestrator) closeAmbiguity(ctx context.Context, t *turn, ambiguity *store.IntentAmbiguity, resolvedIntent string, method store.ResolutionMethod) error {
	resolved := true
	resolvedTs := time.Now().Unix()
	if _, err := o.store.UpdateIntentAmbiguity(ctx, &store.UpdateIntentAmbiguity{
		ID:               ambiguity.ID,
		UserChoice:       &t.input,
		ResolutionMethod: &method,
		ResolvedIntent:   &resolvedIntent,
		Resolved:         &resolved,
		ResolvedTs:       &resolvedTs,
	}); err != nil {
		return errors.Wrap(err, "failed to close ambiguity")
	}
	t.clearContext(store.ContextKeyPendingAmbiguity, store.ContextKeyAmbiguityRetries)
	return nil
}

// handleSlotSupplement treats the input as values for missing slots of the
// intent that was awaiting them. Classification is not re-run.
func (o *Orchestrator) handleSlotSupplement(ctx context.Context, t *turn, intentName string) (*TurnResult, bool, error) {
	intent := t.snap.Intent(intentName)
	if intent == nil {
		t.clearContext(store.ContextKeyAwaitingSlotIntent, store.ContextKeyAwaitingSlotTurn)
		return nil, false, nil
	}

	current, err := o.slots.Current(ctx, t.sessionID())
	if err != nil {
		return nil, false, err
	}
	defsByName := map[string]*store.SlotDefinition{}
	for _, def := range t.snap.Slots(intentName) {
		defsByName[def.Name] = def
	}

	written := 0
	for _, entity := range nlu.ExtractEntities(t.input) {
		def, ok := defsByName[entity.Name]
		if !ok {
			continue
		}
		if cached, ok := current[def.Name]; ok && cached.Normalized == entity.Value {
			continue
		}
		if _, err := o.slots.Write(ctx, slots.WriteSlot{
			SessionID:    t.sessionID(),
			TurnID:       int64(t.turnNumber),
			Slot:         def,
			OriginalText: t.input,
			RawValue:     entity.Value,
			Confidence:   entity.Confidence,
			Method:       store.ExtractionRegex,
			Now:          t.now,
		}); err != nil {
			return nil, false, err
		}
		written++
	}

	// Bare short input fills the first missing required slot, unless it
	// reads unmistakably as a different intent's utterance.
	if written == 0 {
		missing := slots.MissingRequired(t.snap.RequiredSlots(intentName), current)
		if len(missing) > 0 && len([]rune(t.input)) <= 20 && !o.matchesOtherIntent(ctx, t, intentName) {
			def := defsByName[missing[0]]
			if def != nil {
				if _, err := o.slots.Write(ctx, slots.WriteSlot{
					SessionID:    t.sessionID(),
					TurnID:       int64(t.turnNumber),
					Slot:         def,
					OriginalText: t.input,
					RawValue:     t.input,
					Confidence:   0.8,
					Method:       store.ExtractionSupplement,
					Now:          t.now,
				}); err != nil {
					return nil, false, err
				}
				written++
			}
		}
	}
	if written == 0 {
		return nil, false, nil
	}

	result, err := o.advance(ctx, t, intent, 0.9)
	return result, err == nil, err
}

// matchesOtherIntent reports whether the input is an example-strength
// match for some intent other than the one awaiting slots. Weaker keyword
// or containment scores do not divert; bare city and date mentions appear
// inside other intents' example utterances all the time.
func (o *Orchestrator) matchesOtherIntent(ctx context.Context, t *turn, awaiting string) bool {
	recognition, err := o.recognizer.Recognize(ctx, t.input, t.snap.ActiveIntents(), t.historyInputs())
	if err != nil {
		return false
	}
	for _, candidate := range append([]nlu.Candidate{recognition.TopIntent}, recognition.Alternatives...) {
		if candidate.Name == awaiting || candidate.Name == nlu.IntentUnknown {
			continue
		}
		intent := t.snap.Intent(candidate.Name)
		if intent == nil {
			continue
		}
		if o.confidence.Passed(intent, candidate.Confidence) &&
			candidate.Confidence > o.profile.ConfidenceHigh {
			return true
		}
	}
	return false
}

// handleConfirmationReply answers a pending confirmation. Unknown replies
// fall through to classification.
func (o *Orchestrator) handleConfirmationReply(ctx context.Context, t *turn, requestID string) (*TurnResult, bool, error) {
	request, err := o.confirm.Pending(ctx, requestID)
	if err != nil {
		return nil, false, err
	}
	if request == nil {
		// Expired confirmation counts as implicit cancel.
		t.clearContext(store.ContextKeyPendingConfirm)
		return &TurnResult{
			Response:     "确认已过期,本次操作已取消。",
			ResponseType: store.ResponseCancellation,
			Status:       store.TurnCancelled,
			NextAction:   ActionNone,
		}, true, nil
	}

	intent := t.snap.Intent(request.Intent)
	if intent == nil {
		t.clearContext(store.ContextKeyPendingConfirm)
		return nil, false, nil
	}

	switch confirm.ClassifyReply(t.input) {
	case confirm.ReplyConfirm:
		if err := o.confirm.Close(ctx, requestID); err != nil {
			return nil, false, err
		}
		t.clearContext(store.ContextKeyPendingConfirm)
		o.auditConfirmation(ctx, t, request, false)
		result, err := o.execute(ctx, t, intent, request.ProposedSlots, 1.0)
		return result, err == nil, err

	case confirm.ReplyModify:
		if err := o.confirm.Close(ctx, requestID); err != nil {
			return nil, false, err
		}
		t.clearContext(store.ContextKeyPendingConfirm)
		if err := o.writeEntities(ctx, t, intent, nlu.ExtractEntities(t.input), store.ExtractionRegex); err != nil {
			return nil, false, err
		}
		result, err := o.advance(ctx, t, intent, 0.9)
		return result, err == nil, err

	case confirm.ReplyCancel:
		if err := o.confirm.Close(ctx, requestID); err != nil {
			return nil, false, err
		}
		t.clearContext(store.ContextKeyPendingConfirm,
			store.ContextKeyAwaitingSlotIntent, store.ContextKeyAwaitingSlotTurn)
		return &TurnResult{
			Response:     "好的,本次操作已取消。",
			ResponseType: store.ResponseCancellation,
			Status:       store.TurnCancelled,
			Intent:       intent.Name,
			NextAction:   ActionNone,
		}, true, nil
	}
	return nil, false, nil
}

// handleRetry re-invokes the last failed handler call with its slots.
func (o *Orchestrator) handleRetry(ctx context.Context, t *turn) (*TurnResult, bool) {
	saved, ok := t.view.Session.Context[store.ContextKeyLastHandlerCall].(map[string]any)
	if !ok {
		return nil, false
	}
	intentName, _ := saved["intent"].(string)
	intent := t.snap.Intent(intentName)
	if intent == nil {
		return nil, false
	}
	slotsMap := map[string]string{}
	if raw, ok := saved["slots"].(map[string]any); ok {
		for k, v := range raw {
			if s, ok := v.(string); ok {
				slotsMap[k] = s
			}
		}
	}
	result, err := o.execute(ctx, t, intent, slotsMap, 1.0)
	if err != nil {
		return o.systemError(t), true
	}
	return result, true
}

// classify runs NLU over the input and routes the outcome: proceed,
// auto-resolve, clarify, or fall to the knowledge base.
func (o *Orchestrator) classify(ctx context.Context, t *turn) (*TurnResult, error) {
	nluStart := time.Now()
	recognition, err := o.recognizer.Recognize(ctx, t.input, t.snap.ActiveIntents(), t.historyInputs())
	if err != nil {
		slog.Warn("classification failed", "session", t.sessionID(), "error", err)
		return o.nonIntent(ctx, t, 0), nil
	}
	o.metrics.RecordNLU(recognition.Source, time.Since(nluStart))

	intentsMap := map[string]*store.IntentDefinition{}
	for _, intent := range t.snap.ActiveIntents() {
		intentsMap[intent.Name] = intent
	}

	var passed []nlu.Candidate
	for _, candidate := range append([]nlu.Candidate{recognition.TopIntent}, recognition.Alternatives...) {
		intent := intentsMap[candidate.Name]
		if intent == nil {
			continue
		}
		if o.confidence.Passed(intent, candidate.Confidence) {
			passed = append(passed, candidate)
		}
	}
	nlu.SortCandidates(passed, intentsMap)

	if len(passed) == 0 {
		return o.nonIntent(ctx, t, recognition.TopIntent.Confidence), nil
	}

	analysis := o.detector.Analyze(passed, intentsMap)
	if !analysis.IsAmbiguous {
		top := passed[0]
		return o.proceed(ctx, t, intentsMap[top.Name], top.Confidence, recognition)
	}

	in := &resolver.Input{
		Candidates:    analysis.Candidates,
		Intents:       intentsMap,
		CurrentIntent: t.view.CurrentIntent(),
		RecentIntents: t.recentIntents(),
		UserID:        t.userID(),
		Hour:          t.now.Hour(),
	}
	resolvedIntent, attempts, resolved := o.resolver.Resolve(ctx, in)
	for _, attempt := range attempts {
		o.metrics.RecordResolution(attempt.Strategy, string(attempt.Result))
	}

	candidates := make([]store.CandidateIntent, 0, len(analysis.Candidates))
	for _, c := range analysis.Candidates {
		display := c.Name
		if intent := intentsMap[c.Name]; intent != nil && intent.DisplayName != "" {
			display = intent.DisplayName
		}
		candidates = append(candidates, store.CandidateIntent{
			Name: c.Name, DisplayName: display, Confidence: c.Confidence,
		})
	}

	if resolved {
		var conf float64
		for _, c := range analysis.Candidates {
			if c.Name == resolvedIntent {
				conf = c.Confidence
			}
		}
		method := store.ResolutionAutoResolve
		if _, err := o.store.CreateIntentAmbiguity(ctx, &store.IntentAmbiguity{
			ConversationTurnID: int64(t.turnNumber),
			SessionID:          t.sessionID(),
			UserInput:          t.input,
			Candidates:         candidates,
			ResolutionMethod:   method,
			ResolvedIntent:     resolvedIntent,
			Resolved:           true,
			CreatedTs:          t.now.Unix(),
			ResolvedTs:         time.Now().Unix(),
		}); err != nil {
			return nil, errors.Wrap(err, "failed to record auto-resolved ambiguity")
		}
		return o.proceed(ctx, t, intentsMap[resolvedIntent], conf, recognition)
	}

	question, options := clarification(candidates)
	row, err := o.store.CreateIntentAmbiguity(ctx, &store.IntentAmbiguity{
		ConversationTurnID: int64(t.turnNumber),
		SessionID:          t.sessionID(),
		UserInput:          t.input,
		Candidates:         candidates,
		Question:           question,
		Options:            options,
		CreatedTs:          t.now.Unix(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to record ambiguity")
	}
	t.setContext(store.ContextKeyPendingAmbiguity, row.ID)
	t.setContext(store.ContextKeyAmbiguityRetries, 0)

	return &TurnResult{
		Response:         question,
		ResponseType:     store.ResponseDisambiguation,
		Status:           store.TurnAmbiguous,
		NextAction:       ActionUserChoice,
		AmbiguousIntents: candidates,
		Confidence:       passed[0].Confidence,
	}, nil
}

func clarification(candidates []store.CandidateIntent) (string, []string) {
	var b strings.Builder
	b.WriteString("请问您想要做什么?\n")
	options := make([]string, 0, len(candidates))
	for i, c := range candidates {
		line := fmt.Sprintf("%d. %s", i+1, c.DisplayName)
		options = append(options, line)
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("请回复序号。")
	return b.String(), options
}

// nonIntent handles input with no usable intent: knowledge-base fallback
// first, canned suggestions otherwise.
func (o *Orchestrator) nonIntent(ctx context.Context, t *turn, conf float64) *TurnResult {
	if o.kb.Enabled() {
		answer, err := o.kb.Query(ctx, t.input, map[string]string{
			"session_id": t.sessionID(),
			"user_id":    t.userID(),
		})
		if err == nil && answer.Answer != "" {
			return &TurnResult{
				Response:     answer.Answer,
				ResponseType: store.ResponseQA,
				Status:       store.TurnNonIntentInput,
				Confidence:   answer.Confidence,
				NextAction:   ActionNone,
			}
		}
		if err != nil {
			slog.Warn("knowledge base query failed", "session", t.sessionID(), "error", err)
		}
	}

	var b strings.Builder
	b.WriteString("抱歉,我没有理解您的意思。您可以试试:\n")
	for i, intent := range t.snap.ActiveIntents() {
		if i == 3 {
			break
		}
		fmt.Fprintf(&b, "- %s\n", intent.DisplayName)
	}
	return &TurnResult{
		Response:     b.String(),
		ResponseType: store.ResponseErrorWithAlternatives,
		Status:       store.TurnNonIntentInput,
		Confidence:   conf,
		NextAction:   ActionClarification,
	}
}

// proceed commits to an intent: interruption bookkeeping, slot
// inheritance, entity writes, defaults, then the slot/confirm/execute
// decision.
func (o *Orchestrator) proceed(ctx context.Context, t *turn, intent *store.IntentDefinition, conf float64, recognition *nlu.Recognition) (*TurnResult, error) {
	previous := t.view.CurrentIntent()
	if previous != "" && previous != intent.Name {
		if err := o.recordInterruption(ctx, t, previous, intent.Name, conf); err != nil {
			slog.Warn("failed to record interruption", "session", t.sessionID(), "error", err)
		}
	}
	if err := o.resumeIfInterrupted(ctx, t, intent); err != nil {
		slog.Warn("failed to mark transfer resumed", "session", t.sessionID(), "error", err)
	}
	t.setContext(store.ContextKeyCurrentIntent, intent.Name)

	defs := t.snap.Slots(intent.Name)
	if err := o.slots.Inherit(ctx, t.sessionID(), int64(t.turnNumber), defs, t.now); err != nil {
		return nil, err
	}

	entities := nlu.ExtractEntities(t.input)
	method := store.ExtractionRegex
	if recognition != nil && recognition.Source == "llm" && len(recognition.Entities) > 0 {
		entities = recognition.Entities
		method = store.ExtractionNLU
	}
	if err := o.writeEntities(ctx, t, intent, entities, method); err != nil {
		return nil, err
	}

	if err := o.slots.ApplyDefaults(ctx, t.sessionID(), int64(t.turnNumber), defs, t.now); err != nil {
		return nil, err
	}
	return o.advance(ctx, t, intent, conf)
}

func (o *Orchestrator) writeEntities(ctx context.Context, t *turn, intent *store.IntentDefinition, entities []nlu.Entity, method store.ExtractionMethod) error {
	defsByName := map[string]*store.SlotDefinition{}
	for _, def := range t.snap.Slots(intent.Name) {
		defsByName[def.Name] = def
	}
	for _, entity := range entities {
		def, ok := defsByName[entity.Name]
		if !ok {
			continue
		}
		if _, err := o.slots.Write(ctx, slots.WriteSlot{
			SessionID:    t.sessionID(),
			TurnID:       int64(t.turnNumber),
			Slot:         def,
			OriginalText: t.input,
			RawValue:     entity.Value,
			Confidence:   entity.Confidence,
			Method:       method,
			Now:          t.now,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) recordInterruption(ctx context.Context, t *turn, fromIntent, toIntent string, conf float64) error {
	current, err := o.slots.Current(ctx, t.sessionID())
	if err != nil {
		return err
	}
	missing := slots.MissingRequired(t.snap.RequiredSlots(fromIntent), current)
	if len(missing) == 0 {
		return nil
	}
	return o.sessions.RecordInterruption(ctx, t.sessionID(), fromIntent, toIntent, slots.Snapshot(current), conf)
}

func (o *Orchestrator) resumeIfInterrupted(ctx context.Context, t *turn, intent *store.IntentDefinition) error {
	stack, err := o.sessions.IntentStack(ctx, t.sessionID())
	if err != nil {
		return err
	}
	for _, transfer := range stack {
		if transfer.FromIntent == intent.Name {
			if err := o.sessions.MarkResumed(ctx, transfer.ID); err != nil {
				return err
			}
			return o.migrateSavedSlots(ctx, t, intent, transfer.SavedContext)
		}
	}
	return nil
}

// migrateSavedSlots restores the slot snapshot captured when the intent
// was interrupted. The snapshot wins over whatever the interleaved intent
// left behind; values extracted from the current turn are written after
// this call and override the restored rows.
func (o *Orchestrator) migrateSavedSlots(ctx context.Context, t *turn, intent *store.IntentDefinition, saved map[string]any) error {
	for _, def := range t.snap.Slots(intent.Name) {
		value, _ := saved[def.Name].(string)
		if value == "" {
			continue
		}
		if _, err := o.slots.Write(ctx, slots.WriteSlot{
			SessionID:    t.sessionID(),
			TurnID:       int64(t.turnNumber),
			Slot:         def,
			OriginalText: value,
			RawValue:     value,
			Confidence:   0.9,
			Method:       store.ExtractionMigration,
			Now:          t.now,
		}); err != nil {
			return err
		}
	}
	return nil
}

// advance recomputes slot completeness for the intent and either prompts
// for slots, asks confirmation, or executes.
func (o *Orchestrator) advance(ctx context.Context, t *turn, intent *store.IntentDefinition, conf float64) (*TurnResult, error) {
	current, err := o.slots.Current(ctx, t.sessionID())
	if err != nil {
		return nil, err
	}
	defs := t.snap.Slots(intent.Name)
	defsByName := map[string]*store.SlotDefinition{}
	for _, def := range defs {
		defsByName[def.Name] = def
	}

	// Only slots belonging to this intent count toward its completeness.
	ours := make(map[string]*slots.CachedSlot, len(defs))
	for name, cached := range current {
		if _, ok := defsByName[name]; ok {
			ours[name] = cached
		}
	}

	invalid := slots.InvalidSlots(ours)
	sort.Strings(invalid)
	if len(invalid) > 0 {
		messages := make([]string, 0, len(invalid))
		for _, name := range invalid {
			messages = append(messages, fmt.Sprintf("%s 的值无效,请重新提供。", name))
		}
		t.setContext(store.ContextKeyAwaitingSlotIntent, intent.Name)
		t.setContext(store.ContextKeyAwaitingSlotTurn, t.turnNumber)
		return &TurnResult{
			Response:         strings.Join(messages, "\n"),
			ResponseType:     store.ResponseSlotPrompt,
			Status:           store.TurnValidationError,
			Intent:           intent.Name,
			Confidence:       conf,
			Slots:            slots.Snapshot(current),
			NextAction:       ActionCollectMissingSlots,
			ValidationErrors: messages,
		}, nil
	}

	missing := slots.MissingRequired(t.snap.RequiredSlots(intent.Name), current)
	if len(missing) > 0 {
		t.setContext(store.ContextKeyAwaitingSlotIntent, intent.Name)
		t.setContext(store.ContextKeyAwaitingSlotTurn, t.turnNumber)
		prompt := "请提供 " + missing[0]
		if def := defsByName[missing[0]]; def != nil && def.PromptTemplate != "" {
			prompt = def.PromptTemplate
		}
		return &TurnResult{
			Response:     prompt,
			ResponseType: store.ResponseSlotPrompt,
			Status:       store.TurnIncomplete,
			Intent:       intent.Name,
			Confidence:   conf,
			Slots:        slots.Snapshot(current),
			NextAction:   ActionCollectMissingSlots,
			MissingSlots: missing,
		}, nil
	}

	t.clearContext(store.ContextKeyAwaitingSlotIntent, store.ContextKeyAwaitingSlotTurn)

	snapshot := slots.Snapshot(ours)

	assessment := o.confirm.Assess(intent, o.confidence.Band(conf), t.view.User)
	if assessment.Strategy == store.ConfirmationExplicit {
		request, err := o.confirm.CreateRequest(ctx, t.sessionID(), intent.Name, snapshot, assessment)
		if err != nil {
			return nil, err
		}
		t.setContext(store.ContextKeyPendingConfirm, request.RequestID)

		template := t.snap.Template(intent.Name, store.TemplateConfirmation)
		if template == "" {
			template = defaultConfirmation(snapshot)
		}
		return &TurnResult{
			Response:     handler.Render(template, handler.StringValues(snapshot)),
			ResponseType: store.ResponseConfirmationPrompt,
			Status:       store.TurnAwaitingConfirmation,
			Intent:       intent.Name,
			Confidence:   conf,
			Slots:        snapshot,
			NextAction:   ActionUserConfirmation,
		}, nil
	}

	o.auditConfirmation(ctx, t, &store.ConfirmationRequest{
		SessionID: t.sessionID(), Intent: intent.Name,
		Strategy: assessment.Strategy, Risk: assessment.Risk,
	}, true)
	return o.execute(ctx, t, intent, snapshot, conf)
}

func defaultConfirmation(snapshot map[string]string) string {
	var parts []string
	for name, value := range snapshot {
		parts = append(parts, name+": "+value)
	}
	return "请确认以下信息: " + strings.Join(parts, ", ") + "。回复\"确认\"继续,\"修改\"更改,\"取消\"放弃。"
}

// auditConfirmation records both explicit and implicit confirmations.
func (o *Orchestrator) auditConfirmation(ctx context.Context, t *turn, request *store.ConfirmationRequest, implicit bool) {
	if _, err := o.store.CreateAuditLog(ctx, &store.AuditLog{
		SessionID: t.sessionID(),
		UserID:    t.userID(),
		Action:    "confirmation",
		Detail: map[string]any{
			"request_id": request.RequestID,
			"intent":     request.Intent,
			"strategy":   string(request.Strategy),
			"risk":       string(request.Risk),
			"implicit":   implicit,
		},
		CreatedTs: time.Now().Unix(),
	}); err != nil {
		slog.Warn("failed to audit confirmation", "session", t.sessionID(), "error", err)
	}
}

// execute dispatches the intent's handler and renders the final response.
func (o *Orchestrator) execute(ctx context.Context, t *turn, intent *store.IntentDefinition, slotsMap map[string]string, conf float64) (*TurnResult, error) {
	result := o.dispatcher.Dispatch(ctx, intent, slotsMap)
	o.metrics.RecordHandlerCall(string(intent.HandlerType),
		time.Duration(result.ElapsedMS)*time.Millisecond, result.Success)

	savedSlots := make(map[string]any, len(slotsMap))
	for k, v := range slotsMap {
		savedSlots[k] = v
	}
	t.setContext(store.ContextKeyLastHandlerCall, map[string]any{
		"intent": intent.Name,
		"slots":  savedSlots,
	})

	o.confidence.Record(intent.Name, conf, result.Success)
	o.resolver.Learn(t.userID(), intent.Name, t.now.Hour(), result.Success)

	if !result.Success {
		response := handler.RenderFailure(
			t.snap.Template(intent.Name, store.TemplateFailure), result.Error,
			handler.StringValues(slotsMap))
		next := ActionNone
		if result.Transient {
			next = ActionRetry
			response += " 您可以说\"再试一次\"重试。"
		}
		return &TurnResult{
			Response:     response,
			ResponseType: store.ResponseAPIResult,
			Status:       store.TurnAPIError,
			Intent:       intent.Name,
			Confidence:   conf,
			Slots:        slotsMap,
			NextAction:   next,
		}, nil
	}

	values := handler.MergeValues(handler.StringValues(slotsMap), result.Data)
	response := handler.RenderSuccess(intent.Name,
		t.snap.Template(intent.Name, store.TemplateSuccess), values)

	o.rememberOrder(ctx, t, result.Data)

	return &TurnResult{
		Response:     response,
		ResponseType: store.ResponseAPIResult,
		Status:       store.TurnCompleted,
		Intent:       intent.Name,
		Confidence:   conf,
		Slots:        slotsMap,
		NextAction:   ActionNone,
		APIResult:    result.Data,
	}, nil
}

// rememberOrder persists a produced order under the user's history context
// so later order queries resolve against it.
func (o *Orchestrator) rememberOrder(ctx context.Context, t *turn, data map[string]any) {
	orderID, _ := data["order_id"].(string)
	if orderID == "" {
		return
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	if _, err := o.store.UpsertUserContext(ctx, &store.UpsertUserContext{
		UserID: t.userID(),
		Type:   store.UserContextHistory,
		Key:    "order:" + strings.ToUpper(orderID),
		Value:  string(payload),
		Scope:  store.ScopeGlobal,
	}); err != nil {
		slog.Warn("failed to persist order context", "session", t.sessionID(), "error", err)
	}
}
