// Package confirm implements risk-scored confirmation before high-impact
// actions and classification of user confirmation replies.
package confirm

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/leichangqing/intelligence-intent-sub003/dialog/confidence"
	"github.com/leichangqing/intelligence-intent-sub003/internal/profile"
	"github.com/leichangqing/intelligence-intent-sub003/store"
)

// requestTTL bounds how long a confirmation stays answerable. Expiry is
// treated as implicit cancel.
const requestTTL = 10 * time.Minute

// ActionClass grades what the handler does.
type ActionClass string

const (
	ActionRead     ActionClass = "read"
	ActionWrite    ActionClass = "write"
	ActionMonetary ActionClass = "monetary"
)

// Reply is the classified confirmation answer.
type Reply string

const (
	ReplyConfirm Reply = "confirm"
	ReplyModify  Reply = "modify"
	ReplyCancel  Reply = "cancel"
	ReplyUnknown Reply = "unknown"
)

var (
	confirmTokens = []string{"确认订票", "确认预订", "确认", "是的", "是", "对", "正确", "好的", "可以", "yes", "ok"}
	modifyTokens  = []string{"修改", "改", "重新", "不对", "错了", "不是", "no", "修正"}
	cancelTokens  = []string{"取消", "不要", "算了", "退出", "cancel"}
)

// Assessment is the computed confirmation decision for an execution.
type Assessment struct {
	Risk     store.RiskLevel
	Strategy store.ConfirmationStrategy
	Triggers []string
}

// Manager creates and answers confirmation requests.
type Manager struct {
	store   *store.Store
	profile *profile.Profile
}

// NewManager creates a confirmation manager.
func NewManager(s *store.Store, p *profile.Profile) *Manager {
	return &Manager{store: s, profile: p}
}

// Assess scores the risk of executing an intent and picks the strategy.
// Explicit confirmation applies when risk is medium or above, or when a
// write action lacks high confidence.
func (m *Manager) Assess(intent *store.IntentDefinition, band confidence.Band, user *store.User) Assessment {
	action := classifyAction(intent)

	score := 0
	var triggers []string
	switch action {
	case ActionMonetary:
		score += 3
		triggers = append(triggers, "monetary_action")
	case ActionWrite:
		score += 2
		triggers = append(triggers, "write_action")
	}
	if band != confidence.BandHigh {
		score++
		triggers = append(triggers, "confidence_below_high")
	}
	if user != nil && user.Type == store.UserTypeNovice {
		score++
		triggers = append(triggers, "novice_user")
	}
	if flag, ok := intent.HandlerConfig["always_confirm"].(bool); ok && flag {
		score += 2
		triggers = append(triggers, "policy_flag")
	}

	risk := store.RiskLow
	switch {
	case score >= 4:
		risk = store.RiskHigh
	case score >= 2:
		risk = store.RiskMedium
	}

	strategy := store.ConfirmationImplicit
	if risk != store.RiskLow || (action != ActionRead && band != confidence.BandHigh) {
		strategy = store.ConfirmationExplicit
	}
	return Assessment{Risk: risk, Strategy: strategy, Triggers: triggers}
}

// classifyAction derives the action class from handler config or category.
func classifyAction(intent *store.IntentDefinition) ActionClass {
	if class, ok := intent.HandlerConfig["action_class"].(string); ok {
		switch ActionClass(class) {
		case ActionRead, ActionWrite, ActionMonetary:
			return ActionClass(class)
		}
	}
	switch intent.Category {
	case "booking", "payment":
		return ActionWrite
	case "query", "information":
		return ActionRead
	}
	if intent.HandlerType == store.HandlerDatabase {
		return ActionRead
	}
	return ActionWrite
}

// CreateRequest persists a pending confirmation with the proposed slot
// snapshot and returns it. The request id goes into the session context.
func (m *Manager) CreateRequest(ctx context.Context, sessionID, intentName string, proposedSlots map[string]string, assessment Assessment) (*store.ConfirmationRequest, error) {
	now := time.Now()
	request, err := m.store.CreateConfirmationRequest(ctx, &store.ConfirmationRequest{
		RequestID:     uuid.NewString(),
		SessionID:     sessionID,
		Intent:        intentName,
		ProposedSlots: proposedSlots,
		Strategy:      assessment.Strategy,
		Risk:          assessment.Risk,
		Triggers:      assessment.Triggers,
		CreatedTs:     now.Unix(),
		ExpiresTs:     now.Add(requestTTL).Unix(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create confirmation request")
	}
	slog.Debug("confirmation requested",
		"session", sessionID, "intent", intentName,
		"risk", assessment.Risk, "strategy", assessment.Strategy)
	return request, nil
}

// Pending loads a confirmation request by id. Expired requests are deleted
// and reported as nil, which callers treat as implicit cancel.
func (m *Manager) Pending(ctx context.Context, requestID string) (*store.ConfirmationRequest, error) {
	request, err := m.store.GetConfirmationRequest(ctx, &store.FindConfirmationRequest{RequestID: &requestID})
	if err != nil || request == nil {
		return nil, err
	}
	if request.ExpiresTs > 0 && time.Now().Unix() > request.ExpiresTs {
		if _, err := m.store.DeleteConfirmationRequests(ctx, &store.DeleteConfirmationRequest{
			RequestID: &requestID,
		}); err != nil {
			slog.Warn("failed to delete expired confirmation", "request", requestID, "error", err)
		}
		return nil, nil
	}
	return request, nil
}

// Close removes an answered confirmation request.
func (m *Manager) Close(ctx context.Context, requestID string) error {
	_, err := m.store.DeleteConfirmationRequests(ctx, &store.DeleteConfirmationRequest{
		RequestID: &requestID,
	})
	return err
}

// ClassifyReply buckets a user reply into confirm, modify, or cancel using
// case-insensitive containment. Cancel wins over modify, modify over
// confirm, so that "不对,取消吧" cancels rather than modifies.
func ClassifyReply(input string) Reply {
	lowered := strings.ToLower(strings.TrimSpace(input))
	if lowered == "" {
		return ReplyUnknown
	}
	if containsAny(lowered, cancelTokens) {
		return ReplyCancel
	}
	if containsAny(lowered, modifyTokens) {
		return ReplyModify
	}
	if containsAny(lowered, confirmTokens) {
		return ReplyConfirm
	}
	return ReplyUnknown
}

func containsAny(s string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(s, token) {
			return true
		}
	}
	return false
}
