package confirm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/leichangqing/intelligence-intent-sub003/dialog/confidence"
	"github.com/leichangqing/intelligence-intent-sub003/internal/profile"
	"github.com/leichangqing/intelligence-intent-sub003/store"
)

func TestClassifyReply(t *testing.T) {
	tests := []struct {
		input string
		want  Reply
	}{
		{"确认", ReplyConfirm},
		{"是的", ReplyConfirm},
		{"好的", ReplyConfirm},
		{"ok", ReplyConfirm},
		{"修改", ReplyModify},
		{"改成后天", ReplyModify},
		{"不对", ReplyModify},
		{"取消", ReplyCancel},
		{"算了", ReplyCancel},
		// Cancel outranks modify when both appear.
		{"不对,取消吧", ReplyCancel},
		// Modify outranks confirm.
		{"好的不对,重新来", ReplyModify},
		{"哈哈", ReplyUnknown},
		{"", ReplyUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyReply(tt.input), "input %q", tt.input)
	}
}

func newAssessManager() *Manager {
	return NewManager(nil, &profile.Profile{})
}

func TestAssess_ReadWithHighConfidenceIsImplicit(t *testing.T) {
	m := newAssessManager()
	intent := &store.IntentDefinition{Name: "query_order", Category: "query"}

	a := m.Assess(intent, confidence.BandHigh, nil)
	assert.Equal(t, store.RiskLow, a.Risk)
	assert.Equal(t, store.ConfirmationImplicit, a.Strategy)
}

func TestAssess_WriteRequiresExplicitConfirmation(t *testing.T) {
	m := newAssessManager()
	intent := &store.IntentDefinition{Name: "book_flight", Category: "booking"}

	a := m.Assess(intent, confidence.BandHigh, nil)
	assert.Equal(t, store.RiskMedium, a.Risk)
	assert.Equal(t, store.ConfirmationExplicit, a.Strategy)
	assert.Contains(t, a.Triggers, "write_action")
}

func TestAssess_NoviceAndLowConfidenceRaiseRisk(t *testing.T) {
	m := newAssessManager()
	intent := &store.IntentDefinition{Name: "book_flight", Category: "booking"}
	novice := &store.User{ID: "u1", Type: store.UserTypeNovice}

	a := m.Assess(intent, confidence.BandMedium, novice)
	assert.Equal(t, store.RiskHigh, a.Risk)
	assert.Equal(t, store.ConfirmationExplicit, a.Strategy)
	assert.Contains(t, a.Triggers, "confidence_below_high")
	assert.Contains(t, a.Triggers, "novice_user")
}

func TestAssess_MonetaryActionClass(t *testing.T) {
	m := newAssessManager()
	intent := &store.IntentDefinition{
		Name:          "pay_order",
		Category:      "payment",
		HandlerConfig: map[string]any{"action_class": "monetary"},
	}

	a := m.Assess(intent, confidence.BandHigh, nil)
	assert.Equal(t, store.RiskMedium, a.Risk)
	assert.Equal(t, store.ConfirmationExplicit, a.Strategy)
	assert.Contains(t, a.Triggers, "monetary_action")
}

func TestAssess_PolicyFlagForcesConfirmation(t *testing.T) {
	m := newAssessManager()
	intent := &store.IntentDefinition{
		Name:          "query_order",
		Category:      "query",
		HandlerConfig: map[string]any{"always_confirm": true},
	}

	a := m.Assess(intent, confidence.BandHigh, nil)
	assert.Equal(t, store.RiskMedium, a.Risk)
	assert.Equal(t, store.ConfirmationExplicit, a.Strategy)
}
