package store

// ConfirmationStrategy is how user confirmation is collected.
type ConfirmationStrategy string

const (
	ConfirmationExplicit  ConfirmationStrategy = "explicit"
	ConfirmationImplicit  ConfirmationStrategy = "implicit"
	ConfirmationRiskBased ConfirmationStrategy = "risk-based"
)

// RiskLevel grades the impact of executing an intent's handler.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ConfirmationRequest is a pending confirmation before a high-impact action.
// Expiry is treated as implicit cancel.
type ConfirmationRequest struct {
	RequestID     string
	SessionID     string
	Intent        string
	ProposedSlots map[string]string // slot name -> normalized value snapshot
	Strategy      ConfirmationStrategy
	Risk          RiskLevel
	Triggers      []string
	RetryCount    int32
	CreatedTs     int64
	ExpiresTs     int64
}

type FindConfirmationRequest struct {
	RequestID *string
	SessionID *string
}

type UpdateConfirmationRequest struct {
	RequestID  string
	RetryCount *int32
}

type DeleteConfirmationRequest struct {
	RequestID *string
	ExpiredAt *int64
}
