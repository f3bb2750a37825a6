package store

// TransferType categorizes an intent switch.
type TransferType string

const (
	TransferUserRequest    TransferType = "user_request"
	TransferSystemRedirect TransferType = "system_redirect"
	TransferFallback       TransferType = "fallback"
	TransferEscalation     TransferType = "escalation"
	TransferCompletion     TransferType = "completion"
)

// IntentTransfer records a mid-conversation intent switch. An interruption
// is transfer_type=user_request with resumed_ts=0 and is eligible to resume.
// The intent stack is the query over unresumed transfers, newest first.
type IntentTransfer struct {
	ID           int64
	SessionID    string
	FromIntent   string
	ToIntent     string
	TransferType TransferType
	Reason       string
	SavedContext map[string]any // slot snapshot of the interrupted intent
	Confidence   float64
	CreatedTs    int64
	ResumedTs    int64 // 0 until resumed
}

// IsInterruption reports whether this transfer can still be resumed.
func (t *IntentTransfer) IsInterruption() bool {
	return t.TransferType == TransferUserRequest && t.ResumedTs == 0
}

type FindIntentTransfer struct {
	ID         *int64
	SessionID  *string
	Unresumed  bool // only user_request transfers with resumed_ts = 0
	FromIntent *string
	Limit      *int
}

type UpdateIntentTransfer struct {
	ID        int64
	ResumedTs *int64
}
