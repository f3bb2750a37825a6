package store

// ResolutionMethod records how an ambiguity was resolved.
type ResolutionMethod string

const (
	ResolutionUserChoice  ResolutionMethod = "user_choice"
	ResolutionAutoResolve ResolutionMethod = "auto_resolve"
	ResolutionFallback    ResolutionMethod = "fallback"
	ResolutionEscalate    ResolutionMethod = "escalate"
)

// CandidateIntent is one classification candidate.
type CandidateIntent struct {
	Name        string  `json:"name"`
	DisplayName string  `json:"display"`
	Confidence  float64 `json:"confidence"`
}

// IntentAmbiguity records an ambiguous classification and its resolution.
type IntentAmbiguity struct {
	ID                 int64
	ConversationTurnID int64
	SessionID          string
	UserInput          string
	Candidates         []CandidateIntent
	Question           string
	Options            []string
	UserChoice         string
	ResolutionMethod   ResolutionMethod
	ResolvedIntent     string
	Resolved           bool
	CreatedTs          int64
	ResolvedTs         int64
}

type FindIntentAmbiguity struct {
	ID        *int64
	SessionID *string
	Resolved  *bool
	Limit     *int
}

type UpdateIntentAmbiguity struct {
	ID               int64
	UserChoice       *string
	ResolutionMethod *ResolutionMethod
	ResolvedIntent   *string
	Resolved         *bool
	ResolvedTs       *int64
}
