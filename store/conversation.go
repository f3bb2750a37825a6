package store

// TurnStatus is the final status of a conversation turn.
type TurnStatus string

const (
	TurnCompleted            TurnStatus = "completed"
	TurnIncomplete           TurnStatus = "incomplete"
	TurnAmbiguous            TurnStatus = "ambiguous"
	TurnNonIntentInput       TurnStatus = "non_intent_input"
	TurnAwaitingConfirmation TurnStatus = "awaiting_confirmation"
	TurnCancelled            TurnStatus = "cancelled"
	TurnAPIError             TurnStatus = "api_error"
	TurnSystemError          TurnStatus = "system_error"
	TurnValidationError      TurnStatus = "validation_error"
	TurnParsingError         TurnStatus = "parsing_error"
)

// ResponseType categorizes the system response of a turn.
type ResponseType string

const (
	ResponseSlotPrompt            ResponseType = "slot_prompt"
	ResponseDisambiguation        ResponseType = "disambiguation"
	ResponseConfirmationPrompt    ResponseType = "confirmation_prompt"
	ResponseAPIResult             ResponseType = "api_result"
	ResponseQA                    ResponseType = "qa_response"
	ResponseErrorWithAlternatives ResponseType = "error_with_alternatives"
	ResponseCancellation          ResponseType = "cancellation"
	ResponseSystemError           ResponseType = "system_error"
)

// errStatuses are excluded from cached history so that recall does not
// propagate error artifacts into later classification context.
var errStatuses = map[TurnStatus]bool{
	TurnSystemError:     true,
	TurnValidationError: true,
	TurnParsingError:    true,
}

// IsErrorStatus reports whether a status is excluded from cached history.
func IsErrorStatus(status TurnStatus) bool {
	return errStatuses[status]
}

// ConversationTurn records one user utterance and its system response.
// Immutable after creation except for admin corrections.
type ConversationTurn struct {
	ID               int64
	SessionID        string
	UserID           string
	TurnNumber       int32 // monotonically increasing within a session
	UserInput        string
	RecognizedIntent string
	Confidence       float64
	SystemResponse   string
	ResponseType     ResponseType
	Status           TurnStatus
	ProcessingTimeMS int64
	CreatedTs        int64
}

type FindConversationTurn struct {
	ID            *int64
	SessionID     *string
	UserID        *string
	ExcludeErrors bool // drop system_error/validation_error/parsing_error rows
	Limit         *int
}

type DeleteConversationTurn struct {
	ID         *int64
	BeforeTs   *int64
	BatchLimit int
}
