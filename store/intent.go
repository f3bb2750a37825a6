package store

// SlotType enumerates the supported slot value types.
type SlotType string

const (
	SlotTypeText   SlotType = "text"
	SlotTypeNumber SlotType = "number"
	SlotTypeDate   SlotType = "date"
	SlotTypeEmail  SlotType = "email"
	SlotTypePhone  SlotType = "phone"
	SlotTypeEnum   SlotType = "enum"
)

// HandlerType enumerates the supported action bindings.
type HandlerType string

const (
	HandlerMockService HandlerType = "mock_service"
	HandlerAPICall     HandlerType = "api_call"
	HandlerDatabase    HandlerType = "database"
)

// Template kinds recognized by the registry.
const (
	TemplateSuccess      = "success"
	TemplateFailure      = "failure"
	TemplateConfirmation = "confirmation"
)

// IntentDefinition is the configured definition of one intent.
// Immutable during a turn; versioned via the config registry.
type IntentDefinition struct {
	ID                  int32
	Name                string // unique
	DisplayName         string
	Description         string
	ConfidenceThreshold float64 // defaults to the global floor when 0
	Priority            int32
	Category            string
	IsActive            bool
	Examples            []string
	FallbackResponse    string
	HandlerType         HandlerType
	HandlerConfig       map[string]any
	Templates           map[string]string // template type -> template body
}

// SlotDefinition is a configured slot schema, child of an intent.
type SlotDefinition struct {
	ID              int32
	IntentName      string
	Name            string // unique per intent
	Type            SlotType
	Required        bool
	ValidationRules map[string]any // min_length, max_length, values, cel, ...
	DefaultValue    string
	PromptTemplate  string
}

type FindIntentDefinition struct {
	ID       *int32
	Name     *string
	IsActive *bool
}

type UpdateIntentDefinition struct {
	ID                  int32
	DisplayName         *string
	Description         *string
	ConfidenceThreshold *float64
	Priority            *int32
	IsActive            *bool
	FallbackResponse    *string
	HandlerConfig       map[string]any
	Templates           map[string]string
}

type DeleteIntentDefinition struct {
	ID int32
}

type FindSlotDefinition struct {
	IntentName *string
	Name       *string
}
