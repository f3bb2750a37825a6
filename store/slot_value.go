package store

// ExtractionMethod records how a slot value was obtained.
type ExtractionMethod string

const (
	ExtractionNLU        ExtractionMethod = "nlu"
	ExtractionRegex      ExtractionMethod = "regex"
	ExtractionDefault    ExtractionMethod = "default"
	ExtractionCorrection ExtractionMethod = "correction"
	ExtractionMigration  ExtractionMethod = "migration"
	ExtractionInherited  ExtractionMethod = "inherited"
	ExtractionSupplement ExtractionMethod = "supplement"
)

// ValidationStatus is the validation state of a slot value.
type ValidationStatus string

const (
	ValidationValid     ValidationStatus = "valid"
	ValidationInvalid   ValidationStatus = "invalid"
	ValidationPending   ValidationStatus = "pending"
	ValidationMissing   ValidationStatus = "missing"
	ValidationCorrected ValidationStatus = "corrected"
)

// SlotValue is the authoritative row for one slot extraction.
// For each (session_id, slot_name) the latest turn's value is current;
// older rows are history.
type SlotValue struct {
	ID                 int64
	ConversationTurnID int64
	SessionID          string
	SlotName           string
	IntentName         string
	OriginalText       string
	ExtractedValue     string
	NormalizedValue    string
	Confidence         float64
	ExtractionMethod   ExtractionMethod
	ValidationStatus   ValidationStatus
	ValidationError    string
	IsConfirmed        bool
	CreatedTs          int64
}

// IsValid reports whether this value may satisfy a required slot.
func (v *SlotValue) IsValid() bool {
	return v.ValidationStatus == ValidationValid && v.NormalizedValue != ""
}

type FindSlotValue struct {
	SessionID  *string
	SlotName   *string
	IntentName *string
	LatestOnly bool // one row per slot_name, most recent first
	Limit      *int
}

type DeleteSlotValue struct {
	SessionID  *string
	BeforeTs   *int64
	OnlyStatus *ValidationStatus
	BatchLimit int
}
