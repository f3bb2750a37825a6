package store

// UserType is the coarse user classification used by the confirmation
// risk model (novice users get explicit confirmation more often).
type UserType string

const (
	UserTypeNovice UserType = "novice"
	UserTypeExpert UserType = "expert"
)

// User is a stable dialogue participant.
type User struct {
	ID          string // stable user_id supplied by the caller
	Type        UserType
	Preferences map[string]string
	CreatedTs   int64
	UpdatedTs   int64
}

type FindUser struct {
	ID *string
}

// UpsertUser inserts or updates on the user id.
type UpsertUser struct {
	ID          string
	Type        UserType
	Preferences map[string]string
}
