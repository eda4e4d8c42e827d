package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserID uniquely identifies a user within the system.
// It is a thin wrapper around uuid.UUID to provide type safety at the domain layer.
type UserID uuid.UUID

// NewUserID returns a fresh random UserID.
func NewUserID() UserID { return UserID(uuid.New()) }

func (id UserID) String() string { return uuid.UUID(id).String() }

// ParseUserID parses the canonical string form of a UserID.
func ParseUserID(s string) (UserID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return UserID{}, err //nolint: wrapcheck
	}

	return UserID(id), nil
}

// User is an account that may sign in to the admin interface.
type User struct {
	ID       UserID
	Username string
	// PasswordHash is the bcrypt hash of the password; never the password itself.
	PasswordHash string

	IsActive    bool
	IsStaff     bool
	IsSuperuser bool

	// LastLogin is zero until the user signs in for the first time.
	LastLogin  time.Time
	DateJoined time.Time
}

// CanUseAdmin reports whether the user may see admin pages.
func (u *User) CanUseAdmin() bool {
	return u != nil && u.IsActive && u.IsStaff
}
