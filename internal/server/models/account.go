package models

import "time"

// AccountStatus mirrors the persisted status column.
type AccountStatus int

const (
	StatusPending AccountStatus = 0
	StatusActive  AccountStatus = 1
)

func (s AccountStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	default:
		return "unknown"
	}
}

// Account is one registrant. PasswordHash and VerificationToken never leave
// the server; use Profile for anything sent to a client.
//
// Verified and Status always move together; an account can log in only when
// both say so.
type Account struct {
	ID                string
	GivenName         string
	FamilyName        string
	Username          string
	Email             string
	PasswordHash      string
	VerificationToken *string
	Verified          bool
	Status            AccountStatus
	CreatedAt         time.Time
}

// CanLogin reports whether the account completed verification.
func (a *Account) CanLogin() bool {
	return a.Verified && a.Status == StatusActive
}

// Profile is the public projection of an Account.
type Profile struct {
	ID         string `json:"id"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Username   string `json:"username"`
	Email      string `json:"email"`
}

func (a *Account) Profile() Profile {
	return Profile{
		ID:         a.ID,
		GivenName:  a.GivenName,
		FamilyName: a.FamilyName,
		Username:   a.Username,
		Email:      a.Email,
	}
}
