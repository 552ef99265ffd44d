// Package models defines server-side data models persisted in the database.
package models

import "time"

// RoleRef is the user-side view of a role membership.
type RoleRef struct {
	ID              int64
	RoleName        string
	ApplicationName string
}

// User is a membership account. Password and PasswordAnswer hold the stored
// (encoded) form, never plaintext.
type User struct {
	ID                                     int64
	UserName                               string
	ApplicationName                        string
	Email                                  string
	Comment                                string
	Password                               string
	PasswordQuestion                       string
	PasswordAnswer                         string
	IsApproved                             bool
	IsOnline                               bool
	CreatedAt                              time.Time
	LastLoginAt                            time.Time
	LastActivityAt                         time.Time
	LastPasswordChangedAt                  time.Time
	IsLockedOut                            bool
	LastLockedOutAt                        time.Time
	FailedPasswordAttemptCount             int
	FailedPasswordAttemptWindowStart       time.Time
	FailedPasswordAnswerAttemptCount       int
	FailedPasswordAnswerAttemptWindowStart time.Time

	// Roles is ordered by role name.
	Roles []RoleRef
}

// Ref returns the role-side reference to u.
func (u *User) Ref() UserRef {
	return UserRef{ID: u.ID, UserName: u.UserName, ApplicationName: u.ApplicationName}
}

// RoleNames returns the names of the roles u belongs to.
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.RoleName)
	}
	return names
}
