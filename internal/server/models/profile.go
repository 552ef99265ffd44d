package models

import "time"

// Profile holds per-user personalisation data. A user has at most one
// authenticated and one anonymous profile.
type Profile struct {
	ID              int64
	UserID          int64
	ApplicationName string
	IsAnonymous     bool
	LastActivityAt  time.Time
	LastUpdatedAt   time.Time

	ProfileData
}

// ProfileData is the user-editable part of a Profile.
type ProfileData struct {
	Subscription string
	Language     string
	FirstName    string
	LastName     string
	Gender       string
	BirthDate    *time.Time
	Occupation   string
	Website      string
	Street       string
	City         string
	State        string
	Zip          string
	Country      string
}

// ProfileAuthOption selects profiles by whether they belong to anonymous
// or authenticated users.
type ProfileAuthOption int

const (
	ProfilesAll ProfileAuthOption = iota
	ProfilesAnonymous
	ProfilesAuthenticated
)

// AnonymousFilter returns nil for ProfilesAll, otherwise the is_anonymous
// value to match.
func (o ProfileAuthOption) AnonymousFilter() *bool {
	var v bool
	switch o {
	case ProfilesAnonymous:
		v = true
	case ProfilesAuthenticated:
		v = false
	default:
		return nil
	}
	return &v
}

// ProfileQuery selects profiles for listing. A zero UserNameToMatch or
// InactiveSince does not filter.
type ProfileQuery struct {
	Option          ProfileAuthOption
	UserNameToMatch string
	InactiveSince   time.Time
}
