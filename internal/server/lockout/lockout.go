// Package lockout implements the failed-attempt state machine that locks an
// account after too many bad passwords or password answers within a window.
//
// The functions mutate the in-memory user only; persisting the result is the
// caller's job.
package lockout

import (
	"time"

	"github.com/dmitrijs2005/membership/internal/server/models"
)

// Category distinguishes the two independent failure counters.
type Category int

const (
	Password Category = iota
	PasswordAnswer
)

func (c Category) String() string {
	if c == PasswordAnswer {
		return "password_answer"
	}
	return "password"
}

// State is the derived lockout state of one category.
type State int

const (
	Clean State = iota
	Accumulating
	Locked
)

func (s State) String() string {
	switch s {
	case Accumulating:
		return "accumulating"
	case Locked:
		return "locked"
	default:
		return "clean"
	}
}

// Policy holds the lockout thresholds.
type Policy struct {
	MaxInvalidAttempts int
	AttemptWindow      time.Duration
}

func counters(u *models.User, c Category) (*int, *time.Time) {
	if c == PasswordAnswer {
		return &u.FailedPasswordAnswerAttemptCount, &u.FailedPasswordAnswerAttemptWindowStart
	}
	return &u.FailedPasswordAttemptCount, &u.FailedPasswordAttemptWindowStart
}

// RecordFailure registers one failed attempt of category c at now and
// reports whether this failure locked the account.
//
// A failure outside the current window starts a new window with a count of
// one. Inside the window the count grows, and the account locks once it
// reaches MaxInvalidAttempts.
func (p Policy) RecordFailure(u *models.User, c Category, now time.Time) bool {
	count, start := counters(u, c)

	if *count == 0 || now.After(start.Add(p.AttemptWindow)) {
		*count = 1
		*start = now
	} else {
		*count++
	}

	if *count >= p.MaxInvalidAttempts && !u.IsLockedOut {
		u.IsLockedOut = true
		u.LastLockedOutAt = now
		return true
	}
	return false
}

// Unlock clears the lockout and both failure counters.
func Unlock(u *models.User, now time.Time) {
	u.IsLockedOut = false
	u.LastLockedOutAt = now
	u.FailedPasswordAttemptCount = 0
	u.FailedPasswordAttemptWindowStart = now
	u.FailedPasswordAnswerAttemptCount = 0
	u.FailedPasswordAnswerAttemptWindowStart = now
}

// StateOf reports the state of category c for u.
func StateOf(u *models.User, c Category) State {
	if u.IsLockedOut {
		return Locked
	}
	if count, _ := counters(u, c); *count > 0 {
		return Accumulating
	}
	return Clean
}
