package lockout

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/membership/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	policy = Policy{MaxInvalidAttempts: 5, AttemptWindow: 10 * time.Minute}
	t0     = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

func TestRecordFailure_LocksOnFifthFailureWithinWindow(t *testing.T) {
	u := &models.User{}

	for i := 1; i <= 4; i++ {
		locked := policy.RecordFailure(u, Password, t0.Add(time.Duration(i)*time.Minute))
		require.False(t, locked, "failure %d", i)
		assert.Equal(t, i, u.FailedPasswordAttemptCount)
		assert.Equal(t, Accumulating, StateOf(u, Password))
	}
	assert.Equal(t, t0.Add(time.Minute), u.FailedPasswordAttemptWindowStart)

	now := t0.Add(5 * time.Minute)
	require.True(t, policy.RecordFailure(u, Password, now))
	assert.True(t, u.IsLockedOut)
	assert.Equal(t, now, u.LastLockedOutAt)
	assert.Equal(t, 5, u.FailedPasswordAttemptCount)
	assert.Equal(t, Locked, StateOf(u, Password))
}

func TestRecordFailure_WindowExpiryResets(t *testing.T) {
	u := &models.User{}

	for i := 0; i < 4; i++ {
		policy.RecordFailure(u, Password, t0)
	}
	require.Equal(t, 4, u.FailedPasswordAttemptCount)

	later := t0.Add(10*time.Minute + time.Second)
	locked := policy.RecordFailure(u, Password, later)

	assert.False(t, locked)
	assert.False(t, u.IsLockedOut)
	assert.Equal(t, 1, u.FailedPasswordAttemptCount)
	assert.Equal(t, later, u.FailedPasswordAttemptWindowStart)
}

func TestRecordFailure_WindowBoundaryIsInclusive(t *testing.T) {
	u := &models.User{}
	policy.RecordFailure(u, Password, t0)
	policy.RecordFailure(u, Password, t0.Add(10*time.Minute))

	assert.Equal(t, 2, u.FailedPasswordAttemptCount)
	assert.Equal(t, t0, u.FailedPasswordAttemptWindowStart)
}

func TestRecordFailure_CategoriesAreIndependent(t *testing.T) {
	u := &models.User{}
	for i := 0; i < 3; i++ {
		policy.RecordFailure(u, PasswordAnswer, t0)
	}
	policy.RecordFailure(u, Password, t0)

	assert.Equal(t, 3, u.FailedPasswordAnswerAttemptCount)
	assert.Equal(t, 1, u.FailedPasswordAttemptCount)
	assert.False(t, u.IsLockedOut)

	policy.RecordFailure(u, PasswordAnswer, t0)
	assert.True(t, policy.RecordFailure(u, PasswordAnswer, t0))
	assert.True(t, u.IsLockedOut)
}

func TestRecordFailure_AlreadyLockedDoesNotRelock(t *testing.T) {
	u := &models.User{IsLockedOut: true, LastLockedOutAt: t0}
	u.FailedPasswordAttemptCount = 5
	u.FailedPasswordAttemptWindowStart = t0

	assert.False(t, policy.RecordFailure(u, Password, t0.Add(time.Minute)))
	assert.Equal(t, t0, u.LastLockedOutAt)
	assert.Equal(t, 6, u.FailedPasswordAttemptCount)
}

func TestRecordFailure_MaxOfOneLocksImmediately(t *testing.T) {
	p := Policy{MaxInvalidAttempts: 1, AttemptWindow: time.Minute}
	u := &models.User{}
	assert.True(t, p.RecordFailure(u, Password, t0))
}

func TestUnlock(t *testing.T) {
	u := &models.User{}
	for i := 0; i < 5; i++ {
		policy.RecordFailure(u, Password, t0)
	}
	policy.RecordFailure(u, PasswordAnswer, t0)
	require.True(t, u.IsLockedOut)

	now := t0.Add(time.Hour)
	Unlock(u, now)

	assert.False(t, u.IsLockedOut)
	assert.Equal(t, now, u.LastLockedOutAt)
	assert.Equal(t, 0, u.FailedPasswordAttemptCount)
	assert.Equal(t, 0, u.FailedPasswordAnswerAttemptCount)
	assert.Equal(t, Clean, StateOf(u, Password))
	assert.Equal(t, Clean, StateOf(u, PasswordAnswer))

	assert.False(t, policy.RecordFailure(u, Password, now), "a single failure after unlock must not relock")
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "password", Password.String())
	assert.Equal(t, "password_answer", PasswordAnswer.String())
	assert.Equal(t, "clean", Clean.String())
	assert.Equal(t, "accumulating", Accumulating.String())
	assert.Equal(t, "locked", Locked.String())
}
