package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/membership/internal/common"
	"github.com/dmitrijs2005/membership/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProfile_CreatesOnFirstAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	alice := f.createUser(t, "alice", "alice@example.com")

	f.commits(1)
	p, err := f.profiles.GetProfile(ctx, "alice", true)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, p.UserID)
	assert.False(t, p.IsAnonymous)
	assert.Equal(t, f.clock.Now(), p.LastActivityAt)

	f.clock.Advance(time.Minute)
	f.commits(2)
	again, err := f.profiles.GetProfile(ctx, "alice", true)
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)
	assert.Equal(t, f.clock.Now(), again.LastActivityAt)
	assert.Equal(t, p.LastUpdatedAt, again.LastUpdatedAt)

	anon, err := f.profiles.GetProfile(ctx, "alice", false)
	require.NoError(t, err)
	assert.NotEqual(t, p.ID, anon.ID)
	assert.True(t, anon.IsAnonymous)
}

func TestGetProfile_UnknownUser(t *testing.T) {
	f := newFixture(t, nil)

	f.rollback()
	_, err := f.profiles.GetProfile(context.Background(), "nobody", true)
	assert.ErrorIs(t, err, common.ErrUserNotFound)
}

func TestSaveProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createUser(t, "alice", "alice@example.com")

	birth := time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC)
	data := models.ProfileData{FirstName: "Alice", City: "Riga", BirthDate: &birth}

	f.clock.Advance(time.Hour)
	f.commits(2)
	require.NoError(t, f.profiles.SaveProfile(ctx, "alice", true, data))

	p, err := f.profiles.GetProfile(ctx, "alice", true)
	require.NoError(t, err)
	assert.Equal(t, data, p.ProfileData)
	assert.Equal(t, f.clock.Now(), p.LastUpdatedAt)
}

func TestInactiveProfiles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createUser(t, "alice", "alice@example.com")
	f.createUser(t, "bob", "bob@example.com")

	f.commits(3)
	_, err := f.profiles.GetProfile(ctx, "alice", true)
	require.NoError(t, err)
	_, err = f.profiles.GetProfile(ctx, "alice", false)
	require.NoError(t, err)
	_, err = f.profiles.GetProfile(ctx, "bob", true)
	require.NoError(t, err)
	cutoff := f.clock.Now()

	f.clock.Advance(time.Hour)
	f.commits(1)
	_, err = f.profiles.GetProfile(ctx, "bob", true)
	require.NoError(t, err)

	f.commits(4)
	n, err := f.profiles.GetNumberOfInactiveProfiles(ctx, models.ProfilesAll, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.profiles.GetNumberOfInactiveProfiles(ctx, models.ProfilesAnonymous, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	found, err := f.profiles.GetAllInactiveProfiles(ctx, models.ProfilesAuthenticated, cutoff)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.False(t, found[0].IsAnonymous)

	n, err = f.profiles.DeleteInactiveProfiles(ctx, models.ProfilesAll, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, f.store.profiles, 1)
}

func TestProfileListings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createUser(t, "alice", "alice@example.com")
	f.createUser(t, "malice", "malice@example.com")
	f.createUser(t, "bob", "bob@example.com")

	f.commits(3)
	for _, name := range []string{"alice", "malice", "bob"} {
		_, err := f.profiles.GetProfile(ctx, name, true)
		require.NoError(t, err)
	}
	cutoff := f.clock.Now()
	f.clock.Advance(time.Hour)
	f.commits(1)
	_, err := f.profiles.GetProfile(ctx, "malice", false)
	require.NoError(t, err)

	f.commits(4)
	all, err := f.profiles.GetAllProfiles(ctx, models.ProfilesAll)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	anon, err := f.profiles.GetAllProfiles(ctx, models.ProfilesAnonymous)
	require.NoError(t, err)
	require.Len(t, anon, 1)
	assert.True(t, anon[0].IsAnonymous)

	byName, err := f.profiles.FindProfilesByUserName(ctx, models.ProfilesAll, "lic")
	require.NoError(t, err)
	assert.Len(t, byName, 3)

	inactive, err := f.profiles.FindInactiveProfilesByUserName(ctx, models.ProfilesAll, "lic", cutoff)
	require.NoError(t, err)
	assert.Len(t, inactive, 2)

	_, err = f.profiles.FindProfilesByUserName(ctx, models.ProfilesAll, "a,b")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestDeleteProfiles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createUser(t, "alice", "alice@example.com")
	f.createUser(t, "bob", "bob@example.com")

	f.commits(3)
	for _, auth := range []bool{true, false} {
		_, err := f.profiles.GetProfile(ctx, "alice", auth)
		require.NoError(t, err)
	}
	_, err := f.profiles.GetProfile(ctx, "bob", true)
	require.NoError(t, err)

	f.commits(1)
	n, err := f.profiles.DeleteProfiles(ctx, []string{"alice", "nobody"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, f.store.profiles, 1)
}
