package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRefs(t *testing.T) {
	u := &User{ID: 7, UserName: "alice", ApplicationName: "/"}
	r := &Role{ID: 3, RoleName: "admins", ApplicationName: "/"}

	assert.Equal(t, UserRef{ID: 7, UserName: "alice", ApplicationName: "/"}, u.Ref())
	assert.Equal(t, RoleRef{ID: 3, RoleName: "admins", ApplicationName: "/"}, r.Ref())
}

func TestNames(t *testing.T) {
	u := &User{Roles: []RoleRef{{RoleName: "a"}, {RoleName: "b"}}}
	r := &Role{Members: []UserRef{{UserName: "x"}}}

	assert.Equal(t, []string{"a", "b"}, u.RoleNames())
	assert.Equal(t, []string{"x"}, r.MemberNames())
	assert.Empty(t, (&User{}).RoleNames())
	assert.NotNil(t, (&Role{}).MemberNames())
}

func TestProfileAuthOption_AnonymousFilter(t *testing.T) {
	assert.Nil(t, ProfilesAll.AnonymousFilter())
	if f := ProfilesAnonymous.AnonymousFilter(); assert.NotNil(t, f) {
		assert.True(t, *f)
	}
	if f := ProfilesAuthenticated.AnonymousFilter(); assert.NotNil(t, f) {
		assert.False(t, *f)
	}
}
