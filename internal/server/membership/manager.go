// Package membership keeps the two in-memory sides of the user/role
// relation (User.Roles and Role.Members) consistent. It is the only code
// that mutates them.
//
// Every method checks its preconditions before touching either side, so a
// returned error leaves both entities unchanged.
package membership

import (
	"sort"

	"github.com/dmitrijs2005/membership/internal/common"
	"github.com/dmitrijs2005/membership/internal/server/models"
)

// Manager mutates role memberships. The zero value is ready to use.
type Manager struct{}

func New() *Manager { return &Manager{} }

// Add makes user a member of role.
func (m *Manager) Add(user *models.User, role *models.Role) error {
	if user == nil {
		return common.NewFault("membership.Add", common.ErrUserNotFound, "")
	}
	if role == nil {
		return common.NewFault("membership.Add", common.ErrRoleNotFound, "")
	}
	if hasRole(user, role) || hasMember(role, user) {
		return common.NewFault("membership.Add", common.ErrAlreadyMember, "%s in %s", user.UserName, role.RoleName)
	}

	user.Roles = append(user.Roles, role.Ref())
	sort.SliceStable(user.Roles, func(i, j int) bool { return user.Roles[i].RoleName < user.Roles[j].RoleName })

	role.Members = append(role.Members, user.Ref())
	sort.SliceStable(role.Members, func(i, j int) bool { return role.Members[i].UserName < role.Members[j].UserName })
	return nil
}

// Remove ends user's membership of role.
func (m *Manager) Remove(user *models.User, role *models.Role) error {
	if user == nil {
		return common.NewFault("membership.Remove", common.ErrUserNotFound, "")
	}
	if role == nil {
		return common.NewFault("membership.Remove", common.ErrRoleNotFound, "")
	}
	if !hasRole(user, role) && !hasMember(role, user) {
		return common.NewFault("membership.Remove", common.ErrNotAMember, "%s in %s", user.UserName, role.RoleName)
	}

	user.Roles = removeRole(user.Roles, role)
	role.Members = removeMember(role.Members, user)
	return nil
}

// IsMember reports whether user belongs to the role named roleName in the
// user's own application.
func (m *Manager) IsMember(user *models.User, roleName string) bool {
	if user == nil {
		return false
	}
	for _, r := range user.Roles {
		if r.RoleName == roleName && r.ApplicationName == user.ApplicationName {
			return true
		}
	}
	return false
}

// CheckDelete reports whether role may be deleted. A populated role is
// refused when failIfPopulated is set.
func (m *Manager) CheckDelete(role *models.Role, failIfPopulated bool) error {
	if role == nil {
		return common.NewFault("membership.CheckDelete", common.ErrRoleNotFound, "")
	}
	if failIfPopulated && len(role.Members) > 0 {
		return common.NewFault("membership.CheckDelete", common.ErrRolePopulated, "%s has %d members", role.RoleName, len(role.Members))
	}
	return nil
}

// DetachAll removes role from each of the given loaded members and empties
// role.Members. Users that are not loaded are skipped; their rows go with
// the role's join-table cascade.
func (m *Manager) DetachAll(role *models.Role, loaded ...*models.User) {
	if role == nil {
		return
	}
	for _, u := range loaded {
		if u != nil {
			u.Roles = removeRole(u.Roles, role)
		}
	}
	role.Members = []models.UserRef{}
}

// DetachUser removes user from every role in roles and clears user.Roles.
func (m *Manager) DetachUser(user *models.User, roles ...*models.Role) {
	if user == nil {
		return
	}
	for _, r := range roles {
		if r != nil {
			r.Members = removeMember(r.Members, user)
		}
	}
	user.Roles = []models.RoleRef{}
}

func sameRole(ref models.RoleRef, role *models.Role) bool {
	if ref.ID != 0 && role.ID != 0 {
		return ref.ID == role.ID
	}
	return ref.RoleName == role.RoleName && ref.ApplicationName == role.ApplicationName
}

func sameUser(ref models.UserRef, user *models.User) bool {
	if ref.ID != 0 && user.ID != 0 {
		return ref.ID == user.ID
	}
	return ref.UserName == user.UserName && ref.ApplicationName == user.ApplicationName
}

func hasRole(user *models.User, role *models.Role) bool {
	for _, r := range user.Roles {
		if sameRole(r, role) {
			return true
		}
	}
	return false
}

func hasMember(role *models.Role, user *models.User) bool {
	for _, u := range role.Members {
		if sameUser(u, user) {
			return true
		}
	}
	return false
}

func removeRole(refs []models.RoleRef, role *models.Role) []models.RoleRef {
	out := make([]models.RoleRef, 0, len(refs))
	for _, r := range refs {
		if !sameRole(r, role) {
			out = append(out, r)
		}
	}
	return out
}

func removeMember(refs []models.UserRef, user *models.User) []models.UserRef {
	out := make([]models.UserRef, 0, len(refs))
	for _, u := range refs {
		if !sameUser(u, user) {
			out = append(out, u)
		}
	}
	return out
}
