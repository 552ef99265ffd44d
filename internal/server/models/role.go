package models

// UserRef is the role-side view of a role membership.
type UserRef struct {
	ID              int64
	UserName        string
	ApplicationName string
}

// Role groups users within one application namespace.
type Role struct {
	ID              int64
	RoleName        string
	ApplicationName string

	// Members is ordered by user name.
	Members []UserRef
}

// Ref returns the user-side reference to r.
func (r *Role) Ref() RoleRef {
	return RoleRef{ID: r.ID, RoleName: r.RoleName, ApplicationName: r.ApplicationName}
}

// MemberNames returns the user names of r's members.
func (r *Role) MemberNames() []string {
	names := make([]string, 0, len(r.Members))
	for _, m := range r.Members {
		names = append(names, m.UserName)
	}
	return names
}
