package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/dmitrijs2005/membership/internal/common"
	"github.com/dmitrijs2005/membership/internal/dbx"
	"github.com/dmitrijs2005/membership/internal/server/config"
	"github.com/dmitrijs2005/membership/internal/server/membership"
	"github.com/dmitrijs2005/membership/internal/server/models"
	"github.com/dmitrijs2005/membership/internal/server/repositories/repomanager"
)

// RoleService manages roles and role membership of one application.
type RoleService struct {
	base
	membership *membership.Manager
}

// NewRoleService constructs a RoleService for cfg.ApplicationName.
func NewRoleService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, opts ...Option) *RoleService {
	return &RoleService{
		base:       newBase(db, m, cfg.ApplicationName, "roles", opts),
		membership: membership.New(),
	}
}

// CreateRole adds a role. An existing name yields common.ErrDuplicateRole.
func (s *RoleService) CreateRole(ctx context.Context, roleName string) error {
	const op = "CreateRole"
	if err := checkName(op, "role name", roleName); err != nil {
		return err
	}

	err := s.run(ctx, op, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Roles(tx)
		_, err := repo.Get(ctx, s.app, roleName)
		if err == nil {
			return common.NewFault(op, common.ErrDuplicateRole, "%s", roleName)
		}
		if !errors.Is(err, common.ErrRoleNotFound) {
			return err
		}
		_, err = repo.Create(ctx, &models.Role{RoleName: roleName, ApplicationName: s.app})
		return err
	})
	if err == nil {
		s.logger(ctx).Info(ctx, "role created", "role", roleName)
	}
	return err
}

// DeleteRole removes a role and its memberships. A populated role is refused
// with common.ErrRolePopulated when failIfPopulated is set.
func (s *RoleService) DeleteRole(ctx context.Context, roleName string, failIfPopulated bool) (bool, error) {
	const op = "DeleteRole"
	if err := checkName(op, "role name", roleName); err != nil {
		return false, err
	}

	err := s.run(ctx, op, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Roles(tx)
		role, err := repo.Get(ctx, s.app, roleName)
		if err != nil {
			return err
		}
		if err := s.membership.CheckDelete(role, failIfPopulated); err != nil {
			return err
		}

		s.membership.DetachAll(role)
		if err := repo.RemoveAllUsers(ctx, role.ID); err != nil {
			return err
		}
		return repo.Delete(ctx, role.ID)
	})
	if err != nil {
		return false, err
	}
	s.logger(ctx).Info(ctx, "role deleted", "role", roleName)
	return true, nil
}

// RoleExists reports whether roleName exists in the application.
func (s *RoleService) RoleExists(ctx context.Context, roleName string) (bool, error) {
	var exists bool
	err := s.run(ctx, "RoleExists", func(ctx context.Context, tx dbx.DBTX) error {
		_, err := s.repomanager.Roles(tx).Get(ctx, s.app, roleName)
		if errors.Is(err, common.ErrRoleNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	return exists, err
}

// GetAllRoles lists role names ordered alphabetically.
func (s *RoleService) GetAllRoles(ctx context.Context) ([]string, error) {
	var names []string
	err := s.run(ctx, "GetAllRoles", func(ctx context.Context, tx dbx.DBTX) error {
		roles, err := s.repomanager.Roles(tx).All(ctx, s.app)
		if err != nil {
			return err
		}
		names = make([]string, 0, len(roles))
		for _, r := range roles {
			names = append(names, r.RoleName)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// GetUsersInRole lists the members of roleName.
func (s *RoleService) GetUsersInRole(ctx context.Context, roleName string) ([]string, error) {
	return s.FindUsersInRole(ctx, roleName, "")
}

// FindUsersInRole lists the members of roleName whose name contains
// userNameToMatch.
func (s *RoleService) FindUsersInRole(ctx context.Context, roleName, userNameToMatch string) ([]string, error) {
	var names []string
	err := s.run(ctx, "FindUsersInRole", func(ctx context.Context, tx dbx.DBTX) error {
		role, err := s.repomanager.Roles(tx).Get(ctx, s.app, roleName)
		if err != nil {
			return err
		}
		names = []string{}
		for _, m := range role.Members {
			if strings.Contains(m.UserName, userNameToMatch) {
				names = append(names, m.UserName)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// GetRolesForUser lists the roles of userName; an unknown user has none.
func (s *RoleService) GetRolesForUser(ctx context.Context, userName string) ([]string, error) {
	var names []string
	err := s.run(ctx, "GetRolesForUser", func(ctx context.Context, tx dbx.DBTX) error {
		user, err := s.repomanager.Users(tx).GetByUsername(ctx, s.app, userName)
		if errors.Is(err, common.ErrUserNotFound) {
			names = []string{}
			return nil
		}
		if err != nil {
			return err
		}
		names = user.RoleNames()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// IsUserInRole reports whether userName belongs to roleName.
func (s *RoleService) IsUserInRole(ctx context.Context, userName, roleName string) (bool, error) {
	var member bool
	err := s.run(ctx, "IsUserInRole", func(ctx context.Context, tx dbx.DBTX) error {
		user, err := s.repomanager.Users(tx).GetByUsername(ctx, s.app, userName)
		if errors.Is(err, common.ErrUserNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		member = s.membership.IsMember(user, roleName)
		return nil
	})
	return member, err
}

// AddUsersToRoles adds every user to every role. All users and roles must
// exist and no pair may already be a membership; otherwise nothing changes.
func (s *RoleService) AddUsersToRoles(ctx context.Context, userNames, roleNames []string) error {
	const op = "AddUsersToRoles"
	return s.mutate(ctx, op, userNames, roleNames, func(ctx context.Context, tx dbx.DBTX, users []*models.User, roles []*models.Role) error {
		for _, u := range users {
			for _, r := range roles {
				if s.membership.IsMember(u, r.RoleName) {
					return common.NewFault(op, common.ErrAlreadyMember, "%s in %s", u.UserName, r.RoleName)
				}
			}
		}

		repo := s.repomanager.Roles(tx)
		for _, u := range users {
			for _, r := range roles {
				if err := s.membership.Add(u, r); err != nil {
					return err
				}
				if err := repo.AddUser(ctx, r.ID, u.ID); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// RemoveUsersFromRoles removes every user from every role. Every pair must be
// an existing membership; otherwise nothing changes.
func (s *RoleService) RemoveUsersFromRoles(ctx context.Context, userNames, roleNames []string) error {
	const op = "RemoveUsersFromRoles"
	return s.mutate(ctx, op, userNames, roleNames, func(ctx context.Context, tx dbx.DBTX, users []*models.User, roles []*models.Role) error {
		for _, u := range users {
			for _, r := range roles {
				if !s.membership.IsMember(u, r.RoleName) {
					return common.NewFault(op, common.ErrNotAMember, "%s in %s", u.UserName, r.RoleName)
				}
			}
		}

		repo := s.repomanager.Roles(tx)
		for _, u := range users {
			for _, r := range roles {
				if err := s.membership.Remove(u, r); err != nil {
					return err
				}
				if err := repo.RemoveUser(ctx, r.ID, u.ID); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// mutate validates the names, loads every role and then every user, and
// hands them to apply. Missing roles are reported before missing users.
func (s *RoleService) mutate(ctx context.Context, op string, userNames, roleNames []string,
	apply func(ctx context.Context, tx dbx.DBTX, users []*models.User, roles []*models.Role) error) error {

	for _, name := range roleNames {
		if err := checkName(op, "role name", name); err != nil {
			return err
		}
	}
	for _, name := range userNames {
		if err := checkName(op, "user name", name); err != nil {
			return err
		}
	}

	err := s.run(ctx, op, func(ctx context.Context, tx dbx.DBTX) error {
		roles := make([]*models.Role, 0, len(roleNames))
		for _, name := range roleNames {
			r, err := s.repomanager.Roles(tx).Get(ctx, s.app, name)
			if errors.Is(err, common.ErrRoleNotFound) {
				return common.NewFault(op, common.ErrRoleNotFound, "%s", name)
			}
			if err != nil {
				return err
			}
			roles = append(roles, r)
		}

		users := make([]*models.User, 0, len(userNames))
		for _, name := range userNames {
			u, err := s.repomanager.Users(tx).GetByUsername(ctx, s.app, name)
			if errors.Is(err, common.ErrUserNotFound) {
				return common.NewFault(op, common.ErrUserNotFound, "%s", name)
			}
			if err != nil {
				return err
			}
			users = append(users, u)
		}

		return apply(ctx, tx, users, roles)
	})
	if err == nil {
		s.logger(ctx).Info(ctx, "role membership changed", "op", op, "users", userNames, "roles", roleNames)
	}
	return err
}
