// Package roles provides a PostgreSQL-backed repository for roles and their
// memberships.
package roles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/membership/internal/common"
	"github.com/dmitrijs2005/membership/internal/dbx"
	"github.com/dmitrijs2005/membership/internal/server/models"
)

const (
	roleNameConstraint   = "roles_name_app_uq"
	membershipConstraint = "users_in_roles_pkey"
)

// PostgresRepository implements role persistence over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get returns the role named name in app together with its members.
// If not found, it returns common.ErrRoleNotFound.
func (r *PostgresRepository) Get(ctx context.Context, app, name string) (*models.Role, error) {
	query := `
		SELECT id, role_name, application_name
		FROM roles
		WHERE role_name = $1 AND application_name = $2
	`
	role := &models.Role{}
	if err := r.db.QueryRowContext(ctx, query, name, app).Scan(&role.ID, &role.RoleName, &role.ApplicationName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrRoleNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	members, err := r.members(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	role.Members = members
	return role, nil
}

func (r *PostgresRepository) members(ctx context.Context, roleID int64) ([]models.UserRef, error) {
	query := `
		SELECT u.id, u.username, u.application_name
		FROM users u
		JOIN users_in_roles ur ON ur.user_id = u.id
		WHERE ur.role_id = $1
		ORDER BY u.username
	`
	rows, err := r.db.QueryContext(ctx, query, roleID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	refs := []models.UserRef{}
	for rows.Next() {
		var ref models.UserRef
		if err := rows.Scan(&ref.ID, &ref.UserName, &ref.ApplicationName); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return refs, nil
}

// All returns every role of app ordered by name. Members are not loaded.
func (r *PostgresRepository) All(ctx context.Context, app string) ([]*models.Role, error) {
	query := `
		SELECT id, role_name, application_name
		FROM roles
		WHERE application_name = $1
		ORDER BY role_name
	`
	rows, err := r.db.QueryContext(ctx, query, app)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	roles := []*models.Role{}
	for rows.Next() {
		role := &models.Role{}
		if err := rows.Scan(&role.ID, &role.RoleName, &role.ApplicationName); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return roles, nil
}

// Create inserts role and sets its ID. A name already used in the same
// application yields common.ErrDuplicateRole.
func (r *PostgresRepository) Create(ctx context.Context, role *models.Role) (*models.Role, error) {
	query := `
		INSERT INTO roles (role_name, application_name)
		VALUES ($1, $2)
		RETURNING id
	`
	if err := r.db.QueryRowContext(ctx, query, role.RoleName, role.ApplicationName).Scan(&role.ID); err != nil {
		if dbx.IsUniqueViolation(err, roleNameConstraint) {
			return nil, fmt.Errorf("%w: %w", common.ErrDuplicateRole, err)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if role.Members == nil {
		role.Members = []models.UserRef{}
	}
	return role, nil
}

// Delete removes a role. Memberships go with it (ON DELETE CASCADE).
func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrRoleNotFound
	}
	return nil
}

// AddUser records that userID is a member of roleID.
func (r *PostgresRepository) AddUser(ctx context.Context, roleID, userID int64) error {
	query := `
		INSERT INTO users_in_roles (user_id, role_id)
		VALUES ($1, $2)
	`
	if _, err := r.db.ExecContext(ctx, query, userID, roleID); err != nil {
		if dbx.IsUniqueViolation(err, membershipConstraint) {
			return fmt.Errorf("%w: %w", common.ErrAlreadyMember, err)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// RemoveUser deletes one membership row; a missing row is common.ErrNotAMember.
func (r *PostgresRepository) RemoveUser(ctx context.Context, roleID, userID int64) error {
	query := `
		DELETE FROM users_in_roles
		WHERE user_id = $1 AND role_id = $2
	`
	res, err := r.db.ExecContext(ctx, query, userID, roleID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrNotAMember
	}
	return nil
}

// RemoveAllUsers deletes every membership of roleID.
func (r *PostgresRepository) RemoveAllUsers(ctx context.Context, roleID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM users_in_roles WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
