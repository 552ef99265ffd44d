package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/membership/internal/common"
	"github.com/dmitrijs2005/membership/internal/dbx"
	"github.com/dmitrijs2005/membership/internal/server/models"
)

const userColumns = `id, username, application_name, email, comment, password,
		 password_question, password_answer, is_approved, is_online,
		 created_at, last_login_at, last_activity_at, last_password_changed_at,
		 is_locked_out, last_locked_out_at,
		 failed_password_attempt_count, failed_password_attempt_window_start,
		 failed_password_answer_attempt_count, failed_password_answer_attempt_window_start`

const usernameConstraint = "users_username_app_uq"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*models.User, error) {
	u := &models.User{}
	err := s.Scan(&u.ID, &u.UserName, &u.ApplicationName, &u.Email, &u.Comment, &u.Password,
		&u.PasswordQuestion, &u.PasswordAnswer, &u.IsApproved, &u.IsOnline,
		&u.CreatedAt, &u.LastLoginAt, &u.LastActivityAt, &u.LastPasswordChangedAt,
		&u.IsLockedOut, &u.LastLockedOutAt,
		&u.FailedPasswordAttemptCount, &u.FailedPasswordAttemptWindowStart,
		&u.FailedPasswordAnswerAttemptCount, &u.FailedPasswordAnswerAttemptWindowStart)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {

	query :=
		`INSERT INTO users (username, application_name, email, comment, password,
		 password_question, password_answer, is_approved, is_online,
		 created_at, last_login_at, last_activity_at, last_password_changed_at,
		 is_locked_out, last_locked_out_at,
		 failed_password_attempt_count, failed_password_attempt_window_start,
		 failed_password_answer_attempt_count, failed_password_answer_attempt_window_start)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.UserName, user.ApplicationName, user.Email, user.Comment, user.Password,
		user.PasswordQuestion, user.PasswordAnswer, user.IsApproved, user.IsOnline,
		user.CreatedAt, user.LastLoginAt, user.LastActivityAt, user.LastPasswordChangedAt,
		user.IsLockedOut, user.LastLockedOutAt,
		user.FailedPasswordAttemptCount, user.FailedPasswordAttemptWindowStart,
		user.FailedPasswordAnswerAttemptCount, user.FailedPasswordAnswerAttemptWindowStart).Scan(&user.ID)

	if err != nil {
		if dbx.IsUniqueViolation(err, usernameConstraint) {
			return nil, fmt.Errorf("%w: %w", common.ErrDuplicateUserName, err)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) Update(ctx context.Context, user *models.User) error {
	query :=
		`UPDATE users SET email = $2, comment = $3, password = $4,
		 password_question = $5, password_answer = $6, is_approved = $7, is_online = $8,
		 last_login_at = $9, last_activity_at = $10, last_password_changed_at = $11,
		 is_locked_out = $12, last_locked_out_at = $13,
		 failed_password_attempt_count = $14, failed_password_attempt_window_start = $15,
		 failed_password_answer_attempt_count = $16, failed_password_answer_attempt_window_start = $17
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.Comment, user.Password,
		user.PasswordQuestion, user.PasswordAnswer, user.IsApproved, user.IsOnline,
		user.LastLoginAt, user.LastActivityAt, user.LastPasswordChangedAt,
		user.IsLockedOut, user.LastLockedOutAt,
		user.FailedPasswordAttemptCount, user.FailedPasswordAttemptWindowStart,
		user.FailedPasswordAnswerAttemptCount, user.FailedPasswordAnswerAttemptWindowStart)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrUserNotFound
	}
	return nil
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, app, userName string) (*models.User, error) {
	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE username = $1 AND application_name = $2
		 `
	return r.getOne(ctx, query, userName, app)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, app, email string) (*models.User, error) {
	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE email = $1 AND application_name = $2
		 ORDER BY id
		 LIMIT 1
		 `
	return r.getOne(ctx, query, email, app)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE id = $1
		 `
	return r.getOne(ctx, query, id)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrUserNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if user.Roles, err = r.roles(ctx, user.ID); err != nil {
		return nil, err
	}
	return user, nil
}

func (r *PostgresRepository) roles(ctx context.Context, userID int64) ([]models.RoleRef, error) {
	query :=
		`SELECT r.id, r.role_name, r.application_name FROM roles r
		 JOIN users_in_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = $1
		 ORDER BY r.role_name
		 `

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	refs := []models.RoleRef{}
	for rows.Next() {
		var ref models.RoleRef
		if err := rows.Scan(&ref.ID, &ref.RoleName, &ref.ApplicationName); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return refs, nil
}

func (r *PostgresRepository) FindByUsername(ctx context.Context, app, pattern string) ([]*models.User, error) {
	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE application_name = $1 AND username LIKE $2
		 ORDER BY username
		 `
	return r.list(ctx, query, app, dbx.ContainsPattern(pattern))
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, app, pattern string) ([]*models.User, error) {
	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE application_name = $1 AND email LIKE $2
		 ORDER BY username
		 `
	return r.list(ctx, query, app, dbx.ContainsPattern(pattern))
}

func (r *PostgresRepository) All(ctx context.Context, app string) ([]*models.User, error) {
	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE application_name = $1
		 ORDER BY username
		 `
	return r.list(ctx, query, app)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	users := []*models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return users, nil
}

func (r *PostgresRepository) Count(ctx context.Context, app string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE application_name = $1`, app).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) CountOnline(ctx context.Context, app string, since time.Time) (int, error) {
	query :=
		`SELECT COUNT(*) FROM users
		 WHERE application_name = $1 AND last_activity_at > $2
		 `
	var n int
	if err := r.db.QueryRowContext(ctx, query, app, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
