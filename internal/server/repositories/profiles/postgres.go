// Package profiles stores per-user profile rows in PostgreSQL.
package profiles

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

const profileColumns = `id, user_id, application_name, is_anonymous, last_activity_at, last_updated_at,
		subscription, language, first_name, last_name, gender, birth_date, occupation,
		website, street, city, state, zip, country`

const qualifiedProfileColumns = `p.id, p.user_id, p.application_name, p.is_anonymous, p.last_activity_at, p.last_updated_at,
		p.subscription, p.language, p.first_name, p.last_name, p.gender, p.birth_date, p.occupation,
		p.website, p.street, p.city, p.state, p.zip, p.country`

const inactiveFilter = `application_name = $1 AND last_activity_at <= $2
		AND ($3::boolean IS NULL OR is_anonymous = $3)`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(s scanner) (*models.Profile, error) {
	p := &models.Profile{}
	var birth sql.NullTime
	err := s.Scan(&p.ID, &p.UserID, &p.ApplicationName, &p.IsAnonymous, &p.LastActivityAt, &p.LastUpdatedAt,
		&p.Subscription, &p.Language, &p.FirstName, &p.LastName, &p.Gender, &birth, &p.Occupation,
		&p.Website, &p.Street, &p.City, &p.State, &p.Zip, &p.Country)
	if err != nil {
		return nil, err
	}
	if birth.Valid {
		p.BirthDate = &birth.Time
	}
	return p, nil
}

func birthArg(p *models.Profile) sql.NullTime {
	if p.BirthDate == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *p.BirthDate, Valid: true}
}

func (r *PostgresRepository) Get(ctx context.Context, userID int64, isAnonymous bool) (*models.Profile, error) {
	query :=
		`SELECT ` + profileColumns + ` FROM profiles
		 WHERE user_id = $1 AND is_anonymous = $2
		 `
	p, err := scanProfile(r.db.QueryRowContext(ctx, query, userID, isAnonymous))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrProfileNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) GetByUserID(ctx context.Context, userID int64) ([]*models.Profile, error) {
	query :=
		`SELECT ` + profileColumns + ` FROM profiles
		 WHERE user_id = $1
		 ORDER BY is_anonymous
		 `
	return r.list(ctx, query, userID)
}

// Find lists profiles of app ordered by id. Profiles are matched on their
// owner's user name when q.UserNameToMatch is set.
func (r *PostgresRepository) Find(ctx context.Context, app string, q models.ProfileQuery) ([]*models.Profile, error) {
	query :=
		`SELECT ` + qualifiedProfileColumns + ` FROM profiles p
		 JOIN users u ON u.id = p.user_id
		 WHERE p.application_name = $1
		 AND ($2::boolean IS NULL OR p.is_anonymous = $2)
		 AND ($3::text IS NULL OR u.username LIKE $3)
		 AND ($4::timestamptz IS NULL OR p.last_activity_at <= $4)
		 ORDER BY p.id
		 `
	var match sql.NullString
	if q.UserNameToMatch != "" {
		match = sql.NullString{String: dbx.ContainsPattern(q.UserNameToMatch), Valid: true}
	}
	var since sql.NullTime
	if !q.InactiveSince.IsZero() {
		since = sql.NullTime{Time: q.InactiveSince, Valid: true}
	}
	return r.list(ctx, query, app, q.Option.AnonymousFilter(), match, since)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.Profile, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := []*models.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) CountInactive(ctx context.Context, app string, since time.Time, opt models.ProfileAuthOption) (int, error) {
	query := `SELECT COUNT(*) FROM profiles WHERE ` + inactiveFilter
	var n int
	if err := r.db.QueryRowContext(ctx, query, app, since, opt.AnonymousFilter()).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) DeleteInactive(ctx context.Context, app string, since time.Time, opt models.ProfileAuthOption) (int, error) {
	query := `DELETE FROM profiles WHERE ` + inactiveFilter
	res, err := r.db.ExecContext(ctx, query, app, since, opt.AnonymousFilter())
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return rowsAffected(res)
}

func (r *PostgresRepository) Create(ctx context.Context, p *models.Profile) (*models.Profile, error) {
	query :=
		`INSERT INTO profiles (user_id, application_name, is_anonymous, last_activity_at, last_updated_at,
		 subscription, language, first_name, last_name, gender, birth_date, occupation,
		 website, street, city, state, zip, country)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		 RETURNING id
		 `
	err := r.db.QueryRowContext(ctx, query,
		p.UserID, p.ApplicationName, p.IsAnonymous, p.LastActivityAt, p.LastUpdatedAt,
		p.Subscription, p.Language, p.FirstName, p.LastName, p.Gender, birthArg(p), p.Occupation,
		p.Website, p.Street, p.City, p.State, p.Zip, p.Country).Scan(&p.ID)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %w", common.ErrConflict, err)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) Update(ctx context.Context, p *models.Profile) error {
	query :=
		`UPDATE profiles SET last_activity_at = $2, last_updated_at = $3,
		 subscription = $4, language = $5, first_name = $6, last_name = $7, gender = $8,
		 birth_date = $9, occupation = $10, website = $11, street = $12, city = $13,
		 state = $14, zip = $15, country = $16
		 WHERE id = $1
		 `
	res, err := r.db.ExecContext(ctx, query,
		p.ID, p.LastActivityAt, p.LastUpdatedAt,
		p.Subscription, p.Language, p.FirstName, p.LastName, p.Gender,
		birthArg(p), p.Occupation, p.Website, p.Street, p.City,
		p.State, p.Zip, p.Country)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrProfileNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteByUserID(ctx context.Context, userID int64) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM profiles WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return rowsAffected(res)
}

func rowsAffected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return int(n), nil
}
