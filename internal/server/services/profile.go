package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/membership/internal/common"
	"github.com/dmitrijs2005/membership/internal/dbx"
	"github.com/dmitrijs2005/membership/internal/server/config"
	"github.com/dmitrijs2005/membership/internal/server/models"
	"github.com/dmitrijs2005/membership/internal/server/repositories/profiles"
	"github.com/dmitrijs2005/membership/internal/server/repositories/repomanager"
)

// ProfileService reads and writes user profiles. Profiles are created on
// first access.
type ProfileService struct {
	base
}

// NewProfileService constructs a ProfileService for cfg.ApplicationName.
func NewProfileService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, opts ...Option) *ProfileService {
	return &ProfileService{base: newBase(db, m, cfg.ApplicationName, "profiles", opts)}
}

// GetProfile returns the profile of userName, creating it when missing, and
// records the access as activity.
func (s *ProfileService) GetProfile(ctx context.Context, userName string, authenticated bool) (*models.Profile, error) {
	var p *models.Profile
	err := s.run(ctx, "GetProfile", func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		p, err = s.load(ctx, tx, userName, authenticated, func(p *models.Profile, now time.Time) {
			p.LastActivityAt = now
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SaveProfile replaces the editable profile data of userName.
func (s *ProfileService) SaveProfile(ctx context.Context, userName string, authenticated bool, data models.ProfileData) error {
	return s.run(ctx, "SaveProfile", func(ctx context.Context, tx dbx.DBTX) error {
		_, err := s.load(ctx, tx, userName, authenticated, func(p *models.Profile, now time.Time) {
			p.ProfileData = data
			p.LastActivityAt = now
			p.LastUpdatedAt = now
		})
		return err
	})
}

// load fetches or creates the profile, applies touch and stores it.
func (s *ProfileService) load(ctx context.Context, tx dbx.DBTX, userName string, authenticated bool, touch func(*models.Profile, time.Time)) (*models.Profile, error) {
	user, err := s.repomanager.Users(tx).GetByUsername(ctx, s.app, userName)
	if err != nil {
		return nil, err
	}

	repo := s.repomanager.Profiles(tx)
	now := s.now()

	p, err := repo.Get(ctx, user.ID, !authenticated)
	if errors.Is(err, common.ErrProfileNotFound) {
		p = &models.Profile{
			UserID:          user.ID,
			ApplicationName: s.app,
			IsAnonymous:     !authenticated,
			LastActivityAt:  now,
			LastUpdatedAt:   now,
		}
		touch(p, now)
		s.logger(ctx).Debug(ctx, "profile created", "user", userName, "anonymous", !authenticated)
		return repo.Create(ctx, p)
	}
	if err != nil {
		return nil, err
	}

	touch(p, now)
	if err := repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeleteProfiles removes every profile of the named users and returns the
// number of rows deleted. Unknown names are skipped.
func (s *ProfileService) DeleteProfiles(ctx context.Context, userNames []string) (int, error) {
	var total int
	err := s.run(ctx, "DeleteProfiles", func(ctx context.Context, tx dbx.DBTX) error {
		users := s.repomanager.Users(tx)
		repo := s.repomanager.Profiles(tx)
		for _, name := range userNames {
			user, err := users.GetByUsername(ctx, s.app, name)
			if errors.Is(err, common.ErrUserNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			n, err := repo.DeleteByUserID(ctx, user.ID)
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// DeleteInactiveProfiles removes profiles with no activity after since.
func (s *ProfileService) DeleteInactiveProfiles(ctx context.Context, opt models.ProfileAuthOption, since time.Time) (int, error) {
	return s.count(ctx, "DeleteInactiveProfiles", func(ctx context.Context, repo profiles.Repository) (int, error) {
		return repo.DeleteInactive(ctx, s.app, since, opt)
	})
}

// GetNumberOfInactiveProfiles counts profiles with no activity after since.
func (s *ProfileService) GetNumberOfInactiveProfiles(ctx context.Context, opt models.ProfileAuthOption, since time.Time) (int, error) {
	return s.count(ctx, "GetNumberOfInactiveProfiles", func(ctx context.Context, repo profiles.Repository) (int, error) {
		return repo.CountInactive(ctx, s.app, since, opt)
	})
}

// GetAllProfiles lists every profile matching opt.
func (s *ProfileService) GetAllProfiles(ctx context.Context, opt models.ProfileAuthOption) ([]*models.Profile, error) {
	return s.find(ctx, "GetAllProfiles", models.ProfileQuery{Option: opt})
}

// GetAllInactiveProfiles lists profiles with no activity after since.
func (s *ProfileService) GetAllInactiveProfiles(ctx context.Context, opt models.ProfileAuthOption, since time.Time) ([]*models.Profile, error) {
	return s.find(ctx, "GetAllInactiveProfiles", models.ProfileQuery{Option: opt, InactiveSince: since})
}

// FindProfilesByUserName lists profiles whose owner's name contains
// userNameToMatch.
func (s *ProfileService) FindProfilesByUserName(ctx context.Context, opt models.ProfileAuthOption, userNameToMatch string) ([]*models.Profile, error) {
	if err := checkName("FindProfilesByUserName", "user name", userNameToMatch); err != nil {
		return nil, err
	}
	return s.find(ctx, "FindProfilesByUserName", models.ProfileQuery{Option: opt, UserNameToMatch: userNameToMatch})
}

func (s *ProfileService) FindInactiveProfilesByUserName(ctx context.Context, opt models.ProfileAuthOption, userNameToMatch string, since time.Time) ([]*models.Profile, error) {
	if err := checkName("FindInactiveProfilesByUserName", "user name", userNameToMatch); err != nil {
		return nil, err
	}
	return s.find(ctx, "FindInactiveProfilesByUserName", models.ProfileQuery{
		Option:          opt,
		UserNameToMatch: userNameToMatch,
		InactiveSince:   since,
	})
}

func (s *ProfileService) find(ctx context.Context, op string, q models.ProfileQuery) ([]*models.Profile, error) {
	var out []*models.Profile
	err := s.run(ctx, op, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		out, err = s.repomanager.Profiles(tx).Find(ctx, s.app, q)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ProfileService) count(ctx context.Context, op string, fn func(context.Context, profiles.Repository) (int, error)) (int, error) {
	var n int
	err := s.run(ctx, op, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		n, err = fn(ctx, s.repomanager.Profiles(tx))
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
