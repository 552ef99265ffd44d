package profiles

import (
	"context"
	"time"

	"github.com/dmitrijs2005/membership/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context, userID int64, isAnonymous bool) (*models.Profile, error)
	GetByUserID(ctx context.Context, userID int64) ([]*models.Profile, error)
	Find(ctx context.Context, app string, q models.ProfileQuery) ([]*models.Profile, error)
	CountInactive(ctx context.Context, app string, since time.Time, opt models.ProfileAuthOption) (int, error)
	DeleteInactive(ctx context.Context, app string, since time.Time, opt models.ProfileAuthOption) (int, error)
	Create(ctx context.Context, p *models.Profile) (*models.Profile, error)
	Update(ctx context.Context, p *models.Profile) error
	DeleteByUserID(ctx context.Context, userID int64) (int, error)
}
