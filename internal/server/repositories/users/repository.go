package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/membership/internal/server/models"
)

// Repository persists users. Single-user lookups load the user's role
// references; list results do not.
type Repository interface {
	GetByUsername(ctx context.Context, app, userName string) (*models.User, error)
	GetByEmail(ctx context.Context, app, email string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	FindByUsername(ctx context.Context, app, pattern string) ([]*models.User, error)
	FindByEmail(ctx context.Context, app, pattern string) ([]*models.User, error)
	All(ctx context.Context, app string) ([]*models.User, error)
	Count(ctx context.Context, app string) (int, error)
	CountOnline(ctx context.Context, app string, since time.Time) (int, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id int64) error
}
