package roles

import (
	"context"

	"github.com/dmitrijs2005/membership/internal/server/models"
)

// Repository persists roles and the users_in_roles join table.
type Repository interface {
	Get(ctx context.Context, app, name string) (*models.Role, error)
	All(ctx context.Context, app string) ([]*models.Role, error)
	Create(ctx context.Context, role *models.Role) (*models.Role, error)
	Delete(ctx context.Context, id int64) error
	AddUser(ctx context.Context, roleID, userID int64) error
	RemoveUser(ctx context.Context, roleID, userID int64) error
	RemoveAllUsers(ctx context.Context, roleID int64) error
}
