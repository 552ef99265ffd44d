package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/membership/internal/dbx"
	"github.com/dmitrijs2005/membership/internal/server/repositories/profiles"
	"github.com/dmitrijs2005/membership/internal/server/repositories/roles"
	"github.com/dmitrijs2005/membership/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Roles(db dbx.DBTX) roles.Repository
	Profiles(db dbx.DBTX) profiles.Repository
}
