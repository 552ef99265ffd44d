// Package server wires the membership provider together: it opens the
// database, applies the embedded schema, and builds the user, role and
// profile services sharing one repository manager, logger and metrics set.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/membership/internal/cryptox"
	"github.com/dmitrijs2005/membership/internal/logging"
	"github.com/dmitrijs2005/membership/internal/server/config"
	"github.com/dmitrijs2005/membership/internal/server/metrics"
	"github.com/dmitrijs2005/membership/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/membership/internal/server/services"
	"github.com/prometheus/client_golang/prometheus"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	repos    repomanager.RepositoryManager
	registry *prometheus.Registry

	migrateOnce sync.Once
	migrateErr  error

	Users    *services.UserService
	Roles    *services.RoleService
	Profiles *services.ProfileService
}

// NewApp builds an App from a validated configuration. Logs are written to w
// as JSON. The database is not contacted until the first operation.
func NewApp(c *config.Config, w io.Writer) (*App, error) {
	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	return newApp(c, w, db, repomanager.NewPostgresRepositoryManager())
}

func newApp(c *config.Config, w io.Writer, db *sql.DB, repos repomanager.RepositoryManager) (*App, error) {
	format, err := cryptox.ParsePasswordFormat(c.PasswordFormat)
	if err != nil {
		return nil, err
	}
	enc, err := cryptox.NewEncoder(format, []byte(c.SecretKey))
	if err != nil {
		return nil, fmt.Errorf("encoder init error: %w", err)
	}

	logger := logging.NewJSONLogger(w, c.LogLevel)

	registry := prometheus.NewRegistry()
	m, err := metrics.New(registry)
	if err != nil {
		return nil, fmt.Errorf("metrics init error: %w", err)
	}
	if err := metrics.RegisterDBStats(registry, db, "membership"); err != nil {
		return nil, fmt.Errorf("metrics init error: %w", err)
	}

	opts := []services.Option{
		services.WithLogger(logger),
		services.WithMetrics(m),
	}

	return &App{
		config:   c,
		logger:   logger,
		db:       db,
		repos:    repos,
		registry: registry,
		Users:    services.NewUserService(db, repos, c, enc, opts...),
		Roles:    services.NewRoleService(db, repos, c, opts...),
		Profiles: services.NewProfileService(db, repos, c, opts...),
	}, nil
}

// Migrate brings the schema up to date. Only the first call does any work;
// later calls return its result.
func (app *App) Migrate(ctx context.Context) error {
	app.migrateOnce.Do(func() {
		app.logger.Info(ctx, "applying migrations")
		if err := app.repos.RunMigrations(ctx, app.db); err != nil {
			app.migrateErr = fmt.Errorf("migrations: %w", err)
			app.logger.Error(ctx, "migrations failed", "error", err)
		}
	})
	return app.migrateErr
}

// Gatherer exposes the collected metrics.
func (app *App) Gatherer() prometheus.Gatherer {
	return app.registry
}

func (app *App) Close() error {
	return app.db.Close()
}
