// Package services contains the membership operations. Every exported
// method runs as one unit of work: it opens a dbx.Scope, works on entities
// loaded through repositories bound to the scope's transaction, and commits
// on success or rolls back on any returned error or panic.
package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/membership/internal/common"
	"github.com/dmitrijs2005/membership/internal/dbx"
	"github.com/dmitrijs2005/membership/internal/logging"
	"github.com/dmitrijs2005/membership/internal/server/metrics"
	"github.com/dmitrijs2005/membership/internal/server/repositories/repomanager"
)

// PasswordValidator may veto a password before it is stored. isNew is true
// for account creation and explicit password changes, false for generated
// reset passwords. A non-nil error rejects the password.
type PasswordValidator func(ctx context.Context, userName, password string, isNew bool) error

// Option customises a service.
type Option func(*base)

// WithLogger sets the structured logger.
func WithLogger(l logging.Logger) Option {
	return func(b *base) { b.log = l }
}

// WithMetrics sets the Prometheus recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *base) { b.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

// WithPasswordValidator installs a password veto hook.
func WithPasswordValidator(v PasswordValidator) Option {
	return func(b *base) { b.validator = v }
}

type base struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	app         string
	log         logging.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
	validator   PasswordValidator
}

func newBase(db *sql.DB, m repomanager.RepositoryManager, app, module string, opts []Option) base {
	b := base{
		db:          db,
		repomanager: m,
		app:         app,
		log:         logging.NewNopLogger(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&b)
	}
	b.log = b.log.With("module", module, "app", app)
	return b
}

// run executes fn inside the unit of work carried by ctx, or a new one.
// Errors that carry no fault kind are infrastructure failures and come back
// as provider faults.
func (b *base) run(ctx context.Context, op string, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	_, nested := dbx.ScopeFromContext(ctx)
	start := time.Now()

	err := dbx.WithScope(ctx, b.db, nil, func(ctx context.Context, s *dbx.Scope) error {
		tx, err := s.Tx(ctx)
		if err != nil {
			return err
		}
		b.logger(ctx).Debug(ctx, "unit of work started", "op", op)
		return fn(ctx, tx)
	})
	err = classify(op, err)

	if !nested {
		b.metrics.Operation(op, err, time.Since(start))
		if errors.Is(err, common.ErrProviderFault) {
			b.log.Error(ctx, "operation failed", "op", op, "error", err)
		}
	}
	return err
}

// logger returns the service logger tagged with the active scope, if any.
func (b *base) logger(ctx context.Context) logging.Logger {
	if s, ok := dbx.ScopeFromContext(ctx); ok {
		return b.log.With("scope_id", s.ID())
	}
	return b.log
}

func classify(op string, err error) error {
	if err == nil || common.KindOf(err) != nil {
		return err
	}
	return common.ProviderFault(op, err)
}

func checkName(op, what, name string) error {
	if name == "" {
		return common.NewFault(op, common.ErrInvalidInput, "%s must not be empty", what)
	}
	if common.HasListSeparator(name) {
		return common.NewFault(op, common.ErrInvalidInput, "%s %q must not contain a comma", what, name)
	}
	return nil
}
