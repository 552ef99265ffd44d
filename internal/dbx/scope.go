package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ScopeState is the lifecycle state of a Scope.
type ScopeState int

const (
	// ScopeIdle: created, no transaction begun yet.
	ScopeIdle ScopeState = iota
	// ScopeOpen: transaction begun on first use.
	ScopeOpen
	// ScopeCommitted and ScopeRolledBack are terminal.
	ScopeCommitted
	ScopeRolledBack
)

func (s ScopeState) String() string {
	switch s {
	case ScopeIdle:
		return "idle"
	case ScopeOpen:
		return "open"
	case ScopeCommitted:
		return "committed"
	case ScopeRolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("ScopeState(%d)", int(s))
	}
}

// ErrScopeClosed is returned when a committed or rolled back scope is used again.
var ErrScopeClosed = errors.New("scope already closed")

// Beginner starts transactions. *sql.DB satisfies it.
type Beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Scope is a unit of work bound to one inbound operation. The transaction
// is begun lazily by the first Tx call and ended once by Complete.
//
// A Scope belongs to a single operation and is not safe for concurrent use.
type Scope struct {
	id    string
	db    Beginner
	opts  *sql.TxOptions
	tx    *sql.Tx
	state ScopeState
}

// NewScope returns an idle scope over db.
func NewScope(db Beginner, opts *sql.TxOptions) *Scope {
	return &Scope{id: uuid.NewString(), db: db, opts: opts}
}

// ID is a random identifier used to correlate log lines of one operation.
func (s *Scope) ID() string { return s.id }

// State reports the current lifecycle state.
func (s *Scope) State() ScopeState { return s.state }

// Tx returns the scope's transaction, beginning it on first use.
func (s *Scope) Tx(ctx context.Context) (DBTX, error) {
	switch s.state {
	case ScopeOpen:
		return s.tx, nil
	case ScopeCommitted, ScopeRolledBack:
		return nil, ErrScopeClosed
	}

	tx, err := s.db.BeginTx(ctx, s.opts)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	s.tx = tx
	s.state = ScopeOpen
	return tx, nil
}

// Complete ends the scope: commit when opErr is nil, rollback otherwise.
// An idle scope becomes terminal without touching the database.
// The returned error is the commit or rollback failure, if any.
func (s *Scope) Complete(opErr error) error {
	switch s.state {
	case ScopeCommitted, ScopeRolledBack:
		return ErrScopeClosed
	case ScopeIdle:
		if opErr != nil {
			s.state = ScopeRolledBack
		} else {
			s.state = ScopeCommitted
		}
		return nil
	}

	if opErr != nil {
		s.state = ScopeRolledBack
		if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			return fmt.Errorf("rollback: %w", err)
		}
		return nil
	}

	s.state = ScopeCommitted
	if err := s.tx.Commit(); err != nil {
		s.state = ScopeRolledBack
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type scopeKey struct{}

// ContextWithScope returns a child context carrying s.
func ContextWithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFromContext returns the active scope carried by ctx, if any.
// Terminal scopes are not returned.
func ScopeFromContext(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(*Scope)
	if !ok || s == nil {
		return nil, false
	}
	if s.state == ScopeCommitted || s.state == ScopeRolledBack {
		return nil, false
	}
	return s, true
}

// WithScope runs fn inside a unit of work.
//
// If ctx already carries an active scope, fn joins it and the outermost
// WithScope call decides the outcome. Otherwise a new scope is created and,
// once fn returns, committed on success or rolled back on error or panic.
// Panics are rethrown after rollback.
//
// Typical use:
//
//	err := dbx.WithScope(ctx, db, nil, func(ctx context.Context, s *dbx.Scope) error {
//	    tx, err := s.Tx(ctx)
//	    if err != nil {
//	        return err
//	    }
//	    return repos.Users(tx).Update(ctx, u)
//	})
func WithScope(ctx context.Context, db Beginner, opts *sql.TxOptions, fn func(ctx context.Context, s *Scope) error) (err error) {
	if s, ok := ScopeFromContext(ctx); ok {
		return fn(ctx, s)
	}

	s := NewScope(db, opts)
	ctx = ContextWithScope(ctx, s)

	defer func() {
		if p := recover(); p != nil {
			_ = s.Complete(fmt.Errorf("panic: %v", p))
			panic(p)
		}
		if cerr := s.Complete(err); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	err = fn(ctx, s)
	return err
}
