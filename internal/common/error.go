// Package common defines shared constants and sentinel errors used across
// the membership layers. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

// Fault kinds. Every error returned by the services unwraps to one of these.
var (
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrLocked               = errors.New("locked")
	ErrValidationRejected   = errors.New("validation rejected")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrProviderFault        = errors.New("provider fault")
	ErrInvalidInput         = errors.New("invalid input")
)

// Specific faults. Each wraps exactly one kind.
var (
	ErrUserNotFound       = kindError{kind: ErrNotFound, msg: "user not found"}
	ErrRoleNotFound       = kindError{kind: ErrNotFound, msg: "role not found"}
	ErrProfileNotFound    = kindError{kind: ErrNotFound, msg: "profile not found"}
	ErrNotAMember         = kindError{kind: ErrNotFound, msg: "user is not in role"}
	ErrAlreadyMember      = kindError{kind: ErrConflict, msg: "user is already in role"}
	ErrRolePopulated      = kindError{kind: ErrConflict, msg: "cannot delete a populated role"}
	ErrDuplicateRole      = kindError{kind: ErrConflict, msg: "role name already exists"}
	ErrDuplicateUserName  = kindError{kind: ErrConflict, msg: "duplicate user name"}
	ErrDuplicateEmail     = kindError{kind: ErrConflict, msg: "duplicate email"}
	ErrUserLockedOut      = kindError{kind: ErrLocked, msg: "user is locked out"}
	ErrMembershipPassword = kindError{kind: ErrValidationRejected, msg: "membership password fault"}
)

type kindError struct {
	kind error
	msg  string
}

func (e kindError) Error() string { return e.msg }

func (e kindError) Unwrap() error { return e.kind }

// Fault is an operation-scoped error. Kind is one of the sentinels above;
// Err optionally carries the underlying cause.
type Fault struct {
	Op   string
	Kind error
	Msg  string
	Err  error
}

func (f *Fault) Error() string {
	s := f.Op + ": " + f.Kind.Error()
	if f.Msg != "" {
		s += ": " + f.Msg
	}
	if f.Err != nil {
		s += ": " + f.Err.Error()
	}
	return s
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (f *Fault) Unwrap() []error {
	if f.Err == nil {
		return []error{f.Kind}
	}
	return []error{f.Kind, f.Err}
}

// NewFault builds a Fault with a formatted message.
func NewFault(op string, kind error, format string, args ...any) *Fault {
	return &Fault{Op: op, Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// ProviderFault wraps an infrastructure failure. A nil err yields nil.
func ProviderFault(op string, err error) error {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) && errors.Is(err, ErrProviderFault) {
		return err
	}
	return &Fault{Op: op, Kind: ErrProviderFault, Err: err}
}

// KindOf returns the fault kind err unwraps to, or nil when it matches none.
func KindOf(err error) error {
	for _, k := range []error{ErrProviderFault, ErrNotFound, ErrConflict, ErrLocked,
		ErrValidationRejected, ErrUnsupportedOperation, ErrInvalidInput} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
