package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/vkm-portal/internal/repository"
)

// Kind classifies a service failure.  Handlers translate kinds into HTTP
// status codes; the message of an *Error is safe to show to users.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Error is a classified failure.  Err carries the user-facing message and
// stays reachable through errors.Is.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Err: errors.New(msg)}
}

var (
	ErrUserNotFound         = newError(KindNotFound, "user not found")
	ErrModuleNotFound       = newError(KindNotFound, "module does not exist")
	ErrInvalidModuleID      = newError(KindValidation, "invalid module id")
	ErrInvalidUserID        = newError(KindValidation, "invalid user id")
	ErrDuplicateEmail       = newError(KindConflict, "email already in use")
	ErrDuplicateUsername    = newError(KindConflict, "username already in use")
	ErrInvalidCredentials   = newError(KindAuthentication, "invalid credentials")
	ErrOAuthOnlyAccount     = newError(KindAuthentication, "this account signs in with Microsoft")
	ErrAccountConflict      = newError(KindConflict, "an account with this email already exists")
	ErrNoChanges            = newError(KindValidation, "no changes to save")
	ErrInvalidExternalToken = newError(KindAuthentication, "invalid Microsoft token")
	ErrPasswordOnOAuth      = newError(KindValidation, "a password cannot be set on a Microsoft account")
	ErrInvalidRoles         = newError(KindValidation, "roles must be a non-empty subset of admin, teacher, student")
	ErrTrainingUnavailable  = newError(KindUpstream, "recommendation service unavailable")
)

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// validation wraps a field validation error.
func validation(err error) error {
	return &Error{Kind: KindValidation, Err: err}
}

// loginFailure reclassifies a failure as an authentication error while
// keeping the original sentinel reachable.
func loginFailure(err error) error {
	return &Error{Kind: KindAuthentication, Err: err}
}

// fromRepo maps repository sentinels onto service errors.  Unknown errors
// are wrapped with op for the logs and classified as internal.
func fromRepo(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, repository.ErrModuleNotFound):
		return ErrModuleNotFound
	case errors.Is(err, repository.ErrDuplicateEmail):
		return ErrDuplicateEmail
	case errors.Is(err, repository.ErrDuplicateUsername):
		return ErrDuplicateUsername
	case errors.Is(err, repository.ErrConflict):
		return ErrAccountConflict
	case errors.Is(err, repository.ErrInvalidID):
		return ErrInvalidUserID
	}
	return fmt.Errorf("%s: %w", op, err)
}
