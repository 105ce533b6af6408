// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values allow higher layers such as the
// service package to distinguish between different failure scenarios
// without inspecting driver errors.
package repository

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
)

var (
	// ErrInvalidID is returned for ids that are not positive integers.
	ErrInvalidID = errors.New("invalid id")

	// ErrUserNotFound is returned when a user id, email, username or
	// OAuth link does not resolve.
	ErrUserNotFound = errors.New("user not found")

	// ErrModuleNotFound is returned when a catalog lookup misses.
	ErrModuleNotFound = errors.New("module not found")

	// ErrDuplicateEmail and ErrDuplicateUsername signal a unique key
	// violation on the users table.
	ErrDuplicateEmail    = errors.New("email already exists")
	ErrDuplicateUsername = errors.New("username already exists")

	// ErrConflict is returned for any other unique key violation, such as a
	// second account linked to the same external identity.
	ErrConflict = errors.New("conflict")
)

// mysqlDuplicateEntry is the server error number for a unique key violation.
const mysqlDuplicateEntry = 1062

// ParseID parses a path or claim id.  Zero, negative and non-numeric values
// are rejected with ErrInvalidID.
func ParseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidID
	}
	return id, nil
}

// classifyUserWriteErr maps duplicate key errors from the users table onto
// sentinel errors.  Other errors are returned unchanged.
func classifyUserWriteErr(err error) error {
	var me *mysql.MySQLError
	if !errors.As(err, &me) || me.Number != mysqlDuplicateEntry {
		return err
	}
	switch {
	case strings.Contains(me.Message, "uq_users_email"):
		return ErrDuplicateEmail
	case strings.Contains(me.Message, "uq_users_username"):
		return ErrDuplicateUsername
	default:
		return ErrConflict
	}
}
