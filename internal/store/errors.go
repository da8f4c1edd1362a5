package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/ncruces/go-sqlite3"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound is returned by Update/Delete when the row does not exist.
	// Get returns (nil, nil) instead.
	ErrNotFound = errors.New("not found")

	// ErrCrossBackendParent is returned when a parent reference points at a
	// row owned by a different backend.
	ErrCrossBackendParent = errors.New("parent belongs to a different backend")

	// ErrAlreadyPushed is wrapped in the ConflictError returned when a
	// created row already received a remote id from another sync pass.
	ErrAlreadyPushed = errors.New("row already pushed")

	// ErrSyncLocked is returned by AcquireSyncLock when another owner holds
	// a live lease on the backend.
	ErrSyncLocked = errors.New("sync lease held by another owner")
)

// ConflictError reports a constraint violation. Key names the offending
// unique key or "foreign key" for a dangling reference.
//
// Callers skip the row and continue; a conflict never means the store is
// unusable.
type ConflictError struct {
	Table string
	Key   string
	Err   error
}

func (e *ConflictError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("conflict on %s: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("conflict on %s(%s): %v", e.Table, e.Key, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// UnavailableError reports that the database could not be reached: it is
// closed, locked past the busy timeout, or the file cannot be read or written.
// The operation was abandoned and nothing was applied.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable during %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// IsConflict reports whether err is a constraint violation.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsUnavailable reports whether err means the store could not be reached.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// classify maps a driver error onto the store's error kinds. Errors that
// are already classified pass through unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsConflict(err) || IsUnavailable(err) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrCrossBackendParent) {
		return err
	}

	switch {
	case errors.Is(err, sqlite3.CONSTRAINT):
		table, key := parseConstraint(err.Error())
		return &ConflictError{Table: table, Key: key, Err: err}

	case errors.Is(err, sqlite3.BUSY),
		errors.Is(err, sqlite3.LOCKED),
		errors.Is(err, sqlite3.IOERR),
		errors.Is(err, sqlite3.CANTOPEN),
		errors.Is(err, sqlite3.FULL),
		errors.Is(err, sqlite3.READONLY),
		errors.Is(err, sqlite3.NOTADB),
		errors.Is(err, sqlite3.CORRUPT),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, context.DeadlineExceeded),
		strings.Contains(err.Error(), "database is closed"):
		return &UnavailableError{Op: op, Err: err}
	}

	return fmt.Errorf("failed to %s: %w", op, err)
}

// parseConstraint extracts table and columns from SQLite messages such as
// "UNIQUE constraint failed: projects.backend_id, projects.remote_id".
func parseConstraint(msg string) (table, key string) {
	if strings.Contains(msg, "FOREIGN KEY") {
		return "", "foreign key"
	}
	const marker = "constraint failed: "
	i := strings.LastIndex(msg, marker)
	if i < 0 {
		return "", "constraint"
	}

	var cols []string
	for _, part := range strings.Split(msg[i+len(marker):], ",") {
		part = strings.TrimSpace(part)
		if dot := strings.IndexByte(part, '.'); dot >= 0 {
			if table == "" {
				table = part[:dot]
			}
			part = part[dot+1:]
		}
		if part != "" {
			cols = append(cols, part)
		}
	}
	return table, strings.Join(cols, ", ")
}
