package data

import (
	"errors"
	"fmt"
)

// ErrEntityNotFound is wrapped by repository errors for missing rows.
var ErrEntityNotFound = errors.New("entity not found")

// RepositoryError wraps a failed repository operation on a table.
type RepositoryError struct {
	Op    string
	Table string
	Err   error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s on %s: %v", e.Op, e.Table, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// DatabaseError wraps a failure of the database context itself.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database %s failed: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}
