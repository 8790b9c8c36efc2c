package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated is returned when an operation needs a current
	// user and there is none.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrForbidden is the storage layer's row-level authorization refusal.
	ErrForbidden = errors.New("forbidden: row not owned by caller")
)

// StorageError wraps any failure coming back from a storage provider.
type StorageError struct {
	Op  string // list, insert, delete
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError wraps err unless it already is a StorageError.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err carries a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// ValidationError describes bad user input. It is raised at the
// presentation boundary, never inside the sync core.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}
