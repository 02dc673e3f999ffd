package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"hisab/internal/core"
)

// ErrNotFound is returned by single-row reads when the id does not resolve.
var ErrNotFound = core.ErrNotFound

// StoreError wraps a persistence failure with the operation that hit it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// wrap turns a driver error into a *StoreError. sql.ErrNoRows becomes
// ErrNotFound; nil stays nil.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return &StoreError{Op: op, Err: err}
}
