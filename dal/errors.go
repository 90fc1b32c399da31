package dal

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by point lookups for unknown users.
var ErrNotFound = errors.New("record not found")

// StorageError wraps a database failure that persisted after one retry.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
