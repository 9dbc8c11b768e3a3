package media

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when an identifier or storage key does not
	// resolve to a live record or blob.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned by a MetadataStore when a record with the
	// same id or storage key already exists.
	ErrDuplicateKey = errors.New("duplicate record")
)

// ValidationError describes an upload that was rejected before any side
// effect took place. Reason is safe to show to the client.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return e.Reason
}

// StorageError wraps an I/O failure from a Storer or MetadataStore.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %q: %s", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Cause lets errors.Cause see through a StorageError.
func (e *StorageError) Cause() error { return e.Err }

func storageErr(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Key: key, Err: err}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// IsStorage reports whether err is a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
