package storage

import (
	"errors"
	"fmt"

	"github.com/govai/console/internal/domain"
)

var (
	ErrNotFound     = errors.New("object not found")
	ErrKeyExists    = errors.New("object already exists at this key")
	ErrInvalidKey   = errors.New("invalid storage key")
	ErrTooLarge     = errors.New("object exceeds maximum size")
	ErrAccessDenied = errors.New("access denied")
)

// StorageError records which backend call failed for which key.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ToDomain maps a backend failure onto the error a tenant sees. Anything
// that is not the caller's fault, including denied bucket access, reports
// storage as unavailable so credentials problems are not leaked.
func ToDomain(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrTooLarge):
		return domain.Errorf(domain.ETOOLARGE, op, "File exceeds the maximum upload size")
	case errors.Is(err, ErrInvalidKey):
		return domain.Invalid(op, "Invalid file name")
	case errors.Is(err, ErrNotFound):
		return domain.Errorf(domain.ENOTFOUND, op, "The requested resource was not found")
	case errors.Is(err, ErrKeyExists):
		return domain.Errorf(domain.ECONFLICT, op, "A file with this name already exists")
	}
	return domain.Unavailable(err, op, "File storage is temporarily unavailable")
}
