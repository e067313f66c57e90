package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrStorageUnavailable means no durable storage could be opened; the application must not proceed.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrStorage matches every *StorageError.
	ErrStorage = errors.New("storage error")
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
)

// StorageError reports a failed read or write against the local store.
type StorageError struct {
	// Op names the failed operation, e.g. "put entry".
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrStorage) true for every StorageError.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
