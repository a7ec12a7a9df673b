package queue

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes queue failures.
type ErrorCode string

const (
	// CodeStorageUnavailable indicates the database could not be opened or
	// a statement against it failed. Offline submission is unavailable.
	CodeStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"

	// CodeDuplicateID indicates a record with the same id is already queued.
	CodeDuplicateID ErrorCode = "DUPLICATE_ID"

	// CodeInvalidRecord indicates a record without an id or payload.
	CodeInvalidRecord ErrorCode = "INVALID_RECORD"
)

// Sentinels for errors.Is matching against *Error.
var (
	ErrStorageUnavailable = errors.New("offline storage unavailable")
	ErrDuplicateID        = errors.New("duplicate record id")
	ErrInvalidRecord      = errors.New("invalid record")
)

// Error is returned by every Store operation that fails.
type Error struct {
	Code     ErrorCode
	Op       string // "open", "add", "get all", "delete", ...
	RecordID string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Code)
	if e.RecordID != "" {
		msg += fmt.Sprintf(" (id=%s)", e.RecordID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the package sentinels by code.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrStorageUnavailable:
		return e.Code == CodeStorageUnavailable
	case ErrDuplicateID:
		return e.Code == CodeDuplicateID
	case ErrInvalidRecord:
		return e.Code == CodeInvalidRecord
	}
	return false
}

// IsStorageUnavailable reports whether err means the store cannot be used.
func IsStorageUnavailable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// IsDuplicateID reports whether err is a duplicate id rejection.
func IsDuplicateID(err error) bool {
	return errors.Is(err, ErrDuplicateID)
}

func storageError(op string, err error) *Error {
	return &Error{Code: CodeStorageUnavailable, Op: op, Err: err}
}
