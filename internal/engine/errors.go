package engine

import (
	"errors"
	"fmt"
)

// RunErrorCode categorizes errors that halt an invocation.
type RunErrorCode string

const (
	// ErrCodeLockNotAcquired means the lock stayed held for every attempt.
	// A later invocation may retry.
	ErrCodeLockNotAcquired RunErrorCode = "LOCK_NOT_ACQUIRED"

	// ErrCodeStore means the shared store failed.
	ErrCodeStore RunErrorCode = "STORE_FAILURE"

	// ErrCodeUnknownStage means the persisted stage holds an unexpected value.
	ErrCodeUnknownStage RunErrorCode = "UNKNOWN_STAGE"

	// ErrCodeCancelled means the context was cancelled mid-run.
	ErrCodeCancelled RunErrorCode = "CANCELLED"
)

// RunError halts an invocation. Record-level failures never produce one;
// they are logged and skipped.
type RunError struct {
	// Code identifies the error category.
	Code RunErrorCode

	// Invocation identifies the halted invocation.
	Invocation string

	// Stage is the stage the invocation was in.
	Stage string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: %v (invocation=%s, stage=%s)", e.Code, e.Err, e.Invocation, e.Stage)
	}
	return fmt.Sprintf("%s: %v (invocation=%s)", e.Code, e.Err, e.Invocation)
}

// Unwrap returns the underlying cause.
func (e *RunError) Unwrap() error {
	return e.Err
}

// IsLockError returns true if err halted the run because the lock could
// not be acquired. Uses errors.As to handle wrapped errors.
func IsLockError(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == ErrCodeLockNotAcquired
	}
	return false
}

// IsStoreError returns true if err halted the run because of a store failure.
func IsStoreError(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == ErrCodeStore
	}
	return false
}
