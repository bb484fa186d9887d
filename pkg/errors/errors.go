package errors

import (
	"errors"
	"fmt"
)

var (
	ErrConnectionFailed      = errors.New("canvas connection failed")
	ErrCredentialsMissing    = errors.New("canvas credentials not configured")
	ErrSyncInProgress        = errors.New("sync already in progress")
	ErrTermNotFound          = errors.New("term not found")
	ErrCourseNotFound        = errors.New("course not found")
	ErrCourseNotLinked       = errors.New("course is not linked to canvas")
	ErrCheckpointUnavailable = errors.New("checkpoint store unavailable")
	ErrSyncCancelled         = errors.New("sync cancelled by user")
)

// RetryableError marks a remote API failure that the client may retry
// (rate limits, upstream 5xx). Exhausting the retry budget escalates it
// to a per-course error, not an attempt-level failure.
type RetryableError struct {
	Err     error
	Message string
}

func (e RetryableError) Error() string {
	return fmt.Sprintf("retryable error: %s - %s", e.Message, e.Err.Error())
}

func (e RetryableError) Unwrap() error {
	return e.Err
}

func NewRetryableError(err error, message string) error {
	return RetryableError{
		Err:     err,
		Message: message,
	}
}

func IsRetryable(err error) bool {
	var re RetryableError
	return errors.As(err, &re)
}

// ReconcileError records a single remote entity that failed to map to a
// local row. The unit is skipped and the sync continues.
type ReconcileError struct {
	Entity string
	Name   string
	Err    error
}

func (e ReconcileError) Error() string {
	return fmt.Sprintf("failed to reconcile %s '%s': %s", e.Entity, e.Name, e.Err.Error())
}

func (e ReconcileError) Unwrap() error {
	return e.Err
}

func NewReconcileError(entity, name string, err error) error {
	return ReconcileError{
		Entity: entity,
		Name:   name,
		Err:    err,
	}
}
