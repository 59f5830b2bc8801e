package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrDefinitionNotFound indicates no definition exists for the given id.
	ErrDefinitionNotFound = errors.New("definition not found")

	// ErrPublishedDefinitionNotFound indicates a group has no published version.
	ErrPublishedDefinitionNotFound = errors.New("published definition not found")

	// ErrExecutionNotFound indicates no execution instance exists for the given id.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrApprovalNotFound indicates no approval record exists for the given id.
	ErrApprovalNotFound = errors.New("approval not found")

	// ErrTimerNotFound indicates no timer exists for the given token.
	ErrTimerNotFound = errors.New("timer not found")

	// ErrScheduleNotFound indicates no schedule exists for the given id.
	ErrScheduleNotFound = errors.New("schedule not found")
)

// StoreError wraps a repository failure with the operation and key involved.
type StoreError struct {
	Op  string // operation being performed, e.g. "ByID", "Save"
	Key string // aggregate id if applicable
	Err error
}

func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Key, e.Err)
	}

	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a store error with context.
func NewStoreError(op, key string, err error) *StoreError {
	return &StoreError{Op: op, Key: key, Err: err}
}

// IsDefinitionNotFound checks if an error indicates a missing definition.
func IsDefinitionNotFound(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound)
}

// IsExecutionNotFound checks if an error indicates a missing execution.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsApprovalNotFound checks if an error indicates a missing approval record.
func IsApprovalNotFound(err error) bool {
	return errors.Is(err, ErrApprovalNotFound)
}

// IsNotFound checks if an error indicates any missing aggregate.
func IsNotFound(err error) bool {
	for _, sentinel := range []error{
		ErrDefinitionNotFound,
		ErrPublishedDefinitionNotFound,
		ErrExecutionNotFound,
		ErrApprovalNotFound,
		ErrTimerNotFound,
		ErrScheduleNotFound,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}

	return false
}
