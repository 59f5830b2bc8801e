// Package services provides the caller-facing operations on definitions and
// executions, including the access gate in front of the engine.
package services

import (
	"errors"
	"fmt"
)

// Business logic errors. These indicate client errors (4xx responses).
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest      = errors.New("invalid request")
	ErrNameRequired        = errors.New("definition name is required")
	ErrNodesRequired       = errors.New("definition must have at least one node")
	ErrInvalidDecision     = errors.New("decision must be approved or rejected")
	ErrEmptyUserID         = errors.New("user id cannot be empty")
	ErrInvalidStatusFilter = errors.New("invalid execution status filter")
	ErrInvalidSortOrder    = errors.New("invalid sort order")

	// Authorization errors (403 Forbidden).
	ErrForbidden = errors.New("permission denied")

	// Business logic conflicts (409 Conflict).
	ErrCannotModifyPublished = errors.New("cannot modify a published definition")
	ErrAlreadyPublished      = errors.New("definition version is already published")
)

// ServiceError wraps service-level errors with operation context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks whether an error should map to HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrNameRequired) ||
		errors.Is(err, ErrNodesRequired) ||
		errors.Is(err, ErrInvalidDecision) ||
		errors.Is(err, ErrEmptyUserID) ||
		errors.Is(err, ErrInvalidStatusFilter) ||
		errors.Is(err, ErrInvalidSortOrder)
}

// IsForbidden checks whether an error should map to HTTP 403.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsConflict checks whether an error should map to HTTP 409.
func IsConflict(err error) bool {
	return errors.Is(err, ErrCannotModifyPublished) ||
		errors.Is(err, ErrAlreadyPublished)
}
