package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNotExecutable indicates the definition is not in published state.
	ErrNotExecutable = errors.New("definition is not executable")

	// ErrNotResumable indicates a resume event addressed an execution that
	// cannot accept it: terminal status, or no matching suspended node.
	ErrNotResumable = errors.New("execution is not resumable")

	// ErrNotCancellable indicates a cancel request hit a terminal execution.
	ErrNotCancellable = errors.New("execution is not cancellable")

	// ErrAlreadyDecided indicates an approval has already been finalized.
	ErrAlreadyDecided = errors.New("approval already decided")

	// ErrNotAssignee indicates the deciding user is not an assignee of the
	// approval record.
	ErrNotAssignee = errors.New("user is not an assignee of this approval")
)

// ResumeError wraps a failed resume with the execution and token involved.
type ResumeError struct {
	ExecutionID string
	Token       string
	Err         error
}

func (e *ResumeError) Error() string {
	return fmt.Sprintf("resume failed for execution %s (token %s): %v", e.ExecutionID, e.Token, e.Err)
}

func (e *ResumeError) Unwrap() error {
	return e.Err
}

func (e *ResumeError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsNotResumable checks if an error indicates a non-resumable execution.
func IsNotResumable(err error) bool {
	return errors.Is(err, ErrNotResumable)
}

// IsAlreadyDecided checks if an error indicates a finalized approval.
func IsAlreadyDecided(err error) bool {
	return errors.Is(err, ErrAlreadyDecided)
}
