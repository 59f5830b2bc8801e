// Package nodes implements one executor per node kind. Executors are pure
// with respect to instance state: they receive a scope snapshot and return
// an Outcome describing the transition; the engine applies it under the
// instance lock.
package nodes

import (
	"time"

	"github.com/arionlabs/arion/pkg/models"
)

// OutcomeKind is the closed set of executor results.
type OutcomeKind int

const (
	// OutcomeAdvance activates the next node(s).
	OutcomeAdvance OutcomeKind = iota
	// OutcomeSuspend parks the node until an external event resumes it.
	OutcomeSuspend
	// OutcomeFail fails the whole instance.
	OutcomeFail
	// OutcomeComplete terminates the instance successfully (End node only).
	OutcomeComplete
)

// ChildRequest asks the engine to start a nested execution. The parent node
// suspends until the child reaches a terminal state.
type ChildRequest struct {
	DefinitionID      string
	Input             map[string]any
	ContinueOnFailure bool
}

// Outcome is the full result of one node execution. Kind selects which of
// the remaining fields are meaningful.
type Outcome struct {
	Kind OutcomeKind

	// Advance / Complete
	Next      []string
	Output    any
	HasOutput bool

	// Suspend
	Reason      models.SuspendReason
	ResumeToken string
	WakeAt      *time.Time
	Approval    *models.ApprovalRecord
	Child       *ChildRequest
	SuspendMeta map[string]string

	// Fail
	Err error

	// Loop frame mutations, applied by the engine under the instance lock.
	Frame    *models.LoopFrame
	PopFrame bool

	// HistoryEvent records an extra history entry beyond the standard
	// advanced/suspended/failed records (e.g. max_iterations_reached).
	HistoryEvent string
}

// AdvanceTo builds an advance outcome without output.
func AdvanceTo(next ...string) Outcome {
	return Outcome{Kind: OutcomeAdvance, Next: next}
}

// AdvanceWithOutput builds an advance outcome whose output is stored under
// the node's output variable.
func AdvanceWithOutput(output any, next ...string) Outcome {
	return Outcome{Kind: OutcomeAdvance, Next: next, Output: output, HasOutput: true}
}

// SuspendTimer builds a timer suspension waking at the given time.
func SuspendTimer(token string, wakeAt time.Time) Outcome {
	return Outcome{
		Kind:        OutcomeSuspend,
		Reason:      models.SuspendReasonTimer,
		ResumeToken: token,
		WakeAt:      &wakeAt,
	}
}

// SuspendApproval builds an approval suspension carrying the record the
// engine persists.
func SuspendApproval(record *models.ApprovalRecord) Outcome {
	return Outcome{
		Kind:        OutcomeSuspend,
		Reason:      models.SuspendReasonApproval,
		ResumeToken: record.ID,
		WakeAt:      record.TimeoutAt,
		Approval:    record,
	}
}

// Fail builds a failing outcome.
func Fail(err error) Outcome {
	return Outcome{Kind: OutcomeFail, Err: err}
}
