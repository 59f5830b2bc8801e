package models

import "time"

// ApprovalDecision is the state of an approval record.
type ApprovalDecision string

const (
	DecisionPending  ApprovalDecision = "pending"
	DecisionApproved ApprovalDecision = "approved"
	DecisionRejected ApprovalDecision = "rejected"
)

// ApprovalRecord is created when an Approval node suspends an execution and
// finalized exactly once by a decision event. Assignees are resolved at
// suspension time and never re-resolved: an org-chart change after suspension
// must not silently redirect an in-flight approval.
type ApprovalRecord struct {
	ID          string           `json:"id"`
	ExecutionID string           `json:"execution_id"`
	NodeID      string           `json:"node_id"`
	AssigneeIDs []string         `json:"assignee_ids"`
	Decision    ApprovalDecision `json:"decision"`
	DecidedBy   string           `json:"decided_by,omitempty"`
	DecidedAt   *time.Time       `json:"decided_at,omitempty"`
	TimeoutAt   *time.Time       `json:"timeout_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Decided reports whether the record has been finalized.
func (a *ApprovalRecord) Decided() bool {
	return a.Decision != DecisionPending
}

// IsAssignee reports whether the given user may decide this approval.
func (a *ApprovalRecord) IsAssignee(userID string) bool {
	for _, id := range a.AssigneeIDs {
		if id == userID {
			return true
		}
	}

	return false
}

// Timer is one durable wake-up registration: a Delay node's wake time or an
// Approval node's timeout. The timer service polls due timers and feeds them
// back through the engine's resume entry point.
type Timer struct {
	Token       string    `json:"token"`
	ExecutionID string    `json:"execution_id"`
	NodeID      string    `json:"node_id"`
	WakeAt      time.Time `json:"wake_at"`
	CreatedAt   time.Time `json:"created_at"`
}
