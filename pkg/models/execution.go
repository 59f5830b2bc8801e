package models

import (
	"slices"
	"time"
)

// ExecutionStatus represents the lifecycle state of an execution instance.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusSuspended ExecutionStatus = "suspended"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// validExecutionTransitions is the closed transition table. Terminal states
// have no outgoing transitions; a resume event against a terminal instance is
// rejected before any state is touched.
var validExecutionTransitions = map[ExecutionStatus][]ExecutionStatus{
	ExecutionStatusRunning: {
		ExecutionStatusSuspended,
		ExecutionStatusCompleted,
		ExecutionStatusFailed,
		ExecutionStatusCancelled,
	},
	ExecutionStatusSuspended: {
		ExecutionStatusRunning,
		ExecutionStatusCancelled,
	},
}

// CanTransition reports whether from -> to is a legal status transition.
func CanTransition(from, to ExecutionStatus) bool {
	return slices.Contains(validExecutionTransitions[from], to)
}

// Terminal reports whether the status is final.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// SuspendReason identifies why a node left the active set.
type SuspendReason string

const (
	SuspendReasonTimer    SuspendReason = "timer"
	SuspendReasonApproval SuspendReason = "approval"
	SuspendReasonChild    SuspendReason = "child"
	SuspendReasonTool     SuspendReason = "tool"
)

// SuspendedNode records one suspended node of an instance, keyed by node id in
// ExecutionInstance.SuspendedNodes. ResumeToken is the handle an external
// event (approval decision, timer fire, child completion, tool callback) uses
// to address this suspension.
type SuspendedNode struct {
	NodeID      string            `json:"node_id"`
	Reason      SuspendReason     `json:"reason"`
	ResumeToken string            `json:"resume_token"`
	WakeAt      *time.Time        `json:"wake_at,omitempty"`
	SuspendedAt time.Time         `json:"suspended_at"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// LoopFrame is one per-iteration binding frame pushed by a Loop node. The
// collection is snapshotted when the loop first runs, so concurrent variable
// writes never change an in-flight iteration set.
type LoopFrame struct {
	NodeID string `json:"node_id"`
	Items  []any  `json:"items"`
	Index  int    `json:"index"`
	Item   any    `json:"item"`
}

// HistoryEntry is one append-only transition record. Detail may contain raw
// internal error text and is never exposed through the query surface.
type HistoryEntry struct {
	NodeID    string    `json:"node_id"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	InputHash string    `json:"input_hash,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// History event names.
const (
	HistoryAdvanced             = "advanced"
	HistorySuspended            = "suspended"
	HistoryResumed              = "resumed"
	HistoryFailed               = "failed"
	HistoryCompleted            = "completed"
	HistoryCancelled            = "cancelled"
	HistoryMaxIterationsReached = "max_iterations_reached"
	HistoryNotificationFailed   = "notification_failed"
	HistoryApprovalTimeout      = "approval_timeout"
)

// InstanceError is the caller-facing failure summary. Message is redacted:
// raw collaborator errors stay in the history log only.
type InstanceError struct {
	NodeID  string `json:"node_id"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ExecutionInstance is one running or finished invocation of a process
// definition. It is owned exclusively by the engine; the access gate reads
// it but never mutates scope directly.
type ExecutionInstance struct {
	ID                string                    `json:"id"`
	DefinitionID      string                    `json:"definition_id"`
	DefinitionVersion int                       `json:"definition_version"`
	Status            ExecutionStatus           `json:"status"`
	ActiveNodes       []string                  `json:"active_node_ids"`
	SuspendedNodes    map[string]*SuspendedNode `json:"suspended_nodes,omitempty"`
	JoinWaits         map[string]int            `json:"join_waits,omitempty"` // join node id -> arrivals remaining
	Scope             *Scope                    `json:"scope"`
	PendingApprovals  map[string]string         `json:"pending_approvals,omitempty"` // node id -> approval id
	History           []HistoryEntry            `json:"history"`
	Output            any                       `json:"output,omitempty"`
	Error             *InstanceError            `json:"error,omitempty"`
	CreatedBy         string                    `json:"created_by"`
	ParentID          string                    `json:"parent_execution_id,omitempty"`
	ParentNodeID      string                    `json:"parent_node_id,omitempty"`
	CreatedAt         time.Time                 `json:"created_at"`
	UpdatedAt         time.Time                 `json:"updated_at"`
	CompletedAt       *time.Time                `json:"completed_at,omitempty"`
}

// ActivateNode adds a node id to the active set (set semantics).
func (e *ExecutionInstance) ActivateNode(nodeID string) {
	if !slices.Contains(e.ActiveNodes, nodeID) {
		e.ActiveNodes = append(e.ActiveNodes, nodeID)
	}
}

// DeactivateNode removes a node id from the active set.
func (e *ExecutionInstance) DeactivateNode(nodeID string) {
	e.ActiveNodes = slices.DeleteFunc(e.ActiveNodes, func(id string) bool {
		return id == nodeID
	})
}

// SuspendedByToken finds the suspended node addressed by a resume token.
func (e *ExecutionInstance) SuspendedByToken(token string) *SuspendedNode {
	for _, s := range e.SuspendedNodes {
		if s.ResumeToken == token {
			return s
		}
	}

	return nil
}

// AppendHistory appends one transition record.
func (e *ExecutionInstance) AppendHistory(entry HistoryEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	e.History = append(e.History, entry)
}
