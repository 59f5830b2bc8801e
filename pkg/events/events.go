// Package events defines event types for execution lifecycle notifications.
package events

import (
	"time"
)

type EventType string

// Kafka topics.
const ExecutionTopic = "arion.executions" // execution lifecycle events
const DefinitionTopic = "arion.definitions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Execution lifecycle events.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionSuspendedEvent EventType = "execution.suspended"
	ExecutionResumedEvent   EventType = "execution.resumed"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"

	// Approval events.
	ApprovalRequestedEvent EventType = "approval.requested"
	ApprovalDecidedEvent   EventType = "approval.decided"

	// Definition lifecycle events.
	DefinitionPublishedEvent   EventType = "definition.published"
	DefinitionUnpublishedEvent EventType = "definition.unpublished"
)

type BaseEvent struct {
	ID           string         `json:"id"`
	Type         EventType      `json:"type"`
	Timestamp    time.Time      `json:"timestamp"`
	DefinitionID string         `json:"definition_id"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID  string         `json:"execution_id"`
	CreatedBy    string         `json:"created_by"`
	TriggerInput map[string]any `json:"trigger_input,omitempty"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionSuspended struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	Reason      string `json:"reason"`
	ResumeToken string `json:"resume_token,omitempty"`
}

func (e ExecutionSuspended) GetType() EventType {
	return ExecutionSuspendedEvent
}

type ExecutionResumed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
}

func (e ExecutionResumed) GetType() EventType {
	return ExecutionResumedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	Output      any           `json:"output,omitempty"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	Error       string `json:"error"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionCancelled struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	CancelledBy string `json:"cancelled_by"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

type ApprovalRequested struct {
	BaseEvent

	ExecutionID string   `json:"execution_id"`
	ApprovalID  string   `json:"approval_id"`
	NodeID      string   `json:"node_id"`
	AssigneeIDs []string `json:"assignee_ids"`
}

func (e ApprovalRequested) GetType() EventType {
	return ApprovalRequestedEvent
}

type ApprovalDecided struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	ApprovalID  string `json:"approval_id"`
	NodeID      string `json:"node_id"`
	Decision    string `json:"decision"`
	DecidedBy   string `json:"decided_by"`
}

func (e ApprovalDecided) GetType() EventType {
	return ApprovalDecidedEvent
}

type DefinitionPublished struct {
	BaseEvent

	GroupID string `json:"group_id"`
	Version int    `json:"version"`
}

func (e DefinitionPublished) GetType() EventType {
	return DefinitionPublishedEvent
}

type DefinitionUnpublished struct {
	BaseEvent

	GroupID string `json:"group_id"`
	Version int    `json:"version"`
}

func (e DefinitionUnpublished) GetType() EventType {
	return DefinitionUnpublishedEvent
}
