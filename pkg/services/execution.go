package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arionlabs/arion/pkg/engine"
	"github.com/arionlabs/arion/pkg/models"
	"github.com/arionlabs/arion/pkg/persistence"
)

// ErrorView is the caller-facing failure summary. The message is a stable
// redacted text per error kind; raw collaborator errors stay in the
// execution history and are never exposed here.
type ErrorView struct {
	NodeID  string `json:"node_id"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ExecutionView is what the query surface exposes. History is only attached
// for callers holding PermViewAllExecutions.
type ExecutionView struct {
	ID                string                 `json:"id"`
	DefinitionID      string                 `json:"definition_id"`
	DefinitionVersion int                    `json:"definition_version"`
	Status            models.ExecutionStatus `json:"status"`
	Output            any                    `json:"output,omitempty"`
	Error             *ErrorView             `json:"error,omitempty"`
	PendingApprovals  map[string]string      `json:"pending_approvals,omitempty"`
	CreatedBy         string                 `json:"created_by"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
	CompletedAt       *time.Time             `json:"completed_at,omitempty"`
	History           []models.HistoryEntry  `json:"history,omitempty"`
}

// Execution wraps the engine with the access gate: creators see their own
// executions, PermViewAllExecutions sees everything, and cancellation is
// limited to the creator, the definition owner, or PermCancelExecutions.
type Execution struct {
	engine      *engine.Engine
	persistence persistence.Persistence
	permissions PermissionChecker
	logger      *slog.Logger
}

// NewExecution creates a new execution service.
func NewExecution(eng *engine.Engine, store persistence.Persistence, permissions PermissionChecker, logger *slog.Logger) *Execution {
	return &Execution{
		engine:      eng,
		persistence: store,
		permissions: permissions,
		logger:      logger.With("module", "execution_service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Execution) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	if err := s.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Start triggers a new execution of a published definition on behalf of
// userID.
func (s *Execution) Start(ctx context.Context, definitionID string, input map[string]any, userID string) (*ExecutionView, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	inst, err := s.engine.StartExecution(ctx, definitionID, input, userID)
	if err != nil {
		return nil, err
	}

	return s.view(inst, false), nil
}

// Get returns one execution, gated by creator identity or the view-all
// permission. Privileged callers also receive the history log.
func (s *Execution) Get(ctx context.Context, executionID, userID string) (*ExecutionView, error) {
	inst, err := s.persistence.Executions().ByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	privileged, err := s.canViewAll(ctx, userID)
	if err != nil {
		return nil, err
	}

	if inst.CreatedBy != userID && !privileged {
		return nil, &ServiceError{Op: "get_execution", Code: "forbidden", Err: ErrForbidden}
	}

	return s.view(inst, privileged), nil
}

// ListRequest filters the execution list. CreatorID defaults to the caller;
// naming someone else requires the view-all permission.
type ListRequest struct {
	CreatorID string
	Status    *models.ExecutionStatus
}

// List returns executions visible to userID, newest first.
func (s *Execution) List(ctx context.Context, req ListRequest, userID string) ([]*ExecutionView, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	if req.Status != nil && !validStatus(*req.Status) {
		return nil, ErrInvalidStatusFilter
	}

	creator := req.CreatorID
	if creator == "" {
		creator = userID
	}

	privileged, err := s.canViewAll(ctx, userID)
	if err != nil {
		return nil, err
	}

	if creator != userID && !privileged {
		return nil, &ServiceError{Op: "list_executions", Code: "forbidden", Err: ErrForbidden}
	}

	instances, err := s.persistence.Executions().ByCreator(ctx, creator)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	views := make([]*ExecutionView, 0, len(instances))

	for _, inst := range instances {
		if req.Status != nil && inst.Status != *req.Status {
			continue
		}

		views = append(views, s.view(inst, privileged))
	}

	return views, nil
}

// Cancel terminates a running or suspended execution. Allowed for the
// creator, the definition owner, or PermCancelExecutions holders.
func (s *Execution) Cancel(ctx context.Context, executionID, userID string) error {
	inst, err := s.persistence.Executions().ByID(ctx, executionID)
	if err != nil {
		return err
	}

	allowed := inst.CreatedBy == userID
	if !allowed {
		def, err := s.persistence.Definitions().ByID(ctx, inst.DefinitionID)
		if err == nil && def.Owner == userID {
			allowed = true
		}
	}

	if !allowed {
		allowed, err = s.permissions.HasPermission(ctx, userID, PermCancelExecutions)
		if err != nil {
			return fmt.Errorf("permission lookup failed: %w", err)
		}
	}

	if !allowed {
		return &ServiceError{Op: "cancel_execution", Code: "forbidden", Err: ErrForbidden}
	}

	return s.engine.CancelExecution(ctx, executionID, userID)
}

// Decide records an approval decision. Assignee membership is enforced by
// the engine against the record snapshotted at suspension time.
func (s *Execution) Decide(ctx context.Context, approvalID, userID string, decision models.ApprovalDecision) error {
	if userID == "" {
		return ErrEmptyUserID
	}

	if decision != models.DecisionApproved && decision != models.DecisionRejected {
		return ErrInvalidDecision
	}

	err := s.engine.DecideApproval(ctx, approvalID, userID, decision)
	if errors.Is(err, engine.ErrNotAssignee) {
		return &ServiceError{Op: "decide_approval", Code: "forbidden", Err: ErrForbidden}
	}

	return err
}

// PendingApprovals lists the undecided approvals assigned to userID.
func (s *Execution) PendingApprovals(ctx context.Context, userID string) ([]*models.ApprovalRecord, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	return s.persistence.Approvals().PendingForUser(ctx, userID)
}

func (s *Execution) canViewAll(ctx context.Context, userID string) (bool, error) {
	ok, err := s.permissions.HasPermission(ctx, userID, PermViewAllExecutions)
	if err != nil {
		return false, fmt.Errorf("permission lookup failed: %w", err)
	}

	return ok, nil
}

func (s *Execution) view(inst *models.ExecutionInstance, includeHistory bool) *ExecutionView {
	v := &ExecutionView{
		ID:                inst.ID,
		DefinitionID:      inst.DefinitionID,
		DefinitionVersion: inst.DefinitionVersion,
		Status:            inst.Status,
		Output:            inst.Output,
		PendingApprovals:  inst.PendingApprovals,
		CreatedBy:         inst.CreatedBy,
		CreatedAt:         inst.CreatedAt,
		UpdatedAt:         inst.UpdatedAt,
		CompletedAt:       inst.CompletedAt,
	}

	if inst.Error != nil {
		v.Error = &ErrorView{
			NodeID:  inst.Error.NodeID,
			Kind:    inst.Error.Kind,
			Message: redactedMessage(inst.Error.Kind),
		}
	}

	if includeHistory {
		v.History = inst.History
	}

	return v
}

// redactedMessage maps an error kind to its stable caller-facing text.
func redactedMessage(kind string) string {
	switch kind {
	case "child_failure", "child_start_failure":
		return "a nested process execution failed"
	default:
		return "a step of this process failed"
	}
}

func validStatus(status models.ExecutionStatus) bool {
	switch status {
	case models.ExecutionStatusRunning, models.ExecutionStatusSuspended,
		models.ExecutionStatusCompleted, models.ExecutionStatusFailed,
		models.ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}
