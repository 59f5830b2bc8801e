package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/arionlabs/arion/pkg/models"
	"github.com/arionlabs/arion/pkg/persistence"
)

// ExecutionRepository stores execution instances with state as JSONB. Save
// is the checkpoint write path: the engine rewrites the whole row after
// every transition.
type ExecutionRepository struct {
	db *sql.DB
}

func (r *ExecutionRepository) Save(ctx context.Context, inst *models.ExecutionInstance) error {
	cols, err := marshalExecutionState(inst)
	if err != nil {
		return persistence.NewStoreError("Save", inst.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO executions (id, definition_id, definition_version, status,
			active_nodes, suspended_nodes, join_waits, scope, pending_approvals,
			history, output, error, created_by, parent_id, parent_node_id,
			created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			active_nodes = EXCLUDED.active_nodes,
			suspended_nodes = EXCLUDED.suspended_nodes,
			join_waits = EXCLUDED.join_waits,
			scope = EXCLUDED.scope,
			pending_approvals = EXCLUDED.pending_approvals,
			history = EXCLUDED.history,
			output = EXCLUDED.output,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at
	`, inst.ID, inst.DefinitionID, inst.DefinitionVersion, inst.Status,
		cols.activeNodes, cols.suspendedNodes, cols.joinWaits, cols.scope, cols.pendingApprovals,
		cols.history, cols.output, cols.instError, inst.CreatedBy,
		nullString(inst.ParentID), nullString(inst.ParentNodeID),
		inst.CreatedAt, inst.UpdatedAt, inst.CompletedAt)
	if err != nil {
		return persistence.NewStoreError("Save", inst.ID, err)
	}

	return nil
}

const executionColumns = `id, definition_id, definition_version, status,
	active_nodes, suspended_nodes, join_waits, scope, pending_approvals,
	history, output, error, created_by, parent_id, parent_node_id,
	created_at, updated_at, completed_at`

func (r *ExecutionRepository) ByID(ctx context.Context, id string) (*models.ExecutionInstance, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE id = $1`, id)

	inst, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("ByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewStoreError("ByID", id, err)
	}

	return inst, nil
}

func (r *ExecutionRepository) ByCreator(ctx context.Context, userID string) ([]*models.ExecutionInstance, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE created_by = $1 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, persistence.NewStoreError("ByCreator", userID, err)
	}
	defer rows.Close()

	return collectExecutions(rows, userID)
}

func (r *ExecutionRepository) ByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.ExecutionInstance, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE status = $1 ORDER BY created_at ASC`, status)
	if err != nil {
		return nil, persistence.NewStoreError("ByStatus", string(status), err)
	}
	defer rows.Close()

	return collectExecutions(rows, string(status))
}

type executionColumnsJSON struct {
	activeNodes      []byte
	suspendedNodes   []byte
	joinWaits        []byte
	scope            []byte
	pendingApprovals []byte
	history          []byte
	output           []byte
	instError        []byte
}

func marshalExecutionState(inst *models.ExecutionInstance) (*executionColumnsJSON, error) {
	cols := &executionColumnsJSON{}

	for _, field := range []struct {
		name   string
		value  any
		target *[]byte
	}{
		{"active_nodes", orEmpty(inst.ActiveNodes), &cols.activeNodes},
		{"suspended_nodes", orEmptyMap(inst.SuspendedNodes), &cols.suspendedNodes},
		{"join_waits", orEmptyInts(inst.JoinWaits), &cols.joinWaits},
		{"scope", inst.Scope, &cols.scope},
		{"pending_approvals", orEmptyStrings(inst.PendingApprovals), &cols.pendingApprovals},
		{"history", orEmptyHistory(inst.History), &cols.history},
	} {
		data, err := json.Marshal(field.value)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", field.name, err)
		}

		*field.target = data
	}

	if inst.Output != nil {
		data, err := json.Marshal(inst.Output)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal output: %w", err)
		}

		cols.output = data
	}

	if inst.Error != nil {
		data, err := json.Marshal(inst.Error)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal error: %w", err)
		}

		cols.instError = data
	}

	return cols, nil
}

func scanExecution(row rowScanner) (*models.ExecutionInstance, error) {
	var (
		inst                   models.ExecutionInstance
		cols                   executionColumnsJSON
		parentID, parentNodeID sql.NullString
	)

	err := row.Scan(&inst.ID, &inst.DefinitionID, &inst.DefinitionVersion, &inst.Status,
		&cols.activeNodes, &cols.suspendedNodes, &cols.joinWaits, &cols.scope, &cols.pendingApprovals,
		&cols.history, &cols.output, &cols.instError, &inst.CreatedBy,
		&parentID, &parentNodeID, &inst.CreatedAt, &inst.UpdatedAt, &inst.CompletedAt)
	if err != nil {
		return nil, err
	}

	inst.ParentID = parentID.String
	inst.ParentNodeID = parentNodeID.String

	for _, field := range []struct {
		name   string
		data   []byte
		target any
	}{
		{"active_nodes", cols.activeNodes, &inst.ActiveNodes},
		{"suspended_nodes", cols.suspendedNodes, &inst.SuspendedNodes},
		{"join_waits", cols.joinWaits, &inst.JoinWaits},
		{"scope", cols.scope, &inst.Scope},
		{"pending_approvals", cols.pendingApprovals, &inst.PendingApprovals},
		{"history", cols.history, &inst.History},
	} {
		if err := json.Unmarshal(field.data, field.target); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", field.name, err)
		}
	}

	if len(cols.output) > 0 {
		if err := json.Unmarshal(cols.output, &inst.Output); err != nil {
			return nil, fmt.Errorf("failed to unmarshal output: %w", err)
		}
	}

	if len(cols.instError) > 0 {
		if err := json.Unmarshal(cols.instError, &inst.Error); err != nil {
			return nil, fmt.Errorf("failed to unmarshal error: %w", err)
		}
	}

	return &inst, nil
}

func collectExecutions(rows *sql.Rows, key string) ([]*models.ExecutionInstance, error) {
	instances := make([]*models.ExecutionInstance, 0)

	for rows.Next() {
		inst, err := scanExecution(rows)
		if err != nil {
			return nil, persistence.NewStoreError("Scan", key, err)
		}

		instances = append(instances, inst)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("Scan", key, err)
	}

	return instances, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}

	return s
}

func orEmptyMap(m map[string]*models.SuspendedNode) map[string]*models.SuspendedNode {
	if m == nil {
		return map[string]*models.SuspendedNode{}
	}

	return m
}

func orEmptyInts(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}

	return m
}

func orEmptyStrings(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}

	return m
}

func orEmptyHistory(h []models.HistoryEntry) []models.HistoryEntry {
	if h == nil {
		return []models.HistoryEntry{}
	}

	return h
}
