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

// ApprovalRepository stores approval records.
type ApprovalRepository struct {
	db *sql.DB
}

func (r *ApprovalRepository) Save(ctx context.Context, record *models.ApprovalRecord) error {
	assignees, err := json.Marshal(record.AssigneeIDs)
	if err != nil {
		return persistence.NewStoreError("Save", record.ID, fmt.Errorf("failed to marshal assignees: %w", err))
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO approvals (id, execution_id, node_id, assignee_ids, decision,
			decided_by, decided_at, timeout_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			decision = EXCLUDED.decision,
			decided_by = EXCLUDED.decided_by,
			decided_at = EXCLUDED.decided_at
	`, record.ID, record.ExecutionID, record.NodeID, assignees, record.Decision,
		nullString(record.DecidedBy), record.DecidedAt, record.TimeoutAt, record.CreatedAt)
	if err != nil {
		return persistence.NewStoreError("Save", record.ID, err)
	}

	return nil
}

const approvalColumns = `id, execution_id, node_id, assignee_ids, decision,
	decided_by, decided_at, timeout_at, created_at`

func (r *ApprovalRepository) ByID(ctx context.Context, id string) (*models.ApprovalRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+approvalColumns+` FROM approvals WHERE id = $1`, id)

	record, err := scanApproval(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("ByID", id, persistence.ErrApprovalNotFound)
		}

		return nil, persistence.NewStoreError("ByID", id, err)
	}

	return record, nil
}

func (r *ApprovalRepository) PendingForUser(ctx context.Context, userID string) ([]*models.ApprovalRecord, error) {
	// assignee_ids is JSONB, so containment takes a JSON document.
	member, err := json.Marshal([]string{userID})
	if err != nil {
		return nil, persistence.NewStoreError("PendingForUser", userID, err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+approvalColumns+` FROM approvals
		WHERE decision = 'pending' AND assignee_ids @> $1
		ORDER BY created_at ASC
	`, member)
	if err != nil {
		return nil, persistence.NewStoreError("PendingForUser", userID, err)
	}
	defer rows.Close()

	pending := make([]*models.ApprovalRecord, 0)

	for rows.Next() {
		record, err := scanApproval(rows)
		if err != nil {
			return nil, persistence.NewStoreError("PendingForUser", userID, err)
		}

		pending = append(pending, record)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("PendingForUser", userID, err)
	}

	return pending, nil
}

func scanApproval(row rowScanner) (*models.ApprovalRecord, error) {
	var (
		record    models.ApprovalRecord
		assignees []byte
		decidedBy sql.NullString
	)

	err := row.Scan(&record.ID, &record.ExecutionID, &record.NodeID, &assignees,
		&record.Decision, &decidedBy, &record.DecidedAt, &record.TimeoutAt, &record.CreatedAt)
	if err != nil {
		return nil, err
	}

	record.DecidedBy = decidedBy.String

	if err := json.Unmarshal(assignees, &record.AssigneeIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal assignees: %w", err)
	}

	return &record, nil
}
