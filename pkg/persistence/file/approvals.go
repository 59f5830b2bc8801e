package file

import (
	"context"
	"errors"
	"io/fs"
	"sort"

	"github.com/arionlabs/arion/pkg/models"
	"github.com/arionlabs/arion/pkg/persistence"
)

const approvalsDir = "approvals"

// ApprovalRepository stores one JSON document per approval record.
type ApprovalRepository struct {
	store *store
}

func (r *ApprovalRepository) Save(_ context.Context, record *models.ApprovalRecord) error {
	if err := r.store.write(approvalsDir, record.ID, record); err != nil {
		return persistence.NewStoreError("Save", record.ID, err)
	}

	return nil
}

func (r *ApprovalRepository) ByID(_ context.Context, id string) (*models.ApprovalRecord, error) {
	var record models.ApprovalRecord

	if err := r.store.read(approvalsDir, id, &record); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.NewStoreError("ByID", id, persistence.ErrApprovalNotFound)
		}

		return nil, persistence.NewStoreError("ByID", id, err)
	}

	return &record, nil
}

func (r *ApprovalRepository) PendingForUser(_ context.Context, userID string) ([]*models.ApprovalRecord, error) {
	ids, err := r.store.ids(approvalsDir)
	if err != nil {
		return nil, persistence.NewStoreError("PendingForUser", userID, err)
	}

	pending := make([]*models.ApprovalRecord, 0)

	for _, id := range ids {
		var record models.ApprovalRecord

		if err := r.store.read(approvalsDir, id, &record); err != nil {
			return nil, persistence.NewStoreError("PendingForUser", id, err)
		}

		if record.Decision == models.DecisionPending && record.IsAssignee(userID) {
			pending = append(pending, &record)
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	return pending, nil
}
