package file

import (
	"context"
	"errors"
	"io/fs"
	"sort"

	"github.com/arionlabs/arion/pkg/models"
	"github.com/arionlabs/arion/pkg/persistence"
)

const executionsDir = "executions"

// ExecutionRepository stores one JSON document per execution instance. Save
// is the engine's checkpoint write: the whole instance is rewritten on every
// transition.
type ExecutionRepository struct {
	store *store
}

func (r *ExecutionRepository) Save(_ context.Context, inst *models.ExecutionInstance) error {
	if err := r.store.write(executionsDir, inst.ID, inst); err != nil {
		return persistence.NewStoreError("Save", inst.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) ByID(_ context.Context, id string) (*models.ExecutionInstance, error) {
	var inst models.ExecutionInstance

	if err := r.store.read(executionsDir, id, &inst); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.NewStoreError("ByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewStoreError("ByID", id, err)
	}

	return &inst, nil
}

func (r *ExecutionRepository) ByCreator(ctx context.Context, userID string) ([]*models.ExecutionInstance, error) {
	return r.filter(ctx, func(inst *models.ExecutionInstance) bool {
		return inst.CreatedBy == userID
	})
}

func (r *ExecutionRepository) ByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.ExecutionInstance, error) {
	return r.filter(ctx, func(inst *models.ExecutionInstance) bool {
		return inst.Status == status
	})
}

func (r *ExecutionRepository) filter(_ context.Context, keep func(*models.ExecutionInstance) bool) ([]*models.ExecutionInstance, error) {
	ids, err := r.store.ids(executionsDir)
	if err != nil {
		return nil, persistence.NewStoreError("List", "", err)
	}

	matches := make([]*models.ExecutionInstance, 0)

	for _, id := range ids {
		var inst models.ExecutionInstance

		if err := r.store.read(executionsDir, id, &inst); err != nil {
			return nil, persistence.NewStoreError("List", id, err)
		}

		if keep(&inst) {
			matches = append(matches, &inst)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.Before(matches[j].CreatedAt)
	})

	return matches, nil
}
