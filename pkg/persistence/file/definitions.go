package file

import (
	"context"
	"errors"
	"io/fs"
	"sort"

	"github.com/arionlabs/arion/pkg/models"
	"github.com/arionlabs/arion/pkg/persistence"
)

const definitionsDir = "definitions"

// DefinitionRepository stores one JSON document per definition version.
type DefinitionRepository struct {
	store *store
}

func (r *DefinitionRepository) Save(_ context.Context, def *models.ProcessDefinition) error {
	if err := r.store.write(definitionsDir, def.ID, def); err != nil {
		return persistence.NewStoreError("Save", def.ID, err)
	}

	return nil
}

func (r *DefinitionRepository) ByID(_ context.Context, id string) (*models.ProcessDefinition, error) {
	var def models.ProcessDefinition

	if err := r.store.read(definitionsDir, id, &def); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.NewStoreError("ByID", id, persistence.ErrDefinitionNotFound)
		}

		return nil, persistence.NewStoreError("ByID", id, err)
	}

	return &def, nil
}

func (r *DefinitionRepository) ByGroup(ctx context.Context, groupID string) ([]*models.ProcessDefinition, error) {
	all, err := r.All(ctx)
	if err != nil {
		return nil, err
	}

	versions := make([]*models.ProcessDefinition, 0)

	for _, def := range all {
		if def.GroupID == groupID {
			versions = append(versions, def)
		}
	}

	sort.Slice(versions, func(i, j int) bool {
		return versions[i].Version < versions[j].Version
	})

	return versions, nil
}

func (r *DefinitionRepository) PublishedByGroup(ctx context.Context, groupID string) (*models.ProcessDefinition, error) {
	versions, err := r.ByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	for _, def := range versions {
		if def.Status == models.DefinitionStatusPublished {
			return def, nil
		}
	}

	return nil, persistence.NewStoreError("PublishedByGroup", groupID, persistence.ErrPublishedDefinitionNotFound)
}

func (r *DefinitionRepository) All(_ context.Context) ([]*models.ProcessDefinition, error) {
	ids, err := r.store.ids(definitionsDir)
	if err != nil {
		return nil, persistence.NewStoreError("All", "", err)
	}

	defs := make([]*models.ProcessDefinition, 0, len(ids))

	for _, id := range ids {
		var def models.ProcessDefinition

		if err := r.store.read(definitionsDir, id, &def); err != nil {
			return nil, persistence.NewStoreError("All", id, err)
		}

		defs = append(defs, &def)
	}

	return defs, nil
}

func (r *DefinitionRepository) Delete(_ context.Context, id string) error {
	if err := r.store.remove(definitionsDir, id); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return persistence.NewStoreError("Delete", id, persistence.ErrDefinitionNotFound)
		}

		return persistence.NewStoreError("Delete", id, err)
	}

	return nil
}
