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

// DefinitionRepository stores definition versions with the graph as JSONB.
type DefinitionRepository struct {
	db *sql.DB
}

func (r *DefinitionRepository) Save(ctx context.Context, def *models.ProcessDefinition) error {
	nodes, err := json.Marshal(def.Nodes)
	if err != nil {
		return persistence.NewStoreError("Save", def.ID, fmt.Errorf("failed to marshal nodes: %w", err))
	}

	edges, err := json.Marshal(def.Edges)
	if err != nil {
		return persistence.NewStoreError("Save", def.ID, fmt.Errorf("failed to marshal edges: %w", err))
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO definitions (id, group_id, version, name, description, status,
			nodes, edges, output_variable, owner, created_at, updated_at, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			output_variable = EXCLUDED.output_variable,
			updated_at = EXCLUDED.updated_at,
			published_at = EXCLUDED.published_at
	`, def.ID, def.GroupID, def.Version, def.Name, def.Description, def.Status,
		nodes, edges, def.OutputVariable, def.Owner, def.CreatedAt, def.UpdatedAt, def.PublishedAt)
	if err != nil {
		return persistence.NewStoreError("Save", def.ID, err)
	}

	return nil
}

const definitionColumns = `id, group_id, version, name, description, status,
	nodes, edges, output_variable, owner, created_at, updated_at, published_at`

func (r *DefinitionRepository) ByID(ctx context.Context, id string) (*models.ProcessDefinition, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+definitionColumns+` FROM definitions WHERE id = $1`, id)

	def, err := scanDefinition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("ByID", id, persistence.ErrDefinitionNotFound)
		}

		return nil, persistence.NewStoreError("ByID", id, err)
	}

	return def, nil
}

func (r *DefinitionRepository) ByGroup(ctx context.Context, groupID string) ([]*models.ProcessDefinition, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+definitionColumns+` FROM definitions WHERE group_id = $1 ORDER BY version ASC`, groupID)
	if err != nil {
		return nil, persistence.NewStoreError("ByGroup", groupID, err)
	}
	defer rows.Close()

	return collectDefinitions(rows, groupID)
}

func (r *DefinitionRepository) PublishedByGroup(ctx context.Context, groupID string) (*models.ProcessDefinition, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+definitionColumns+` FROM definitions WHERE group_id = $1 AND status = 'published'`, groupID)

	def, err := scanDefinition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("PublishedByGroup", groupID, persistence.ErrPublishedDefinitionNotFound)
		}

		return nil, persistence.NewStoreError("PublishedByGroup", groupID, err)
	}

	return def, nil
}

func (r *DefinitionRepository) All(ctx context.Context) ([]*models.ProcessDefinition, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+definitionColumns+` FROM definitions ORDER BY created_at ASC`)
	if err != nil {
		return nil, persistence.NewStoreError("All", "", err)
	}
	defer rows.Close()

	return collectDefinitions(rows, "")
}

func (r *DefinitionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM definitions WHERE id = $1`, id)
	if err != nil {
		return persistence.NewStoreError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.NewStoreError("Delete", id, persistence.ErrDefinitionNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (*models.ProcessDefinition, error) {
	var (
		def          models.ProcessDefinition
		nodes, edges []byte
	)

	err := row.Scan(&def.ID, &def.GroupID, &def.Version, &def.Name, &def.Description,
		&def.Status, &nodes, &edges, &def.OutputVariable, &def.Owner,
		&def.CreatedAt, &def.UpdatedAt, &def.PublishedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(nodes, &def.Nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}

	if err := json.Unmarshal(edges, &def.Edges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal edges: %w", err)
	}

	return &def, nil
}

func collectDefinitions(rows *sql.Rows, key string) ([]*models.ProcessDefinition, error) {
	defs := make([]*models.ProcessDefinition, 0)

	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, persistence.NewStoreError("Scan", key, err)
		}

		defs = append(defs, def)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("Scan", key, err)
	}

	return defs, nil
}
