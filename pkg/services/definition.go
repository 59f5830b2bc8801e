package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/arionlabs/arion/pkg/eventbus"
	"github.com/arionlabs/arion/pkg/events"
	"github.com/arionlabs/arion/pkg/models"
	"github.com/arionlabs/arion/pkg/persistence"
	"github.com/arionlabs/arion/pkg/validation"
)

// Definition handles the draft/publish lifecycle of process definitions.
// Versions are immutable once published: editing means cutting a new draft
// version in the same group.
type Definition struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

// NewDefinition creates a new definition service. publisher may be nil.
func NewDefinition(store persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *Definition {
	return &Definition{
		persistence: store,
		publisher:   publisher,
		logger:      logger.With("module", "definition_service"),
	}
}

// CreateDraftRequest carries the fields of a new draft definition.
type CreateDraftRequest struct {
	Name           string         `json:"name"        validate:"required,min=3"`
	Description    string         `json:"description"`
	Nodes          []*models.Node `json:"nodes"`
	Edges          []*models.Edge `json:"edges"`
	OutputVariable string         `json:"output_variable"`
	Owner          string         `json:"owner"`
}

// CreateDraft creates version 1 of a new definition group.
func (s *Definition) CreateDraft(ctx context.Context, req CreateDraftRequest) (*models.ProcessDefinition, error) {
	if req.Name == "" {
		return nil, ErrNameRequired
	}

	now := time.Now().UTC()
	def := &models.ProcessDefinition{
		ID:             "def-" + uuid.NewString(),
		GroupID:        "grp-" + uuid.NewString(),
		Version:        1,
		Name:           req.Name,
		Description:    req.Description,
		Status:         models.DefinitionStatusDraft,
		Nodes:          req.Nodes,
		Edges:          req.Edges,
		OutputVariable: req.OutputVariable,
		Owner:          req.Owner,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.persistence.Definitions().Save(ctx, def); err != nil {
		return nil, fmt.Errorf("failed to save definition: %w", err)
	}

	s.logger.Info("draft definition created", "definition_id", def.ID, "group_id", def.GroupID)

	return def, nil
}

// UpdateDraft replaces the graph of a draft. Published and unpublished
// versions are immutable.
func (s *Definition) UpdateDraft(ctx context.Context, definitionID string, req CreateDraftRequest) (*models.ProcessDefinition, error) {
	def, err := s.persistence.Definitions().ByID(ctx, definitionID)
	if err != nil {
		return nil, err
	}

	if def.Status != models.DefinitionStatusDraft {
		return nil, &ServiceError{Op: "update_draft", Code: "conflict", Err: ErrCannotModifyPublished}
	}

	if req.Name != "" {
		def.Name = req.Name
	}

	def.Description = req.Description
	def.Nodes = req.Nodes
	def.Edges = req.Edges
	def.OutputVariable = req.OutputVariable
	def.UpdatedAt = time.Now().UTC()

	if err := s.persistence.Definitions().Save(ctx, def); err != nil {
		return nil, fmt.Errorf("failed to save definition: %w", err)
	}

	return def, nil
}

// NewDraftVersion cuts a new draft from the group's published version.
func (s *Definition) NewDraftVersion(ctx context.Context, groupID string) (*models.ProcessDefinition, error) {
	published, err := s.persistence.Definitions().PublishedByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	versions, err := s.persistence.Definitions().ByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	next := 0
	for _, v := range versions {
		if v.Version > next {
			next = v.Version
		}
	}

	now := time.Now().UTC()
	draft := *published
	draft.ID = "def-" + uuid.NewString()
	draft.Version = next + 1
	draft.Status = models.DefinitionStatusDraft
	draft.PublishedAt = nil
	draft.CreatedAt = now
	draft.UpdatedAt = now

	if err := s.persistence.Definitions().Save(ctx, &draft); err != nil {
		return nil, fmt.Errorf("failed to save definition: %w", err)
	}

	return &draft, nil
}

// Publish validates a draft, freezes it as the group's published version,
// and demotes the previously published version to unpublished. In-flight
// executions keep the version they started with.
func (s *Definition) Publish(ctx context.Context, definitionID string) (*models.ProcessDefinition, error) {
	def, err := s.persistence.Definitions().ByID(ctx, definitionID)
	if err != nil {
		return nil, err
	}

	if def.Status == models.DefinitionStatusPublished {
		return nil, &ServiceError{Op: "publish", Code: "conflict", Err: ErrAlreadyPublished}
	}

	if len(def.Nodes) == 0 {
		return nil, ErrNodesRequired
	}

	if err := validation.ValidateDefinition(def); err != nil {
		return nil, fmt.Errorf("definition validation failed: %w", err)
	}

	if err := validation.ValidateNodeConfigs(def); err != nil {
		return nil, fmt.Errorf("node config validation failed: %w", err)
	}

	if current, err := s.persistence.Definitions().PublishedByGroup(ctx, def.GroupID); err == nil && current.ID != def.ID {
		current.Status = models.DefinitionStatusUnpublished
		current.UpdatedAt = time.Now().UTC()

		if err := s.persistence.Definitions().Save(ctx, current); err != nil {
			return nil, fmt.Errorf("failed to demote published version: %w", err)
		}

		s.publishEvent(ctx, current.GroupID, events.DefinitionUnpublished{
			BaseEvent: events.BaseEvent{
				ID:           uuid.NewString(),
				Type:         events.DefinitionUnpublishedEvent,
				Timestamp:    time.Now().UTC(),
				DefinitionID: current.ID,
			},
			GroupID: current.GroupID,
			Version: current.Version,
		})
	}

	now := time.Now().UTC()
	def.Status = models.DefinitionStatusPublished
	def.PublishedAt = &now
	def.UpdatedAt = now

	if err := s.persistence.Definitions().Save(ctx, def); err != nil {
		return nil, fmt.Errorf("failed to publish definition: %w", err)
	}

	s.publishEvent(ctx, def.GroupID, events.DefinitionPublished{
		BaseEvent: events.BaseEvent{
			ID:           uuid.NewString(),
			Type:         events.DefinitionPublishedEvent,
			Timestamp:    now,
			DefinitionID: def.ID,
		},
		GroupID: def.GroupID,
		Version: def.Version,
	})

	s.logger.Info("definition published",
		"definition_id", def.ID, "group_id", def.GroupID, "version", def.Version)

	return def, nil
}

// Get returns one definition version.
func (s *Definition) Get(ctx context.Context, definitionID string) (*models.ProcessDefinition, error) {
	return s.persistence.Definitions().ByID(ctx, definitionID)
}

// Published returns the currently published version of a group.
func (s *Definition) Published(ctx context.Context, groupID string) (*models.ProcessDefinition, error) {
	return s.persistence.Definitions().PublishedByGroup(ctx, groupID)
}

// List returns every definition version.
func (s *Definition) List(ctx context.Context) ([]*models.ProcessDefinition, error) {
	return s.persistence.Definitions().All(ctx)
}

// publishEvent is keyed by the definition group so all versions of one
// process land on the same partition.
func (s *Definition) publishEvent(ctx context.Context, groupID string, event eventbus.Event) {
	if s.publisher == nil {
		return
	}

	if err := s.publisher.Publish(ctx, groupID, event); err != nil {
		s.logger.Warn("event publish failed", "event_type", event.GetType(), "error", err)
	}
}
