package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arionlabs/arion/pkg/engine"
	"github.com/arionlabs/arion/pkg/expr"
	"github.com/arionlabs/arion/pkg/identity"
	"github.com/arionlabs/arion/pkg/log"
	"github.com/arionlabs/arion/pkg/mocks"
	"github.com/arionlabs/arion/pkg/models"
	"github.com/arionlabs/arion/pkg/persistence"
	"github.com/arionlabs/arion/pkg/persistence/file"
	"github.com/arionlabs/arion/pkg/services"
)

func graphNodes() []*models.Node {
	return []*models.Node{
		{ID: "start", Kind: models.KindStart, Name: "start", Enabled: true},
		{ID: "check", Kind: models.KindCondition, Name: "check", Enabled: true,
			Config: map[string]any{"expression": "trigger_input.amount < 500"}},
		{ID: "end", Kind: models.KindEnd, Name: "end", Enabled: true},
	}
}

func graphEdges() []*models.Edge {
	return []*models.Edge{
		{From: "start", To: "check"},
		{From: "check", To: "end", Label: models.EdgeYes},
		{From: "check", To: "end", Label: models.EdgeNo},
	}
}

func setup(t *testing.T, perms services.StaticPermissions) (*services.Execution, *services.Definition, persistence.Persistence) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	logger := log.WithModule("test")

	directory := identity.NewStaticProvider(identity.StaticConfig{
		Managers: map[string]string{"emp-1": "mgr-1"},
	})

	eng := engine.NewEngine(engine.Config{
		Persistence: store,
		Identity:    identity.NewResolver(directory, expr.NewResolver(), logger),
		Logger:      logger,
	})

	return services.NewExecution(eng, store, perms, logger),
		services.NewDefinition(store, nil, logger),
		store
}

func publishedGraph(t *testing.T, defs *services.Definition) *models.ProcessDefinition {
	t.Helper()

	draft, err := defs.CreateDraft(context.Background(), services.CreateDraftRequest{
		Name:  "expense approval",
		Owner: "owner-1",
		Nodes: graphNodes(),
		Edges: graphEdges(),
	})
	require.NoError(t, err)

	published, err := defs.Publish(context.Background(), draft.ID)
	require.NoError(t, err)

	return published
}

func TestCreateDraftRequiresName(t *testing.T) {
	_, defs, _ := setup(t, nil)

	_, err := defs.CreateDraft(context.Background(), services.CreateDraftRequest{})
	require.ErrorIs(t, err, services.ErrNameRequired)
}

func TestPublishLifecycle(t *testing.T) {
	_, defs, _ := setup(t, nil)
	ctx := context.Background()

	draft, err := defs.CreateDraft(ctx, services.CreateDraftRequest{
		Name:  "expense approval",
		Nodes: graphNodes(),
		Edges: graphEdges(),
	})
	require.NoError(t, err)
	assert.Equal(t, models.DefinitionStatusDraft, draft.Status)
	assert.Equal(t, 1, draft.Version)

	published, err := defs.Publish(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DefinitionStatusPublished, published.Status)
	require.NotNil(t, published.PublishedAt)

	// Publishing again is a conflict.
	_, err = defs.Publish(ctx, draft.ID)
	require.True(t, services.IsConflict(err))

	// Published versions are immutable.
	_, err = defs.UpdateDraft(ctx, draft.ID, services.CreateDraftRequest{Nodes: graphNodes(), Edges: graphEdges()})
	require.ErrorIs(t, err, services.ErrCannotModifyPublished)
}

func TestPublishDemotesPriorVersion(t *testing.T) {
	_, defs, _ := setup(t, nil)
	ctx := context.Background()

	v1 := publishedGraph(t, defs)

	v2, err := defs.NewDraftVersion(ctx, v1.GroupID)
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)
	assert.Equal(t, models.DefinitionStatusDraft, v2.Status)

	_, err = defs.Publish(ctx, v2.ID)
	require.NoError(t, err)

	old, err := defs.Get(ctx, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DefinitionStatusUnpublished, old.Status)

	current, err := defs.Published(ctx, v1.GroupID)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, current.ID)
}

func TestPublishEmitsLifecycleEvents(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	logger := log.WithModule("test")

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("events.DefinitionPublished")).Return(nil)
	bus.On("Publish", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("events.DefinitionUnpublished")).Return(nil)

	defs := services.NewDefinition(store, bus, logger)
	ctx := context.Background()

	v1 := publishedGraph(t, defs)

	v2, err := defs.NewDraftVersion(ctx, v1.GroupID)
	require.NoError(t, err)

	_, err = defs.Publish(ctx, v2.ID)
	require.NoError(t, err)

	bus.AssertNumberOfCalls(t, "Publish", 3) // v1 published, v1 unpublished, v2 published
}

func TestPublishRejectsInvalidGraph(t *testing.T) {
	_, defs, _ := setup(t, nil)
	ctx := context.Background()

	draft, err := defs.CreateDraft(ctx, services.CreateDraftRequest{
		Name:  "broken",
		Nodes: []*models.Node{{ID: "start", Kind: models.KindStart, Enabled: true}},
	})
	require.NoError(t, err)

	_, err = defs.Publish(ctx, draft.ID)
	require.Error(t, err)
}

func TestGetExecutionAccessGate(t *testing.T) {
	execs, defs, _ := setup(t, services.StaticPermissions{
		"auditor-1": {services.PermViewAllExecutions},
	})
	def := publishedGraph(t, defs)
	ctx := context.Background()

	started, err := execs.Start(ctx, def.ID, map[string]any{"amount": 100}, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, started.Status)

	// Creator sees their own, without history.
	view, err := execs.Get(ctx, started.ID, "emp-1")
	require.NoError(t, err)
	assert.Empty(t, view.History)

	// Strangers are rejected.
	_, err = execs.Get(ctx, started.ID, "emp-2")
	require.True(t, services.IsForbidden(err))

	// The view-all permission grants access plus the history log.
	view, err = execs.Get(ctx, started.ID, "auditor-1")
	require.NoError(t, err)
	assert.NotEmpty(t, view.History)
}

func TestFailedExecutionViewIsRedacted(t *testing.T) {
	execs, defs, _ := setup(t, nil)
	ctx := context.Background()

	draft, err := defs.CreateDraft(ctx, services.CreateDraftRequest{
		Name:  "broken expression",
		Nodes: graphNodes(),
		Edges: graphEdges(),
	})
	require.NoError(t, err)
	draft.Nodes[1].Config["expression"] = "trigger_input.missing_thing > 10"
	_, err = defs.UpdateDraft(ctx, draft.ID, services.CreateDraftRequest{
		Nodes: draft.Nodes, Edges: draft.Edges,
	})
	require.NoError(t, err)
	_, err = defs.Publish(ctx, draft.ID)
	require.NoError(t, err)

	view, err := execs.Start(ctx, draft.ID, map[string]any{"amount": 1}, "emp-1")
	require.NoError(t, err)
	require.Equal(t, models.ExecutionStatusFailed, view.Status)
	require.NotNil(t, view.Error)

	assert.Equal(t, "check", view.Error.NodeID)
	assert.Equal(t, "a step of this process failed", view.Error.Message)
	assert.NotContains(t, view.Error.Message, "missing_thing")
}

func TestListFiltersByStatus(t *testing.T) {
	execs, defs, _ := setup(t, nil)
	def := publishedGraph(t, defs)
	ctx := context.Background()

	_, err := execs.Start(ctx, def.ID, map[string]any{"amount": 10}, "emp-1")
	require.NoError(t, err)
	_, err = execs.Start(ctx, def.ID, map[string]any{"amount": 20}, "emp-1")
	require.NoError(t, err)

	completed := models.ExecutionStatusCompleted
	views, err := execs.List(ctx, services.ListRequest{Status: &completed}, "emp-1")
	require.NoError(t, err)
	assert.Len(t, views, 2)

	running := models.ExecutionStatusRunning
	views, err = execs.List(ctx, services.ListRequest{Status: &running}, "emp-1")
	require.NoError(t, err)
	assert.Empty(t, views)

	// Listing someone else's executions needs the view-all permission.
	_, err = execs.List(ctx, services.ListRequest{CreatorID: "emp-1"}, "emp-2")
	require.True(t, services.IsForbidden(err))
}

func TestCancelPermissions(t *testing.T) {
	execs, defs, store := setup(t, services.StaticPermissions{
		"ops-1": {services.PermCancelExecutions},
	})
	def := publishedGraph(t, defs)
	ctx := context.Background()

	// A long-lived execution to cancel: park it as suspended by hand.
	now := time.Now().UTC()
	inst := &models.ExecutionInstance{
		ID:                "exec-parked",
		DefinitionID:      def.ID,
		DefinitionVersion: def.Version,
		Status:            models.ExecutionStatusSuspended,
		SuspendedNodes: map[string]*models.SuspendedNode{
			"check": {NodeID: "check", Reason: models.SuspendReasonApproval, ResumeToken: "appr-x", SuspendedAt: now},
		},
		Scope:     models.NewScope(nil, nil),
		CreatedBy: "emp-1",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.Executions().Save(ctx, inst))

	err := execs.Cancel(ctx, inst.ID, "emp-2")
	require.True(t, services.IsForbidden(err))

	// The permission holder may cancel.
	require.NoError(t, execs.Cancel(ctx, inst.ID, "ops-1"))

	got, err := store.Executions().ByID(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, got.Status)
}

func TestDecideValidatesInput(t *testing.T) {
	execs, _, _ := setup(t, nil)

	err := execs.Decide(context.Background(), "appr-1", "", models.DecisionApproved)
	require.ErrorIs(t, err, services.ErrEmptyUserID)

	err = execs.Decide(context.Background(), "appr-1", "mgr-1", models.DecisionPending)
	require.ErrorIs(t, err, services.ErrInvalidDecision)
}
