package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/arionlabs/arion/pkg/models"
	"github.com/arionlabs/arion/pkg/persistence"
	"github.com/arionlabs/arion/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"schedules", "timers", "approvals", "executions", "definitions", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("arion_test"),
			postgres.WithUsername("arion"),
			postgres.WithPassword("arion"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	for _, table := range []string{"definitions", "executions", "approvals", "timers", "schedules"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}
}

func TestDefinitionRepository_Integration(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	groupID := uuid.New().String()
	now := time.Now().UTC()

	def := &models.ProcessDefinition{
		ID:          uuid.New().String(),
		GroupID:     groupID,
		Version:     1,
		Name:        "expense approval",
		Description: "routes expenses to the right approver",
		Status:      models.DefinitionStatusDraft,
		Nodes: []*models.Node{
			{ID: "start", Kind: models.KindStart},
			{ID: "gate", Kind: models.KindCondition, Config: map[string]any{"expression": "trigger_input.amount < 500"}},
			{ID: "finish", Kind: models.KindEnd},
		},
		Edges: []*models.Edge{
			{From: "start", To: "gate"},
			{From: "gate", To: "finish", Label: models.EdgeYes},
			{From: "gate", To: "finish", Label: models.EdgeNo},
		},
		Owner:     "emp-1",
		CreatedAt: now,
		UpdatedAt: now,
	}

	require.NoError(t, p.Definitions().Save(ctx, def))

	loaded, err := p.Definitions().ByID(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, "expense approval", loaded.Name)
	require.Len(t, loaded.Nodes, 3)
	assert.Equal(t, "trigger_input.amount < 500", loaded.Nodes[1].Config["expression"])

	// Publish and verify group query.
	def.Status = models.DefinitionStatusPublished
	publishedAt := time.Now().UTC()
	def.PublishedAt = &publishedAt
	require.NoError(t, p.Definitions().Save(ctx, def))

	published, err := p.Definitions().PublishedByGroup(ctx, groupID)
	require.NoError(t, err)
	assert.Equal(t, def.ID, published.ID)

	_, err = p.Definitions().PublishedByGroup(ctx, uuid.New().String())
	require.ErrorIs(t, err, persistence.ErrPublishedDefinitionNotFound)
}

func TestExecutionRepository_Integration(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	now := time.Now().UTC()
	wake := now.Add(time.Hour)

	inst := &models.ExecutionInstance{
		ID:                uuid.New().String(),
		DefinitionID:      uuid.New().String(),
		DefinitionVersion: 2,
		Status:            models.ExecutionStatusSuspended,
		ActiveNodes:       []string{},
		SuspendedNodes: map[string]*models.SuspendedNode{
			"sign-off": {
				NodeID:      "sign-off",
				Reason:      models.SuspendReasonApproval,
				ResumeToken: "appr-1",
				WakeAt:      &wake,
			},
		},
		JoinWaits:        map[string]int{"join": 1},
		Scope:            models.NewScope(map[string]any{"amount": 900.0}, map[string]any{"user_id": "emp-1"}),
		PendingApprovals: map[string]string{"sign-off": "appr-1"},
		History: []models.HistoryEntry{
			{NodeID: "start", Event: models.HistoryAdvanced, Timestamp: now},
		},
		CreatedBy: "emp-1",
		CreatedAt: now,
		UpdatedAt: now,
	}

	require.NoError(t, p.Executions().Save(ctx, inst))

	loaded, err := p.Executions().ByID(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuspended, loaded.Status)
	require.Contains(t, loaded.SuspendedNodes, "sign-off")
	assert.Equal(t, "appr-1", loaded.SuspendedNodes["sign-off"].ResumeToken)
	assert.Equal(t, 900.0, loaded.Scope.TriggerInput["amount"])
	require.Len(t, loaded.History, 1)

	// Checkpoint again with a terminal state.
	completedAt := time.Now().UTC()
	inst.Status = models.ExecutionStatusCompleted
	inst.SuspendedNodes = nil
	inst.Output = map[string]any{"approved": true}
	inst.CompletedAt = &completedAt
	require.NoError(t, p.Executions().Save(ctx, inst))

	loaded, err = p.Executions().ByID(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, loaded.Status)
	assert.Equal(t, map[string]any{"approved": true}, loaded.Output)
	require.NotNil(t, loaded.CompletedAt)

	byCreator, err := p.Executions().ByCreator(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, byCreator, 1)
}

func TestApprovalRepository_Integration(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	now := time.Now().UTC()
	record := &models.ApprovalRecord{
		ID:          "appr-" + uuid.New().String(),
		ExecutionID: uuid.New().String(),
		NodeID:      "sign-off",
		AssigneeIDs: []string{"mgr-1", "mgr-2"},
		Decision:    models.DecisionPending,
		CreatedAt:   now,
	}

	require.NoError(t, p.Approvals().Save(ctx, record))

	pending, err := p.Approvals().PendingForUser(ctx, "mgr-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, record.ID, pending[0].ID)

	pending, err = p.Approvals().PendingForUser(ctx, "mgr-9")
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Finalize the decision and verify it leaves the pending set.
	decidedAt := time.Now().UTC()
	record.Decision = models.DecisionApproved
	record.DecidedBy = "mgr-1"
	record.DecidedAt = &decidedAt
	require.NoError(t, p.Approvals().Save(ctx, record))

	pending, err = p.Approvals().PendingForUser(ctx, "mgr-1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	loaded, err := p.Approvals().ByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionApproved, loaded.Decision)
	assert.Equal(t, "mgr-1", loaded.DecidedBy)
}

func TestTimerRepository_Integration(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	now := time.Now().UTC()

	for _, timer := range []*models.Timer{
		{Token: "tmr-due", ExecutionID: "exec-1", NodeID: "wait", WakeAt: now.Add(-time.Minute), CreatedAt: now},
		{Token: "tmr-future", ExecutionID: "exec-2", NodeID: "wait", WakeAt: now.Add(time.Hour), CreatedAt: now},
	} {
		require.NoError(t, p.Timers().Save(ctx, timer))
	}

	due, err := p.Timers().Due(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "tmr-due", due[0].Token)

	require.NoError(t, p.Timers().Delete(ctx, "tmr-due"))
	require.ErrorIs(t, p.Timers().Delete(ctx, "tmr-due"), persistence.ErrTimerNotFound)
}

func TestScheduleRepository_Integration(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	now := time.Now().UTC()
	schedule := &models.Schedule{
		ID:           "sch-" + uuid.New().String(),
		DefinitionID: uuid.New().String(),
		CronExpr:     "0 9 * * 1",
		TriggerInput: map[string]any{"source": "weekly"},
		OwnerID:      "emp-1",
		Enabled:      true,
		NextFireAt:   now.Add(-time.Minute),
		CreatedAt:    now,
	}

	require.NoError(t, p.Schedules().Save(ctx, schedule))

	due, err := p.Schedules().Due(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, map[string]any{"source": "weekly"}, due[0].TriggerInput)

	schedule.Enabled = false
	require.NoError(t, p.Schedules().Save(ctx, schedule))

	due, err = p.Schedules().Due(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)
}
