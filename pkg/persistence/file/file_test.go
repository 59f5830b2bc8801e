package file

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arionlabs/arion/pkg/models"
	"github.com/arionlabs/arion/pkg/persistence"
)

func testPersistence(t *testing.T) *Persistence {
	t.Helper()

	return NewPersistence(t.TempDir())
}

func TestDefinitionRepository_SaveAndLoad(t *testing.T) {
	p := testPersistence(t)

	def := &models.ProcessDefinition{
		ID:      "def-1",
		GroupID: "grp-1",
		Version: 1,
		Name:    "expense approval",
		Status:  models.DefinitionStatusDraft,
		Nodes: []*models.Node{
			{ID: "start", Kind: models.KindStart},
			{ID: "finish", Kind: models.KindEnd},
		},
		Edges:     []*models.Edge{{From: "start", To: "finish"}},
		CreatedAt: time.Now().UTC(),
	}

	require.NoError(t, p.Definitions().Save(t.Context(), def))

	loaded, err := p.Definitions().ByID(t.Context(), "def-1")
	require.NoError(t, err)
	assert.Equal(t, "expense approval", loaded.Name)
	require.Len(t, loaded.Nodes, 2)
	assert.Equal(t, models.KindStart, loaded.Nodes[0].Kind)
}

func TestDefinitionRepository_NotFound(t *testing.T) {
	p := testPersistence(t)

	_, err := p.Definitions().ByID(t.Context(), "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsDefinitionNotFound(err))
}

func TestDefinitionRepository_PublishedByGroup(t *testing.T) {
	p := testPersistence(t)

	for i, status := range []models.DefinitionStatus{
		models.DefinitionStatusUnpublished,
		models.DefinitionStatusPublished,
		models.DefinitionStatusDraft,
	} {
		def := &models.ProcessDefinition{
			ID:      "def-" + string(rune('a'+i)),
			GroupID: "grp-1",
			Version: i + 1,
			Status:  status,
		}
		require.NoError(t, p.Definitions().Save(t.Context(), def))
	}

	published, err := p.Definitions().PublishedByGroup(t.Context(), "grp-1")
	require.NoError(t, err)
	assert.Equal(t, 2, published.Version)

	_, err = p.Definitions().PublishedByGroup(t.Context(), "grp-other")
	require.ErrorIs(t, err, persistence.ErrPublishedDefinitionNotFound)
}

func TestExecutionRepository_CheckpointRoundTrip(t *testing.T) {
	p := testPersistence(t)

	wake := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	inst := &models.ExecutionInstance{
		ID:                "exec-1",
		DefinitionID:      "def-1",
		DefinitionVersion: 3,
		Status:            models.ExecutionStatusSuspended,
		ActiveNodes:       []string{},
		SuspendedNodes: map[string]*models.SuspendedNode{
			"wait": {
				NodeID:      "wait",
				Reason:      models.SuspendReasonTimer,
				ResumeToken: "tmr-1",
				WakeAt:      &wake,
			},
		},
		JoinWaits: map[string]int{"join": 2},
		Scope: &models.Scope{
			TriggerInput: map[string]any{"amount": 400.0},
			Variables:    map[string]any{"checked": true},
			Context:      map[string]any{"user_id": "emp-1"},
			LoopFrames: []*models.LoopFrame{
				{NodeID: "each", Items: []any{"a", "b"}, Index: 1, Item: "b"},
			},
		},
		CreatedBy: "emp-1",
		CreatedAt: time.Now().UTC(),
	}

	require.NoError(t, p.Executions().Save(t.Context(), inst))

	loaded, err := p.Executions().ByID(t.Context(), "exec-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuspended, loaded.Status)
	require.Contains(t, loaded.SuspendedNodes, "wait")
	assert.Equal(t, "tmr-1", loaded.SuspendedNodes["wait"].ResumeToken)
	assert.True(t, wake.Equal(*loaded.SuspendedNodes["wait"].WakeAt))
	assert.Equal(t, map[string]int{"join": 2}, loaded.JoinWaits)
	require.Len(t, loaded.Scope.LoopFrames, 1)
	assert.Equal(t, 1, loaded.Scope.LoopFrames[0].Index)
	assert.Equal(t, "b", loaded.Scope.LoopFrames[0].Item)
}

func TestExecutionRepository_ByCreatorAndStatus(t *testing.T) {
	p := testPersistence(t)

	base := time.Now().UTC()
	for i, inst := range []*models.ExecutionInstance{
		{ID: "exec-1", Status: models.ExecutionStatusRunning, CreatedBy: "emp-1"},
		{ID: "exec-2", Status: models.ExecutionStatusCompleted, CreatedBy: "emp-1"},
		{ID: "exec-3", Status: models.ExecutionStatusRunning, CreatedBy: "emp-2"},
	} {
		inst.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, p.Executions().Save(t.Context(), inst))
	}

	mine, err := p.Executions().ByCreator(t.Context(), "emp-1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "exec-1", mine[0].ID)

	running, err := p.Executions().ByStatus(t.Context(), models.ExecutionStatusRunning)
	require.NoError(t, err)
	require.Len(t, running, 2)
}

func TestApprovalRepository_PendingForUser(t *testing.T) {
	p := testPersistence(t)

	decidedAt := time.Now().UTC()
	records := []*models.ApprovalRecord{
		{ID: "appr-1", ExecutionID: "exec-1", AssigneeIDs: []string{"mgr-1"}, Decision: models.DecisionPending, CreatedAt: decidedAt},
		{ID: "appr-2", ExecutionID: "exec-2", AssigneeIDs: []string{"mgr-1"}, Decision: models.DecisionApproved, DecidedBy: "mgr-1", DecidedAt: &decidedAt, CreatedAt: decidedAt.Add(time.Second)},
		{ID: "appr-3", ExecutionID: "exec-3", AssigneeIDs: []string{"mgr-2"}, Decision: models.DecisionPending, CreatedAt: decidedAt.Add(2 * time.Second)},
	}
	for _, record := range records {
		require.NoError(t, p.Approvals().Save(t.Context(), record))
	}

	pending, err := p.Approvals().PendingForUser(t.Context(), "mgr-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "appr-1", pending[0].ID)
}

func TestTimerRepository_DueOrdering(t *testing.T) {
	p := testPersistence(t)

	now := time.Now().UTC()
	for _, timer := range []*models.Timer{
		{Token: "tmr-later", ExecutionID: "exec-1", WakeAt: now.Add(time.Hour)},
		{Token: "tmr-b", ExecutionID: "exec-2", WakeAt: now.Add(-time.Minute)},
		{Token: "tmr-a", ExecutionID: "exec-3", WakeAt: now.Add(-time.Hour)},
	} {
		require.NoError(t, p.Timers().Save(t.Context(), timer))
	}

	due, err := p.Timers().Due(t.Context(), now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "tmr-a", due[0].Token)
	assert.Equal(t, "tmr-b", due[1].Token)

	require.NoError(t, p.Timers().Delete(t.Context(), "tmr-a"))

	due, err = p.Timers().Due(t.Context(), now)
	require.NoError(t, err)
	require.Len(t, due, 1)

	err = p.Timers().Delete(t.Context(), "tmr-a")
	require.ErrorIs(t, err, persistence.ErrTimerNotFound)
}

func TestScheduleRepository_Due(t *testing.T) {
	p := testPersistence(t)

	now := time.Now().UTC()
	for _, schedule := range []*models.Schedule{
		{ID: "sch-due", DefinitionID: "def-1", CronExpr: "0 9 * * *", Enabled: true, NextFireAt: now.Add(-time.Minute)},
		{ID: "sch-future", DefinitionID: "def-1", CronExpr: "0 9 * * *", Enabled: true, NextFireAt: now.Add(time.Hour)},
		{ID: "sch-disabled", DefinitionID: "def-1", CronExpr: "0 9 * * *", Enabled: false, NextFireAt: now.Add(-time.Minute)},
	} {
		require.NoError(t, p.Schedules().Save(t.Context(), schedule))
	}

	due, err := p.Schedules().Due(t.Context(), now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "sch-due", due[0].ID)
}

func TestHealthCheck(t *testing.T) {
	p := testPersistence(t)
	require.NoError(t, p.HealthCheck(t.Context()))

	missing := NewPersistence("/nonexistent/arion-data")
	require.Error(t, missing.HealthCheck(t.Context()))
}
