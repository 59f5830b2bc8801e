package schedule_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arionlabs/arion/pkg/log"
	"github.com/arionlabs/arion/pkg/models"
	"github.com/arionlabs/arion/pkg/persistence/file"
	"github.com/arionlabs/arion/pkg/triggers/schedule"
)

type fakeStarter struct {
	started []string
	err     error
}

func (f *fakeStarter) StartExecution(_ context.Context, definitionID string, _ map[string]any, _ string) (*models.ExecutionInstance, error) {
	f.started = append(f.started, definitionID)

	return &models.ExecutionInstance{ID: "exec-1", DefinitionID: definitionID}, f.err
}

func TestRegisterComputesNextFire(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	ctx := context.Background()

	sched := &models.Schedule{
		ID:           "sched-1",
		DefinitionID: "def-1",
		CronExpr:     "0 9 * * *",
		Enabled:      true,
	}
	require.NoError(t, schedule.Register(ctx, store, sched))

	assert.False(t, sched.NextFireAt.IsZero())
	assert.True(t, sched.NextFireAt.After(time.Now().UTC()))

	got, err := store.Schedules().ByID(ctx, "sched-1")
	require.NoError(t, err)
	assert.Equal(t, sched.NextFireAt.Unix(), got.NextFireAt.Unix())
}

func TestRegisterRejectsInvalidCron(t *testing.T) {
	store := file.NewPersistence(t.TempDir())

	err := schedule.Register(context.Background(), store, &models.Schedule{
		ID:           "sched-bad",
		DefinitionID: "def-1",
		CronExpr:     "not a cron",
	})
	require.Error(t, err)
}

func TestSweepFiresDueSchedules(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	starter := &fakeStarter{}
	s := schedule.NewScheduler(store, starter, log.WithModule("test"))
	ctx := context.Background()

	due := &models.Schedule{
		ID:           "sched-due",
		DefinitionID: "def-1",
		CronExpr:     "*/5 * * * *",
		TriggerInput: map[string]any{"source": "schedule"},
		Enabled:      true,
		NextFireAt:   time.Now().UTC().Add(-time.Minute),
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, store.Schedules().Save(ctx, due))

	notYet := &models.Schedule{
		ID:           "sched-future",
		DefinitionID: "def-2",
		CronExpr:     "*/5 * * * *",
		Enabled:      true,
		NextFireAt:   time.Now().UTC().Add(time.Hour),
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, store.Schedules().Save(ctx, notYet))

	s.Sweep(ctx)

	assert.Equal(t, []string{"def-1"}, starter.started)

	advanced, err := store.Schedules().ByID(ctx, "sched-due")
	require.NoError(t, err)
	assert.True(t, advanced.NextFireAt.After(time.Now().UTC()))
	assert.NotNil(t, advanced.LastFiredAt)

	// The fired schedule does not come due again immediately.
	s.Sweep(ctx)
	assert.Equal(t, []string{"def-1"}, starter.started)
}

func TestSweepSkipsDisabled(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	starter := &fakeStarter{}
	s := schedule.NewScheduler(store, starter, log.WithModule("test"))
	ctx := context.Background()

	require.NoError(t, store.Schedules().Save(ctx, &models.Schedule{
		ID:           "sched-off",
		DefinitionID: "def-1",
		CronExpr:     "*/5 * * * *",
		Enabled:      false,
		NextFireAt:   time.Now().UTC().Add(-time.Minute),
		CreatedAt:    time.Now().UTC(),
	}))

	s.Sweep(ctx)

	assert.Empty(t, starter.started)
}
