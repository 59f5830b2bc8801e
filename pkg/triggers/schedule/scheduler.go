// Package schedule fires process executions from persisted cron schedules.
// The poller sweeps due schedules once a minute; every fired schedule gets
// its next fire time recomputed with the standard cron parser.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/arionlabs/arion/pkg/models"
	"github.com/arionlabs/arion/pkg/persistence"
)

const defaultPollInterval = time.Minute

// Starter is the engine entry point the scheduler feeds into.
type Starter interface {
	StartExecution(ctx context.Context, definitionID string, input map[string]any, createdBy string) (*models.ExecutionInstance, error)
}

type Scheduler struct {
	persistence  persistence.Persistence
	starter      Starter
	pollInterval time.Duration
	logger       *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewScheduler(store persistence.Persistence, starter Starter, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		persistence:  store,
		starter:      starter,
		pollInterval: defaultPollInterval,
		logger:       logger.With("module", "scheduler"),
		stopCh:       make(chan struct{}),
	}
}

// Register validates and persists a schedule, computing its first fire time.
func Register(ctx context.Context, store persistence.Persistence, sched *models.Schedule) error {
	spec, err := cron.ParseStandard(sched.CronExpr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", sched.CronExpr, err)
	}

	if sched.DefinitionID == "" {
		return fmt.Errorf("schedule %s: definition id is required", sched.ID)
	}

	now := time.Now().UTC()
	sched.NextFireAt = spec.Next(now)

	if sched.CreatedAt.IsZero() {
		sched.CreatedAt = now
	}

	return store.Schedules().Save(ctx, sched)
}

// Start launches the polling loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("starting scheduler", "poll_interval", s.pollInterval)

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Sweep fires every due schedule once. Exported so the timer binary can run
// a single sweep on demand.
func (s *Scheduler) Sweep(ctx context.Context) {
	due, err := s.persistence.Schedules().Due(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("failed to load due schedules", "error", err)

		return
	}

	for _, sched := range due {
		s.fire(ctx, sched)
	}
}

// fire advances the schedule before starting the execution, so a crash
// mid-start skips the tick instead of replaying it forever.
func (s *Scheduler) fire(ctx context.Context, sched *models.Schedule) {
	spec, err := cron.ParseStandard(sched.CronExpr)
	if err != nil {
		s.logger.Error("schedule has invalid cron expression, disabling",
			"schedule_id", sched.ID, "cron", sched.CronExpr, "error", err)

		sched.Enabled = false
	} else {
		now := time.Now().UTC()
		sched.NextFireAt = spec.Next(now)
		sched.LastFiredAt = &now
	}

	if err := s.persistence.Schedules().Save(ctx, sched); err != nil {
		s.logger.Error("failed to advance schedule", "schedule_id", sched.ID, "error", err)

		return
	}

	if !sched.Enabled {
		return
	}

	createdBy := sched.OwnerID
	if createdBy == "" {
		createdBy = "scheduler"
	}

	inst, err := s.starter.StartExecution(ctx, sched.DefinitionID, sched.TriggerInput, createdBy)
	if err != nil {
		s.logger.Error("scheduled execution failed to start",
			"schedule_id", sched.ID, "definition_id", sched.DefinitionID, "error", err)

		return
	}

	s.logger.Info("scheduled execution started",
		"schedule_id", sched.ID, "execution_id", inst.ID)
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}
