// Package persistence provides the data storage abstraction for process
// definitions, execution instances, approvals, timers and schedules.
package persistence

import (
	"context"
	"time"

	"github.com/arionlabs/arion/pkg/models"
)

// Persistence bundles the aggregate repositories behind one handle. All
// implementations must be safe for concurrent use: the engine checkpoints
// instances from multiple goroutines.
type Persistence interface {
	Definitions() DefinitionRepository
	Executions() ExecutionRepository
	Approvals() ApprovalRepository
	Timers() TimerRepository
	Schedules() ScheduleRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// DefinitionRepository stores process definition versions. A definition id
// identifies one immutable version; GroupID ties the versions of the same
// logical process together.
type DefinitionRepository interface {
	Save(ctx context.Context, def *models.ProcessDefinition) error
	ByID(ctx context.Context, id string) (*models.ProcessDefinition, error)
	ByGroup(ctx context.Context, groupID string) ([]*models.ProcessDefinition, error)
	PublishedByGroup(ctx context.Context, groupID string) (*models.ProcessDefinition, error)
	All(ctx context.Context) ([]*models.ProcessDefinition, error)
	Delete(ctx context.Context, id string) error
}

// ExecutionRepository stores execution instances. Save is an upsert: the
// engine calls it after every transition as the checkpoint write.
type ExecutionRepository interface {
	Save(ctx context.Context, inst *models.ExecutionInstance) error
	ByID(ctx context.Context, id string) (*models.ExecutionInstance, error)
	ByCreator(ctx context.Context, userID string) ([]*models.ExecutionInstance, error)
	ByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.ExecutionInstance, error)
}

// ApprovalRepository stores approval records.
type ApprovalRepository interface {
	Save(ctx context.Context, record *models.ApprovalRecord) error
	ByID(ctx context.Context, id string) (*models.ApprovalRecord, error)
	PendingForUser(ctx context.Context, userID string) ([]*models.ApprovalRecord, error)
}

// TimerRepository stores durable wake-up registrations. Due returns timers
// whose wake time is at or before now, ordered soonest first.
type TimerRepository interface {
	Save(ctx context.Context, timer *models.Timer) error
	Delete(ctx context.Context, token string) error
	Due(ctx context.Context, now time.Time) ([]*models.Timer, error)
}

// ScheduleRepository stores cron trigger registrations.
type ScheduleRepository interface {
	Save(ctx context.Context, schedule *models.Schedule) error
	ByID(ctx context.Context, id string) (*models.Schedule, error)
	Due(ctx context.Context, now time.Time) ([]*models.Schedule, error)
	Delete(ctx context.Context, id string) error
}
