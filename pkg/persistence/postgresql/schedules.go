package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/arionlabs/arion/pkg/models"
	"github.com/arionlabs/arion/pkg/persistence"
)

// ScheduleRepository stores cron trigger registrations.
type ScheduleRepository struct {
	db *sql.DB
}

func (r *ScheduleRepository) Save(ctx context.Context, schedule *models.Schedule) error {
	var triggerInput []byte

	if schedule.TriggerInput != nil {
		data, err := json.Marshal(schedule.TriggerInput)
		if err != nil {
			return persistence.NewStoreError("Save", schedule.ID, fmt.Errorf("failed to marshal trigger input: %w", err))
		}

		triggerInput = data
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO schedules (id, definition_id, cron_expr, trigger_input, owner_id,
			enabled, next_fire_at, last_fired_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			cron_expr = EXCLUDED.cron_expr,
			trigger_input = EXCLUDED.trigger_input,
			enabled = EXCLUDED.enabled,
			next_fire_at = EXCLUDED.next_fire_at,
			last_fired_at = EXCLUDED.last_fired_at
	`, schedule.ID, schedule.DefinitionID, schedule.CronExpr, triggerInput, schedule.OwnerID,
		schedule.Enabled, schedule.NextFireAt, schedule.LastFiredAt, schedule.CreatedAt)
	if err != nil {
		return persistence.NewStoreError("Save", schedule.ID, err)
	}

	return nil
}

const scheduleColumns = `id, definition_id, cron_expr, trigger_input, owner_id,
	enabled, next_fire_at, last_fired_at, created_at`

func (r *ScheduleRepository) ByID(ctx context.Context, id string) (*models.Schedule, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id)

	schedule, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("ByID", id, persistence.ErrScheduleNotFound)
		}

		return nil, persistence.NewStoreError("ByID", id, err)
	}

	return schedule, nil
}

func (r *ScheduleRepository) Due(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+scheduleColumns+` FROM schedules
		WHERE enabled AND next_fire_at <= $1
		ORDER BY next_fire_at ASC
	`, now)
	if err != nil {
		return nil, persistence.NewStoreError("Due", "", err)
	}
	defer rows.Close()

	due := make([]*models.Schedule, 0)

	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, persistence.NewStoreError("Due", "", err)
		}

		due = append(due, schedule)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("Due", "", err)
	}

	return due, nil
}

func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return persistence.NewStoreError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.NewStoreError("Delete", id, persistence.ErrScheduleNotFound)
	}

	return nil
}

func scanSchedule(row rowScanner) (*models.Schedule, error) {
	var (
		schedule     models.Schedule
		triggerInput []byte
	)

	err := row.Scan(&schedule.ID, &schedule.DefinitionID, &schedule.CronExpr, &triggerInput,
		&schedule.OwnerID, &schedule.Enabled, &schedule.NextFireAt, &schedule.LastFiredAt,
		&schedule.CreatedAt)
	if err != nil {
		return nil, err
	}

	if len(triggerInput) > 0 {
		if err := json.Unmarshal(triggerInput, &schedule.TriggerInput); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger input: %w", err)
		}
	}

	return &schedule, nil
}
