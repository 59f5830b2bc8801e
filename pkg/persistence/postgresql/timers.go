package postgresql

import (
	"context"
	"database/sql"
	"time"

	"github.com/arionlabs/arion/pkg/models"
	"github.com/arionlabs/arion/pkg/persistence"
)

// TimerRepository stores durable wake-up registrations.
type TimerRepository struct {
	db *sql.DB
}

func (r *TimerRepository) Save(ctx context.Context, timer *models.Timer) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO timers (token, execution_id, node_id, wake_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token) DO UPDATE SET wake_at = EXCLUDED.wake_at
	`, timer.Token, timer.ExecutionID, timer.NodeID, timer.WakeAt, timer.CreatedAt)
	if err != nil {
		return persistence.NewStoreError("Save", timer.Token, err)
	}

	return nil
}

func (r *TimerRepository) Delete(ctx context.Context, token string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM timers WHERE token = $1`, token)
	if err != nil {
		return persistence.NewStoreError("Delete", token, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("Delete", token, err)
	}

	if affected == 0 {
		return persistence.NewStoreError("Delete", token, persistence.ErrTimerNotFound)
	}

	return nil
}

func (r *TimerRepository) Due(ctx context.Context, now time.Time) ([]*models.Timer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT token, execution_id, node_id, wake_at, created_at
		FROM timers WHERE wake_at <= $1 ORDER BY wake_at ASC
	`, now)
	if err != nil {
		return nil, persistence.NewStoreError("Due", "", err)
	}
	defer rows.Close()

	due := make([]*models.Timer, 0)

	for rows.Next() {
		var timer models.Timer

		err := rows.Scan(&timer.Token, &timer.ExecutionID, &timer.NodeID, &timer.WakeAt, &timer.CreatedAt)
		if err != nil {
			return nil, persistence.NewStoreError("Due", "", err)
		}

		due = append(due, &timer)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("Due", "", err)
	}

	return due, nil
}
