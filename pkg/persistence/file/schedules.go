package file

import (
	"context"
	"errors"
	"io/fs"
	"sort"
	"time"

	"github.com/arionlabs/arion/pkg/models"
	"github.com/arionlabs/arion/pkg/persistence"
)

const schedulesDir = "schedules"

// ScheduleRepository stores one JSON document per cron schedule.
type ScheduleRepository struct {
	store *store
}

func (r *ScheduleRepository) Save(_ context.Context, schedule *models.Schedule) error {
	if err := r.store.write(schedulesDir, schedule.ID, schedule); err != nil {
		return persistence.NewStoreError("Save", schedule.ID, err)
	}

	return nil
}

func (r *ScheduleRepository) ByID(_ context.Context, id string) (*models.Schedule, error) {
	var schedule models.Schedule

	if err := r.store.read(schedulesDir, id, &schedule); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.NewStoreError("ByID", id, persistence.ErrScheduleNotFound)
		}

		return nil, persistence.NewStoreError("ByID", id, err)
	}

	return &schedule, nil
}

// Due returns enabled schedules whose next fire time is at or before now.
func (r *ScheduleRepository) Due(_ context.Context, now time.Time) ([]*models.Schedule, error) {
	ids, err := r.store.ids(schedulesDir)
	if err != nil {
		return nil, persistence.NewStoreError("Due", "", err)
	}

	due := make([]*models.Schedule, 0)

	for _, id := range ids {
		var schedule models.Schedule

		if err := r.store.read(schedulesDir, id, &schedule); err != nil {
			return nil, persistence.NewStoreError("Due", id, err)
		}

		if schedule.Enabled && !schedule.NextFireAt.After(now) {
			due = append(due, &schedule)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].NextFireAt.Before(due[j].NextFireAt)
	})

	return due, nil
}

func (r *ScheduleRepository) Delete(_ context.Context, id string) error {
	if err := r.store.remove(schedulesDir, id); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return persistence.NewStoreError("Delete", id, persistence.ErrScheduleNotFound)
		}

		return persistence.NewStoreError("Delete", id, err)
	}

	return nil
}
