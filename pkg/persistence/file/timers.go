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

const timersDir = "timers"

// TimerRepository stores one JSON document per durable timer.
type TimerRepository struct {
	store *store
}

func (r *TimerRepository) Save(_ context.Context, timer *models.Timer) error {
	if err := r.store.write(timersDir, timer.Token, timer); err != nil {
		return persistence.NewStoreError("Save", timer.Token, err)
	}

	return nil
}

func (r *TimerRepository) Delete(_ context.Context, token string) error {
	if err := r.store.remove(timersDir, token); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return persistence.NewStoreError("Delete", token, persistence.ErrTimerNotFound)
		}

		return persistence.NewStoreError("Delete", token, err)
	}

	return nil
}

func (r *TimerRepository) Due(_ context.Context, now time.Time) ([]*models.Timer, error) {
	tokens, err := r.store.ids(timersDir)
	if err != nil {
		return nil, persistence.NewStoreError("Due", "", err)
	}

	due := make([]*models.Timer, 0)

	for _, token := range tokens {
		var timer models.Timer

		if err := r.store.read(timersDir, token, &timer); err != nil {
			return nil, persistence.NewStoreError("Due", token, err)
		}

		if !timer.WakeAt.After(now) {
			due = append(due, &timer)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].WakeAt.Before(due[j].WakeAt)
	})

	return due, nil
}
