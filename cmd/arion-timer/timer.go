package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/arionlabs/arion/pkg/engine"
	"github.com/arionlabs/arion/pkg/triggers/schedule"
)

// TimerService fires due execution timers (delays and approval timeouts) and
// runs the cron scheduler. One instance per deployment; firing a timer twice
// is absorbed by the engine but wastes work.
type TimerService struct {
	logger       *slog.Logger
	engine       *engine.Engine
	scheduler    *schedule.Scheduler
	pollInterval time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewTimerService(eng *engine.Engine, scheduler *schedule.Scheduler, pollInterval time.Duration, logger *slog.Logger) *TimerService {
	return &TimerService{
		logger:       logger.With("module", "arion-timer"),
		engine:       eng,
		scheduler:    scheduler,
		pollInterval: pollInterval,
		stopCh:       make(chan struct{}),
	}
}

func (t *TimerService) Start(ctx context.Context) error {
	t.logger.InfoContext(ctx, "Starting timer service", "poll_interval", t.pollInterval)

	t.scheduler.Start(ctx)

	t.wg.Add(1)

	go t.poll(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	t.logger.InfoContext(ctx, "Shutting down timer service...")

	close(t.stopCh)
	t.scheduler.Stop()
	t.wg.Wait()

	return nil
}

func (t *TimerService) poll(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep(ctx)
		}
	}
}

// Sweep resumes every timer that has come due. Each timer is handled
// independently: one failing resume never blocks the rest.
func (t *TimerService) Sweep(ctx context.Context) {
	timers, err := t.engine.DueTimers(ctx, time.Now().UTC())
	if err != nil {
		t.logger.ErrorContext(ctx, "Failed to list due timers", "error", err)

		return
	}

	for _, timer := range timers {
		if err := t.engine.ResumeTimer(ctx, timer); err != nil {
			t.logger.ErrorContext(ctx, "Failed to resume timer",
				"error", err,
				"execution_id", timer.ExecutionID,
				"resume_token", timer.Token,
			)
		}
	}
}
