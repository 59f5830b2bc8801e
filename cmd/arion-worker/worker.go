package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/arionlabs/arion/pkg/engine"
	"github.com/arionlabs/arion/pkg/triggers/queue"
)

// Worker recovers in-flight executions at startup and then serves the intake
// queue: approval decisions, tool results, webhook triggers, and cancel
// requests delivered by external systems.
type Worker struct {
	id       string
	logger   *slog.Logger
	engine   *engine.Engine
	consumer *queue.Consumer
}

func NewWorker(id string, eng *engine.Engine, consumer *queue.Consumer, logger *slog.Logger) *Worker {
	return &Worker{
		id:       id,
		logger:   logger.With("module", "arion-worker", "worker_id", id),
		engine:   eng,
		consumer: consumer,
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker", "worker_id", w.id)

	if err := w.engine.Recover(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Failed to recover in-flight executions", "error", err)

		return err
	}

	if err := w.consumer.Start(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Failed to start intake consumer", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down worker...")

	return w.consumer.Stop(ctx)
}
