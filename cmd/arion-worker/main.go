package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/arionlabs/arion/pkg/cmd"
	"github.com/arionlabs/arion/pkg/engine"
	"github.com/arionlabs/arion/pkg/log"
	"github.com/arionlabs/arion/pkg/otelhelper"
	"github.com/arionlabs/arion/pkg/triggers/queue"
)

func main() {
	command := &cli.Command{
		Name:                  "arion-worker",
		Usage:                 "Serve the resume intake queue and recover in-flight executions",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "intake-queue",
				Usage:   "Redis list the resume intake consumer reads from",
				Value:   "arion.intake",
				Sources: cli.EnvVars("INTAKE_QUEUE"),
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "Redis address for the intake queue",
				Value:   "localhost:6379",
				Sources: cli.EnvVars("REDIS_ADDR"),
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password for the intake queue",
				Sources: cli.EnvVars("REDIS_PASSWORD"),
			},
			&cli.StringFlag{
				Name:    "redis-db",
				Usage:   "Redis database number for the intake queue",
				Sources: cli.EnvVars("REDIS_DB"),
			},
			&cli.StringFlag{
				Name:    "tool-gateway-url",
				Usage:   "Base URL of the tool gateway",
				Sources: cli.EnvVars("TOOL_GATEWAY_URL"),
			},
			&cli.StringFlag{
				Name:    "completion-gateway-url",
				Usage:   "Base URL of the AI completion gateway",
				Sources: cli.EnvVars("COMPLETION_GATEWAY_URL"),
			},
			&cli.StringFlag{
				Name:    "notification-gateway-url",
				Usage:   "Base URL of the notification gateway",
				Sources: cli.EnvVars("NOTIFICATION_GATEWAY_URL"),
			},
			&cli.StringFlag{
				Name:    "identity-directory",
				Usage:   "Path to the JSON organizational directory",
				Sources: cli.EnvVars("IDENTITY_DIRECTORY"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("arion-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing Arion Worker")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "arion-worker", logger)

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			tracer, err := otelhelper.NewTracer(ctx, "arion-worker")
			if err != nil {
				logger.WarnContext(ctx, "Tracing disabled", "error", err)
			}

			eng := engine.NewEngine(engine.Config{
				Persistence: persistence,
				Identity:    cmd.NewIdentityResolver(command.String("identity-directory"), logger),
				Tools:       cmd.NewToolInvoker(command.String("tool-gateway-url"), logger),
				Completion:  cmd.NewCompletionService(command.String("completion-gateway-url"), logger),
				Notifier:    cmd.NewNotifier(command.String("notification-gateway-url"), logger),
				Publisher:   eventBus,
				Tracer:      tracer,
				Logger:      logger,
			})

			consumer, err := queue.NewConsumer(map[string]any{
				"queue": command.String("intake-queue"),
				"connection": map[string]any{
					"addr":     command.String("redis-addr"),
					"password": command.String("redis-password"),
					"db":       command.String("redis-db"),
				},
			}, eng, logger)
			if err != nil {
				return err
			}

			worker := NewWorker(workerID, eng, consumer, logger)

			if err := worker.Start(ctx); err != nil {
				logger.ErrorContext(ctx, "Failed to start worker", "error", err)

				return err
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
