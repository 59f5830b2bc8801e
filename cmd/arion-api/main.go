package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/arionlabs/arion/pkg/cmd"
	"github.com/arionlabs/arion/pkg/engine"
	"github.com/arionlabs/arion/pkg/log"
	"github.com/arionlabs/arion/pkg/otelhelper"
)

const defaultPort = 9090

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "arion-api",
		Usage:                 "Create and manage process definitions and executions",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
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
				Name:    "permission-grants",
				Usage:   "Path to the JSON permission grants file",
				Sources: cli.EnvVars("PERMISSION_GRANTS"),
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

			logger.InfoContext(ctx, "Initializing Arion API")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "arion-api", logger)

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			tracer, err := otelhelper.NewTracer(ctx, "arion-api")
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

			api := NewAPI(
				logger,
				persistence,
				eventBus,
				eng,
				cmd.NewPermissionChecker(command.String("permission-grants")),
			)

			if err := api.Start(command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)

				return err
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
