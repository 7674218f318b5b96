package main

import (
	"context"
	"os"

	"github.com/iotlinker/automation/pkg/cmd"
	"github.com/iotlinker/automation/pkg/condition"
	"github.com/iotlinker/automation/pkg/engine"
	"github.com/iotlinker/automation/pkg/log"
	"github.com/iotlinker/automation/pkg/web"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "automation-api",
		Usage:                 "Author workflows, inspect runs and ingest telemetry",
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
				Name:    "database-url",
				Usage:   "Database connection URL for persistence (file://, postgres://)",
				Value:   "file://./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "ledger-url",
				Usage:   "Optional Redis URL for the run ledger",
				Sources: cli.EnvVars("LEDGER_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka); when empty telemetry runs inline",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "notification-redis-url",
				Usage:   "Redis URL of the email notification queue (inline runs only)",
				Sources: cli.EnvVars("NOTIFICATION_REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "plugins-path",
				Usage:   "Path to the directory containing adapter plugins",
				Value:   "./plugins",
				Sources: cli.EnvVars("PLUGINS_PATH"),
			},
			&cli.FloatFlag{
				Name:    "equals-tolerance",
				Usage:   "Default tolerance of equals/not_equals conditions (inline runs only)",
				Sources: cli.EnvVars("EQUALS_TOLERANCE"),
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

			logger.InfoContext(ctx, "Initializing automation API")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			persistence, err = cmd.WithRedisLedger(ctx, logger, persistence, command.String("ledger-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			registry, err := cmd.NewRegistry(ctx, logger, persistence.ConnectionRepository(), cmd.RegistryConfig{
				PluginsPath:          command.String("plugins-path"),
				NotificationRedisURL: command.String("notification-redis-url"),
			})
			if err != nil {
				return err
			}

			var options []web.Option

			if provider := command.String("event-bus"); provider != "" {
				eventBus, err := cmd.NewEventBus(provider, logger, "automation-api")
				if err != nil {
					return err
				}

				defer func() {
					if err := eventBus.Close(); err != nil {
						logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
					}
				}()

				options = append(options, web.WithPublisher(eventBus))
			} else {
				options = append(options, web.WithRunner(engine.New(
					persistence.WorkflowRepository(),
					persistence.RunLedger(),
					registry,
					logger,
					engine.WithEvaluator(condition.NewEvaluator(condition.WithEqualsTolerance(command.Float("equals-tolerance")))),
				)))
			}

			return NewAPI(logger, persistence, registry, options...).Start(command.Int("port"))
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
