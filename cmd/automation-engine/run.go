package main

import (
	"context"
	"fmt"
	"time"

	"github.com/iotlinker/automation/pkg/cmd"
	"github.com/iotlinker/automation/pkg/condition"
	"github.com/iotlinker/automation/pkg/engine"
	"github.com/iotlinker/automation/pkg/log"
	"github.com/iotlinker/automation/pkg/otelhelper"
	"github.com/iotlinker/automation/pkg/scheduler"
	"github.com/urfave/cli/v3"
)

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Consume telemetry and schedule ticks and execute workflows",
		Flags: []cli.Flag{
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
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "notification-redis-url",
				Usage:   "Redis URL of the email notification queue (logged when empty)",
				Sources: cli.EnvVars("NOTIFICATION_REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "plugins-path",
				Usage:   "Path to the directory containing adapter plugins",
				Value:   "./plugins",
				Sources: cli.EnvVars("PLUGINS_PATH"),
			},
			&cli.DurationFlag{
				Name:    "run-timeout",
				Usage:   "Wall-clock limit of a run",
				Value:   engine.DefaultRunTimeout,
				Sources: cli.EnvVars("RUN_TIMEOUT"),
			},
			&cli.DurationFlag{
				Name:    "dispatch-timeout",
				Usage:   "Limit of a single action dispatch",
				Value:   engine.DefaultDispatchTimeout,
				Sources: cli.EnvVars("DISPATCH_TIMEOUT"),
			},
			&cli.IntFlag{
				Name:    "max-concurrent-runs",
				Usage:   "Runs started in parallel for one event",
				Value:   engine.DefaultMaxConcurrentRuns,
				Sources: cli.EnvVars("MAX_CONCURRENT_RUNS"),
			},
			&cli.DurationFlag{
				Name:    "schedule-interval",
				Usage:   "Interval of schedule ticks; 0 disables the scheduler",
				Value:   scheduler.DefaultInterval,
				Sources: cli.EnvVars("SCHEDULE_INTERVAL"),
			},
			&cli.StringFlag{
				Name:    "scheduler-redis-url",
				Usage:   "Optional Redis URL of the lease electing the single tick publisher",
				Sources: cli.EnvVars("SCHEDULER_REDIS_URL"),
			},
			&cli.FloatFlag{
				Name:    "equals-tolerance",
				Usage:   "Default tolerance of equals/not_equals conditions",
				Value:   0,
				Sources: cli.EnvVars("EQUALS_TOLERANCE"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP/HTTP (configured by OTEL_EXPORTER_OTLP_*)",
				Sources: cli.EnvVars("TRACING_ENABLED"),
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

			logger := log.WithModule("automation-engine")

			logger.InfoContext(ctx, "Initializing automation engine")

			tracer := otelhelper.NoopTracer()

			if command.Bool("tracing") {
				var err error

				tracer, err = otelhelper.NewTracer(ctx, "automation-engine")
				if err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}

				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
					defer cancel()

					if err := otelhelper.Shutdown(shutdownCtx); err != nil {
						logger.ErrorContext(ctx, "Failed to shut down tracer", "error", err)
					}
				}()
			}

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
				HTTPTimeout:          command.Duration("dispatch-timeout"),
			})
			if err != nil {
				return err
			}

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), logger, "automation-engine")
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			eng := engine.New(
				persistence.WorkflowRepository(),
				persistence.RunLedger(),
				registry,
				logger,
				engine.WithRunTimeout(command.Duration("run-timeout")),
				engine.WithDispatchTimeout(command.Duration("dispatch-timeout")),
				engine.WithMaxConcurrentRuns(command.Int("max-concurrent-runs")),
				engine.WithEvaluator(condition.NewEvaluator(condition.WithEqualsTolerance(command.Float("equals-tolerance")))),
				engine.WithPublisher(eventBus),
				engine.WithTracer(tracer),
			)

			scheduleInterval := command.Duration("schedule-interval")

			var schedulerOpts []scheduler.Option

			if scheduleInterval > 0 {
				opts, leaseClient, err := cmd.SchedulerOptions(ctx, logger, scheduleInterval, command.String("scheduler-redis-url"))
				if err != nil {
					return err
				}

				if leaseClient != nil {
					defer func() { _ = leaseClient.Close() }()
				}

				schedulerOpts = opts
			}

			manager := NewEngineManager(eng, eventBus, logger, scheduleInterval, schedulerOpts...)

			return manager.Start(ctx)
		},
	}
}
