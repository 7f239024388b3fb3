// Package main provides the devflow worker that runs workflows for queued events.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/devflow/pkg/broadcast"
	"github.com/dukex/devflow/pkg/cmd"
	"github.com/dukex/devflow/pkg/eventbus"
	"github.com/dukex/devflow/pkg/log"
	"github.com/dukex/devflow/pkg/otelhelper"
	"github.com/dukex/devflow/pkg/sweeper"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	logger := log.WithModule("worker")

	command := &cli.Command{
		Name:                  "devflow-worker",
		Usage:                 "Consume queued events and run their workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (file:// or postgres://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for execution leases (optional)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "workspace-root",
				Usage:   "Directory where project checkouts live",
				Value:   "./workspaces",
				Sources: cli.EnvVars("WORKSPACE_ROOT"),
			},
			&cli.StringFlag{
				Name:    "container-image",
				Usage:   "Image used for build and push steps",
				Value:   "node:20-bookworm",
				Sources: cli.EnvVars("CONTAINER_IMAGE"),
			},
			&cli.StringFlag{
				Name:    "git-remote",
				Usage:   "Git remote to push task branches to",
				Value:   "origin",
				Sources: cli.EnvVars("GIT_REMOTE"),
			},
			&cli.StringFlag{
				Name:    "repository-url",
				Usage:   "Git URL template for task repositories, {project} is replaced by the project id",
				Sources: cli.EnvVars("REPOSITORY_URL"),
			},
			&cli.StringFlag{
				Name:    "sweep-schedule",
				Usage:   "Cron schedule for redispatching unprocessed events",
				Value:   sweeper.DefaultSchedule,
				Sources: cli.EnvVars("SWEEP_SCHEDULE"),
			},
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
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

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.NewString()[:8]
			}

			logger.InfoContext(ctx, "Initializing Devflow worker", "worker_id", workerID)

			tracer, err := otelhelper.NewTracer(ctx, "devflow-worker", command.Bool("otel-enabled"))
			if err != nil {
				return err
			}

			latency, err := otelhelper.NewQueueLatency("devflow-worker")
			if err != nil {
				return err
			}

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			redisClient, err := cmd.NewRedisClient(ctx, command.String("redis-url"))
			if err != nil {
				return err
			}

			if redisClient != nil {
				defer func() { _ = redisClient.Close() }()
			}

			eventBus, err := cmd.NewEventBus(cmd.EventBusConfig{
				Provider:      command.String("event-bus"),
				Brokers:       command.String("kafka-brokers"),
				ConsumerGroup: "devflow-worker",
			}, logger, eventbus.WithLatencyRecorder(latency))
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			worker, err := cmd.NewWorker(
				persistence,
				eventBus,
				cmd.NewLocker(redisClient),
				broadcast.NewBusBroadcaster(eventBus),
				tracer,
				cmd.WorkerConfig{
					WorkerID:      workerID,
					SweepSchedule: command.String("sweep-schedule"),
					Workflows: cmd.WorkflowConfig{
						WorkspaceRoot:  command.String("workspace-root"),
						ContainerImage: command.String("container-image"),
						GitRemote:      command.String("git-remote"),
						RepositoryURL:  command.String("repository-url"),
					},
				},
				logger,
			)
			if err != nil {
				return err
			}

			return worker.Run(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
