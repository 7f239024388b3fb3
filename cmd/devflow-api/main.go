package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/dukex/devflow/pkg/broadcast"
	"github.com/dukex/devflow/pkg/cmd"
	"github.com/dukex/devflow/pkg/log"
	"github.com/dukex/devflow/pkg/otelhelper"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPort   = 9091
	defaultWSPort = 9092
)

var errNoTokens = errors.New("at least one websocket token is required")

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "devflow-api",
		Usage:                 "Ingest events, serve execution status and stream updates",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.IntFlag{
				Name:    "ws-port",
				Usage:   "Port to run the WebSocket server on",
				Value:   defaultWSPort,
				Sources: cli.EnvVars("WS_PORT"),
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
				Usage:   "Redis URL for the idempotency cache and leases (optional)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "ws-tokens",
				Usage:   "Comma separated tokens accepted by the WebSocket server",
				Sources: cli.EnvVars("WS_TOKENS"),
			},
			&cli.BoolFlag{
				Name:    "embedded-worker",
				Usage:   "Run a worker in this process (required with the gochannel event bus)",
				Sources: cli.EnvVars("EMBEDDED_WORKER"),
			},
			&cli.StringFlag{
				Name:    "workspace-root",
				Usage:   "Directory where embedded worker checkouts live",
				Value:   "./workspaces",
				Sources: cli.EnvVars("WORKSPACE_ROOT"),
			},
			&cli.StringFlag{
				Name:    "container-image",
				Usage:   "Image used by the embedded worker for build and push steps",
				Value:   "node:20-bookworm",
				Sources: cli.EnvVars("CONTAINER_IMAGE"),
			},
			&cli.StringFlag{
				Name:    "git-remote",
				Usage:   "Git remote pushed to by the embedded worker",
				Value:   "origin",
				Sources: cli.EnvVars("GIT_REMOTE"),
			},
			&cli.StringFlag{
				Name:    "repository-url",
				Usage:   "Git URL template used by the embedded worker, {project} is replaced by the project id",
				Sources: cli.EnvVars("REPOSITORY_URL"),
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

			logger.InfoContext(ctx, "Initializing Devflow API")

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			tokens := splitList(command.String("ws-tokens"))
			if len(tokens) == 0 {
				return errNoTokens
			}

			tracer, err := otelhelper.NewTracer(ctx, "devflow-api", command.Bool("otel-enabled"))
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

			// Each API instance relays every status envelope, so it needs its own group.
			eventBus, err := cmd.NewEventBus(cmd.EventBusConfig{
				Provider:      command.String("event-bus"),
				Brokers:       command.String("kafka-brokers"),
				ConsumerGroup: "devflow-api-" + uuid.NewString(),
			}, logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			hub := broadcast.NewHub(logger)
			wsServer := broadcast.NewServer(command.Int("ws-port"), hub, tokens, logger)
			guard := cmd.NewIdempotencyGuard(persistence, redisClient, logger)
			app := NewAPI(logger, persistence, guard, eventBus, hub, tracer).App()

			group, ctx := errgroup.WithContext(ctx)

			group.Go(func() error {
				return app.Listen(":" + strconv.Itoa(command.Int("port")))
			})

			group.Go(func() error {
				<-ctx.Done()

				return app.ShutdownWithContext(context.WithoutCancel(ctx))
			})

			group.Go(func() error {
				if err := wsServer.Start(ctx); err != nil {
					return err
				}

				<-wsServer.Done()

				return nil
			})

			if command.Bool("embedded-worker") {
				worker, err := cmd.NewWorker(persistence, eventBus, cmd.NewLocker(redisClient), hub, tracer, cmd.WorkerConfig{
					WorkerID: "embedded-" + uuid.NewString(),
					Workflows: cmd.WorkflowConfig{
						WorkspaceRoot:  command.String("workspace-root"),
						ContainerImage: command.String("container-image"),
						GitRemote:      command.String("git-remote"),
						RepositoryURL:  command.String("repository-url"),
					},
				}, logger)
				if err != nil {
					return err
				}

				group.Go(func() error {
					return worker.Run(ctx)
				})
			} else if err := broadcast.Relay(ctx, eventBus, hub, logger); err != nil {
				return err
			}

			if err := group.Wait(); err != nil {
				logger.ErrorContext(ctx, "API stopped with error", "error", err)

				return err
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

func splitList(value string) []string {
	var items []string

	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}

	return items
}
