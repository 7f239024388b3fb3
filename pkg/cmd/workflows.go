// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/dukex/devflow/pkg/containers"
	"github.com/dukex/devflow/pkg/executor"
	"github.com/dukex/devflow/pkg/idempotency"
	"github.com/dukex/devflow/pkg/lease"
	"github.com/dukex/devflow/pkg/nodes"
	"github.com/dukex/devflow/pkg/nodes/gitpush"
	"github.com/dukex/devflow/pkg/nodes/prep"
	"github.com/dukex/devflow/pkg/workflow"
	"github.com/redis/go-redis/v9"
)

// WorkflowConfig configures the built-in workflows.
type WorkflowConfig struct {
	WorkspaceRoot  string
	ContainerImage string
	GitRemote      string
	// RepositoryURL is a template containing {project}, e.g. git@github.com:{project}.git.
	RepositoryURL string
}

// NewWorkflowRegistry registers every built-in workflow type.
func NewWorkflowRegistry(logger *slog.Logger, config WorkflowConfig, completer gitpush.Completer) *workflow.Registry {
	registry := workflow.NewRegistry(logger)

	runner := executor.New(containers.NewDockerProvider(logger), logger)

	registry.Register(nodes.DevTeamAutomation(nodes.DevTeamConfig{
		Runner:         runner,
		Completer:      completer,
		Checkout:       prep.NewGitCheckout(config.RepositoryURL),
		WorkspaceRoot:  config.WorkspaceRoot,
		ContainerImage: config.ContainerImage,
		GitRemote:      config.GitRemote,
	}))
	registry.Register(workflow.PlaceholderWorkflow())

	logger.Info("Workflows registered", "types", registry.Types())

	return registry
}

// NewIdempotencyGuard adds the redis cache when a client is configured.
func NewIdempotencyGuard(store idempotency.Lookup, client *redis.Client, logger *slog.Logger) *idempotency.Guard {
	if client == nil {
		return idempotency.NewGuard(store, logger)
	}

	return idempotency.NewGuard(store, logger,
		idempotency.WithCache(idempotency.NewRedisCache(client, idempotency.DefaultCacheTTL)))
}

// NewLocker prefers redis so leases hold across worker processes.
func NewLocker(client *redis.Client) lease.Locker {
	if client == nil {
		return lease.NewMemoryLocker()
	}

	return lease.NewRedisLocker(client)
}
