package containers

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/docker/docker/pkg/stdcopy"
	"github.com/testcontainers/testcontainers-go"
	tcexec "github.com/testcontainers/testcontainers-go/exec"
)

// DockerProvider starts one idle container per Acquire through testcontainers.
type DockerProvider struct {
	logger *slog.Logger
}

func NewDockerProvider(logger *slog.Logger) *DockerProvider {
	return &DockerProvider{logger: logger.With("module", "containers")}
}

func (p *DockerProvider) Acquire(ctx context.Context, spec Spec) (Container, error) {
	request := testcontainers.ContainerRequest{
		Image: spec.Image,
		Cmd:   []string{"sleep", "infinity"},
		Env:   spec.Env,
	}

	if spec.CopyDir != "" {
		request.Files = []testcontainers.ContainerFile{{
			HostFilePath:      spec.CopyDir,
			ContainerFilePath: spec.WorkDir,
			FileMode:          0o755,
		}}
	}

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: request,
		Started:          true,
	})
	if err != nil {
		if ctr != nil {
			_ = ctr.Terminate(context.WithoutCancel(ctx))
		}

		return nil, &ContainerError{Op: "acquire", Err: fmt.Errorf("%w: %w", ErrAcquire, err)}
	}

	p.logger.DebugContext(ctx, "Container started", "container_id", ctr.GetContainerID(), "image", spec.Image)

	return &dockerContainer{container: ctr, workDir: spec.WorkDir}, nil
}

type dockerContainer struct {
	container testcontainers.Container
	workDir   string
}

func (c *dockerContainer) ID() string {
	return c.container.GetContainerID()
}

func (c *dockerContainer) Exec(ctx context.Context, cmd []string) (ExecResult, error) {
	opts := make([]tcexec.ProcessOption, 0, 1)
	if c.workDir != "" {
		opts = append(opts, tcexec.WithWorkingDir(c.workDir))
	}

	exitCode, reader, err := c.container.Exec(ctx, cmd, opts...)
	if err != nil {
		return ExecResult{}, &ContainerError{Op: "exec", ContainerID: c.ID(), Err: fmt.Errorf("%w: %w", ErrExec, err)}
	}

	var stdout, stderr bytes.Buffer

	if _, err := stdcopy.StdCopy(&stdout, &stderr, reader); err != nil {
		return ExecResult{}, &ContainerError{Op: "read output", ContainerID: c.ID(), Err: err}
	}

	return ExecResult{
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

func (c *dockerContainer) Terminate(ctx context.Context) error {
	if err := c.container.Terminate(ctx); err != nil {
		return &ContainerError{Op: "terminate", ContainerID: c.ID(), Err: err}
	}

	return nil
}
