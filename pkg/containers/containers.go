// Package containers abstracts the disposable containers that external build
// tools run in.
package containers

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrAcquire = errors.New("container could not be acquired")
	ErrExec    = errors.New("command could not be executed")
)

// Spec describes the container to start for one attempt.
type Spec struct {
	Image   string
	WorkDir string
	Env     map[string]string
	// CopyDir is a host directory copied to WorkDir before the command runs.
	CopyDir string
}

// ExecResult is the outcome of a command that ran to completion.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

type Container interface {
	ID() string
	Exec(ctx context.Context, cmd []string) (ExecResult, error)
	Terminate(ctx context.Context) error
}

type Provider interface {
	Acquire(ctx context.Context, spec Spec) (Container, error)
}

// ContainerError reports a runtime failure, as opposed to a command exiting non-zero.
type ContainerError struct {
	Op          string
	ContainerID string
	Err         error
}

func (e *ContainerError) Error() string {
	if e.ContainerID == "" {
		return fmt.Sprintf("container %s failed: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("container %s failed for %s: %v", e.Op, e.ContainerID, e.Err)
}

func (e *ContainerError) Unwrap() error {
	return e.Err
}

func IsContainerError(err error) bool {
	var containerErr *ContainerError

	return errors.As(err, &containerErr)
}
