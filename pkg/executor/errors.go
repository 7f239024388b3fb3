package executor

import (
	"errors"
	"fmt"

	"github.com/dukex/devflow/pkg/models"
)

var (
	ErrInvalidMaxAttempts = errors.New("max attempts must be between 1 and 2")
	ErrEmptyCommand       = errors.New("operation command is required")
	ErrNonZeroExit        = errors.New("command exited with non-zero status")
	ErrAttemptTimeout     = errors.New("attempt timed out")
)

// Error type labels recorded on attempts.
const (
	ErrorTypeContainer = "ContainerError"
	ErrorTypeExitCode  = "NonZeroExit"
	ErrorTypeTimeout   = "Timeout"
)

// ExecutionError is returned once every attempt has failed.
type ExecutionError struct {
	Operation string
	ExitCode  int
	Stderr    string
	Attempts  []models.RetryAttempt
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s) with exit code %d: %v",
		e.Operation, len(e.Attempts), e.ExitCode, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func IsExecutionError(err error) bool {
	var execErr *ExecutionError

	return errors.As(err, &execErr)
}
