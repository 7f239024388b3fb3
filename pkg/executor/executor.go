// Package executor runs external operations in fresh containers with a bounded retry.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/devflow/pkg/containers"
	"github.com/dukex/devflow/pkg/models"
	"github.com/sethvargo/go-retry"
)

const (
	DefaultRetryDelay = 500 * time.Millisecond
	DefaultTimeout    = 10 * time.Minute
)

// Operation is one named external command. Timeout bounds each attempt,
// acquire and exec included; zero means DefaultTimeout.
type Operation struct {
	Name          string
	Command       []string
	Container     containers.Spec
	CorrelationID string
	Timeout       time.Duration
}

type Executor struct {
	provider containers.Provider
	logger   *slog.Logger
	delay    time.Duration
	now      func() time.Time
}

type Option func(*Executor)

// WithRetryDelay sets the pause between a failed attempt and the next one.
func WithRetryDelay(delay time.Duration) Option {
	return func(e *Executor) {
		e.delay = delay
	}
}

func New(provider containers.Provider, logger *slog.Logger, opts ...Option) *Executor {
	executor := &Executor{
		provider: provider,
		logger:   logger.With("module", "executor"),
		delay:    DefaultRetryDelay,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(executor)
	}

	return executor
}

type attemptOutcome struct {
	record  models.RetryAttempt
	stdout  string
	stderr  string
	timing  models.Timing
	failure error
}

// Run executes op at most maxAttempts times, each in its own container.
// maxAttempts above models.MaxAttemptsCeiling is rejected before any attempt.
func (e *Executor) Run(ctx context.Context, op Operation, maxAttempts int) (*models.AiderExecutionResult, error) {
	if maxAttempts < 1 || maxAttempts > models.MaxAttemptsCeiling {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidMaxAttempts, maxAttempts)
	}

	if len(op.Command) == 0 {
		return nil, ErrEmptyCommand
	}

	if op.Name == "" {
		op.Name = strings.Join(op.Command, " ")
	}

	if op.Timeout <= 0 {
		op.Timeout = DefaultTimeout
	}

	logger := e.logger.With(
		"correlation_id", op.CorrelationID,
		"operation", op.Name,
		"max_attempts", maxAttempts,
		"timeout_seconds", op.Timeout.Seconds(),
	)

	outcomes := make([]attemptOutcome, 0, maxAttempts)
	// NewConstant rejects non-positive durations.
	backoff := retry.WithMaxRetries(uint64(maxAttempts-1), retry.NewConstant(max(e.delay, time.Millisecond)))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		outcome := e.attempt(ctx, op, len(outcomes)+1)
		outcomes = append(outcomes, outcome)

		if outcome.failure == nil {
			logger.InfoContext(ctx, "Attempt succeeded",
				"attempt", outcome.record.Attempt,
				"outcome", "success",
				"duration_ms", outcome.record.DurationMs,
				"container_id", outcome.record.ContainerID,
			)

			return nil
		}

		logger.WarnContext(ctx, "Attempt failed",
			"attempt", outcome.record.Attempt,
			"outcome", "failure",
			"duration_ms", outcome.record.DurationMs,
			"exit_code", outcome.record.ExitCode,
			"reason", outcome.record.ErrorMessage,
			"container_id", outcome.record.ContainerID,
		)

		if ctx.Err() != nil {
			return outcome.failure
		}

		return retry.RetryableError(outcome.failure)
	})

	if len(outcomes) == 0 {
		return nil, fmt.Errorf("%s did not start: %w", op.Name, err)
	}

	result := buildResult(op.Name, maxAttempts, outcomes)
	if err == nil {
		return result, nil
	}

	last := outcomes[len(outcomes)-1]

	return result, &ExecutionError{
		Operation: op.Name,
		ExitCode:  last.record.ExitCode,
		Stderr:    last.stderr,
		Attempts:  result.History(),
		Err:       last.failure,
	}
}

func (e *Executor) attempt(ctx context.Context, op Operation, number int) (outcome attemptOutcome) {
	started := e.now()
	outcome.record = models.RetryAttempt{Attempt: number, StartedAt: started.UTC(), ExitCode: -1}

	defer func() {
		outcome.timing.TotalMs = e.now().Sub(started).Milliseconds()
		outcome.record.DurationMs = outcome.timing.TotalMs
	}()

	attemptCtx, cancel := context.WithTimeout(ctx, op.Timeout)
	defer cancel()

	container, err := e.provider.Acquire(attemptCtx, op.Container)
	outcome.timing.AcquireMs = e.now().Sub(started).Milliseconds()

	if err != nil {
		outcome.fail(classify(attemptCtx, err), timedOut(attemptCtx, op.Timeout, err))

		return outcome
	}

	outcome.record.ContainerID = container.ID()

	defer e.release(ctx, container, &outcome)

	execStarted := e.now()
	result, err := container.Exec(attemptCtx, op.Command)
	outcome.timing.ExecMs = e.now().Sub(execStarted).Milliseconds()

	if err != nil {
		outcome.fail(classify(attemptCtx, err), timedOut(attemptCtx, op.Timeout, err))

		return outcome
	}

	outcome.stdout = result.Stdout
	outcome.stderr = result.Stderr
	outcome.record.ExitCode = result.ExitCode

	if result.ExitCode != 0 {
		outcome.fail(ErrorTypeExitCode, fmt.Errorf("%w: %d: %s", ErrNonZeroExit, result.ExitCode, tail(result.Stderr)))

		return outcome
	}

	outcome.record.Success = true

	return outcome
}

// release tears the container down. Failures are logged and never fail the attempt.
func (e *Executor) release(ctx context.Context, container containers.Container, outcome *attemptOutcome) {
	started := e.now()

	if err := container.Terminate(context.WithoutCancel(ctx)); err != nil {
		e.logger.WarnContext(ctx, "Container cleanup failed",
			"container_id", container.ID(),
			"attempt", outcome.record.Attempt,
			"error", err,
		)
	}

	outcome.timing.CleanupMs = e.now().Sub(started).Milliseconds()
}

func (o *attemptOutcome) fail(errorType string, err error) {
	o.failure = err
	o.record.Success = false
	o.record.ErrorType = errorType
	o.record.ErrorMessage = err.Error()
}

func classify(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}

	return ErrorTypeContainer
}

// timedOut marks err as an attempt timeout when the attempt deadline fired.
func timedOut(attemptCtx context.Context, timeout time.Duration, err error) error {
	if !errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return err
	}

	return fmt.Errorf("%w after %s: %w", ErrAttemptTimeout, timeout, err)
}

func buildResult(name string, maxAttempts int, outcomes []attemptOutcome) *models.AiderExecutionResult {
	last := outcomes[len(outcomes)-1]

	prior := make([]models.RetryAttempt, 0, len(outcomes)-1)
	for _, outcome := range outcomes[:len(outcomes)-1] {
		prior = append(prior, outcome.record)
	}

	return &models.AiderExecutionResult{
		Operation:     name,
		Success:       last.record.Success,
		ExitCode:      last.record.ExitCode,
		Stdout:        last.stdout,
		Stderr:        last.stderr,
		ContainerID:   last.record.ContainerID,
		ErrorType:     last.record.ErrorType,
		ErrorMessage:  last.record.ErrorMessage,
		StartedAt:     last.record.StartedAt,
		Timing:        last.timing,
		AttemptCount:  len(outcomes),
		MaxAttempts:   maxAttempts,
		RetryAttempts: prior,
		FinalAttempt:  true,
	}
}

func tail(output string) string {
	const limit = 512

	output = strings.TrimSpace(output)
	if len(output) > limit {
		return output[len(output)-limit:]
	}

	return output
}
