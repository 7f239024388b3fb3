package models

import "time"

// MaxAttemptsCeiling is the hard limit on attempts for one external operation.
const MaxAttemptsCeiling = 2

// RetryAttempt records one attempt of an external operation.
type RetryAttempt struct {
	Attempt      int       `json:"attempt"`
	StartedAt    time.Time `json:"started_at"`
	DurationMs   int64     `json:"duration_ms"`
	Success      bool      `json:"success"`
	ErrorType    string    `json:"error_type,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ExitCode     int       `json:"exit_code"`
	ContainerID  string    `json:"container_id,omitempty"`
}

// Timing breaks down where time went in the final attempt.
type Timing struct {
	AcquireMs int64 `json:"acquire_ms"`
	ExecMs    int64 `json:"exec_ms"`
	CleanupMs int64 `json:"cleanup_ms"`
	TotalMs   int64 `json:"total_ms"`
}

// AiderExecutionResult is the result of one external tool invocation.
// Top-level fields describe the final attempt; RetryAttempts holds the attempts before it.
type AiderExecutionResult struct {
	Operation     string         `json:"operation"`
	Success       bool           `json:"success"`
	ExitCode      int            `json:"exit_code"`
	Stdout        string         `json:"stdout"`
	Stderr        string         `json:"stderr"`
	ContainerID   string         `json:"container_id,omitempty"`
	ErrorType     string         `json:"error_type,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	Timing        Timing         `json:"timing"`
	AttemptCount  int            `json:"attempt_count"`
	MaxAttempts   int            `json:"max_attempts"`
	RetryAttempts []RetryAttempt `json:"retry_attempts"`
	FinalAttempt  bool           `json:"final_attempt"`
}

// History returns every attempt including the final one.
func (r *AiderExecutionResult) History() []RetryAttempt {
	history := append([]RetryAttempt(nil), r.RetryAttempts...)

	return append(history, RetryAttempt{
		Attempt:      r.AttemptCount,
		StartedAt:    r.StartedAt,
		DurationMs:   r.Timing.TotalMs,
		Success:      r.Success,
		ErrorType:    r.ErrorType,
		ErrorMessage: r.ErrorMessage,
		ExitCode:     r.ExitCode,
		ContainerID:  r.ContainerID,
	})
}
