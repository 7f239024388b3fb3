// Package models defines the domain models shared by the ingestion, worker and status paths.
package models

// ExecutionStatus is the canonical status of a workflow execution.
type ExecutionStatus string

const (
	StatusIdle         ExecutionStatus = "idle"
	StatusInitializing ExecutionStatus = "initializing"
	StatusRunning      ExecutionStatus = "running"
	StatusPaused       ExecutionStatus = "paused"
	StatusStopping     ExecutionStatus = "stopping"
	StatusStopped      ExecutionStatus = "stopped"
	StatusCompleted    ExecutionStatus = "completed"
	StatusError        ExecutionStatus = "error"
)

// KnownStatuses lists every ExecutionStatus in lifecycle order.
var KnownStatuses = []ExecutionStatus{
	StatusIdle,
	StatusInitializing,
	StatusRunning,
	StatusPaused,
	StatusStopping,
	StatusStopped,
	StatusCompleted,
	StatusError,
}

func (s ExecutionStatus) IsValid() bool {
	for _, known := range KnownStatuses {
		if s == known {
			return true
		}
	}

	return false
}

func (s ExecutionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Node-level status values written by workflow nodes.
const (
	NodeStatusRunning   = "running"
	NodeStatusCompleted = "completed"
	NodeStatusError     = "error"
	NodeStatusIdle      = "idle"
)

// MetaStatusPrepared is written by the PREP node once the workspace is ready.
const MetaStatusPrepared = "prepared"
