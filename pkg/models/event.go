package models

import (
	"encoding/json"
	"time"
)

// Workflow type tags stored on events.
const (
	WorkflowTypeDevTeamAutomation = "DEVTEAM_AUTOMATION"
	WorkflowTypeDefault           = "DEFAULT"
)

// Event is a persisted inbound event and the unit of durable state between ingestion and processing.
type Event struct {
	ID            string          `json:"id"`
	SourceEventID string          `json:"source_event_id"`
	Fingerprint   string          `json:"fingerprint"`
	ProjectID     string          `json:"project_id,omitempty"`
	CorrelationID string          `json:"correlation_id"`
	WorkflowType  string          `json:"workflow_type"`
	Data          json.RawMessage `json:"data"`
	TaskContext   json.RawMessage `json:"task_context,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (e *Event) Processed() bool {
	return len(e.TaskContext) > 0 && string(e.TaskContext) != "null"
}

// Acceptance is returned to ingestion callers.
type Acceptance struct {
	ExecutionID   string  `json:"execution_id"`
	EventID       string  `json:"event_id"`
	CorrelationID string  `json:"correlation_id"`
	TaskID        *string `json:"task_id"`
	Duplicate     bool    `json:"duplicate"`
}
