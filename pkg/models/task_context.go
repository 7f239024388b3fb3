package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Metadata keys shared between nodes and the status projection.
const (
	MetaCorrelationID = "correlationId"
	MetaStatus        = "status"
	MetaWorkflowType  = "workflow_type"
	MetaTaskID        = "task_id"
	MetaTaskTitle     = "task_title"
	MetaBranch        = "branch"
	MetaRepoPath      = "repo_path"
	MetaLogs          = "logs"
	MetaModifiedFiles = "modified_files"
	MetaStartedAt     = "started_at"
	MetaUpdatedAt     = "updated_at"
	MetaError         = "error"
)

// TaskDescriptor describes the unit of work carried by a DevTeam event.
type TaskDescriptor struct {
	ID          string   `json:"id"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Files       []string `json:"files,omitempty"`
}

// RequestEvent is the originating request payload as it is threaded through a workflow.
type RequestEvent struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	ProjectID string          `json:"project_id,omitempty"`
	Task      *TaskDescriptor `json:"task,omitempty"`
	Priority  string          `json:"priority,omitempty"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
	Data      map[string]any  `json:"data,omitempty"`
}

// IncomingCorrelationID returns the correlation id a producer attached, if any.
func (r RequestEvent) IncomingCorrelationID() string {
	for _, key := range []string{"correlation_id", "correlationId"} {
		if value, ok := r.Metadata[key].(string); ok && value != "" {
			return value
		}
	}

	return ""
}

// CorrelationIDFor derives the correlation id used when the producer omitted one.
func CorrelationIDFor(eventID string) string {
	return "corr_" + eventID
}

// TaskContext is the mutable state record threaded through one workflow run.
type TaskContext struct {
	Event    RequestEvent   `json:"event"`
	Nodes    NodeResults    `json:"nodes"`
	Metadata map[string]any `json:"metadata"`
}

// NewTaskContext creates a fresh context for a run, resolving the correlation id.
func NewTaskContext(event RequestEvent, workflowType string, now time.Time) *TaskContext {
	correlationID := event.IncomingCorrelationID()
	if correlationID == "" {
		correlationID = CorrelationIDFor(event.ID)
	}

	stamp := now.UTC().Format(time.RFC3339Nano)

	return &TaskContext{
		Event: event,
		Metadata: map[string]any{
			MetaCorrelationID: correlationID,
			MetaWorkflowType:  workflowType,
			MetaStartedAt:     stamp,
			MetaUpdatedAt:     stamp,
		},
	}
}

func (tc *TaskContext) CorrelationID() string {
	id, _ := tc.Metadata[MetaCorrelationID].(string)

	return id
}

func (tc *TaskContext) SetMeta(key string, value any) {
	if tc.Metadata == nil {
		tc.Metadata = make(map[string]any)
	}

	tc.Metadata[key] = value
}

func (tc *TaskContext) MetaString(key string) string {
	value, _ := tc.Metadata[key].(string)

	return value
}

// Touch refreshes the updated_at metadata field.
func (tc *TaskContext) Touch(now time.Time) {
	tc.SetMeta(MetaUpdatedAt, now.UTC().Format(time.RFC3339Nano))
}

// AppendLog appends a log line to the metadata log artifact.
func (tc *TaskContext) AppendLog(line string) {
	var logs []any

	switch existing := tc.Metadata[MetaLogs].(type) {
	case []any:
		logs = existing
	case []string:
		for _, l := range existing {
			logs = append(logs, l)
		}
	}

	tc.SetMeta(MetaLogs, append(logs, line))
}

func (tc *TaskContext) Marshal() (json.RawMessage, error) {
	data, err := json.Marshal(tc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task context: %w", err)
	}

	return data, nil
}

// NodeResult is the free-form result a node records under its own name.
type NodeResult map[string]any

// NodeResults keeps node results in execution order and serializes as a JSON object
// whose key order matches insertion order.
type NodeResults struct {
	order  []string
	values map[string]NodeResult
}

// Set records a node result. Re-recording an existing node keeps its original position.
func (n *NodeResults) Set(name string, result NodeResult) {
	if n.values == nil {
		n.values = make(map[string]NodeResult)
	}

	if _, exists := n.values[name]; !exists {
		n.order = append(n.order, name)
	}

	n.values[name] = result
}

func (n *NodeResults) Get(name string) (NodeResult, bool) {
	result, ok := n.values[name]

	return result, ok
}

func (n *NodeResults) Names() []string {
	return append([]string(nil), n.order...)
}

func (n *NodeResults) Len() int {
	return len(n.order)
}

func (n NodeResults) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, name := range n.order {
		if i > 0 {
			buf.WriteByte(',')
		}

		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}

		value, err := json.Marshal(n.values[name])
		if err != nil {
			return nil, fmt.Errorf("failed to marshal node %s: %w", name, err)
		}

		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

var errNodesNotObject = errors.New("nodes must be a JSON object")

func (n *NodeResults) UnmarshalJSON(data []byte) error {
	*n = NodeResults{}

	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(data))

	token, err := decoder.Token()
	if err != nil {
		return err
	}

	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return errNodesNotObject
	}

	for decoder.More() {
		token, err := decoder.Token()
		if err != nil {
			return err
		}

		name, _ := token.(string)

		var result NodeResult
		if err := decoder.Decode(&result); err != nil {
			return fmt.Errorf("failed to decode node %s: %w", name, err)
		}

		n.Set(name, result)
	}

	_, err = decoder.Token()

	return err
}
