// Package projection derives a canonical StatusProjection from untrusted task context data.
package projection

import (
	"encoding/json"

	"github.com/dukex/devflow/pkg/models"
)

// fieldAliases is consulted once per logical field; the first present alias wins.
var fieldAliases = map[string][]string{
	models.MetaTaskID:        {"task_id", "taskId"},
	"project_id":             {"project_id", "projectId"},
	models.MetaBranch:        {"branch"},
	models.MetaRepoPath:      {"repo_path", "repoPath"},
	models.MetaModifiedFiles: {"modified_files", "modifiedFiles"},
	models.MetaLogs:          {"logs"},
	models.MetaStartedAt:     {"started_at", "startedAt"},
	models.MetaUpdatedAt:     {"updated_at", "updatedAt"},
	models.MetaStatus:        {"status"},
}

// NodeSignal is the status one node contributes, if any.
type NodeSignal struct {
	Name      string
	Status    string
	HasStatus bool
}

// ParsedContext is the validated view of a task context read back from storage.
// Fallback is set when the input was not a mapping at all.
type ParsedContext struct {
	Fallback bool
	Nodes    []NodeSignal
	Metadata map[string]any
	Event    map[string]any
}

// Lookup resolves a logical metadata field through the alias table.
func (p ParsedContext) Lookup(field string) (any, bool) {
	aliases, ok := fieldAliases[field]
	if !ok {
		aliases = []string{field}
	}

	for _, alias := range aliases {
		if value, ok := p.Metadata[alias]; ok && value != nil {
			return value, true
		}
	}

	return nil, false
}

// LookupString resolves a field that must be a non-empty string.
func (p ParsedContext) LookupString(field string) (string, bool) {
	value, ok := p.Lookup(field)
	if !ok {
		return "", false
	}

	s, ok := value.(string)
	if !ok || s == "" {
		return "", false
	}

	return s, true
}

// ParseTaskContext coerces any input into a ParsedContext. It never fails.
func ParseTaskContext(raw any) ParsedContext {
	switch value := raw.(type) {
	case nil:
		return fallback()
	case *models.TaskContext:
		if value == nil {
			return fallback()
		}

		return fromTaskContext(*value)
	case models.TaskContext:
		return fromTaskContext(value)
	case json.RawMessage:
		return parseJSON(value)
	case []byte:
		return parseJSON(value)
	case map[string]any:
		return fromMap(value)
	default:
		return fallback()
	}
}

func fallback() ParsedContext {
	return ParsedContext{Fallback: true, Metadata: map[string]any{}, Event: map[string]any{}}
}

func parseJSON(data []byte) ParsedContext {
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fallback()
	}

	mapping, ok := decoded.(map[string]any)
	if !ok {
		return fallback()
	}

	return fromMap(mapping)
}

func fromMap(raw map[string]any) ParsedContext {
	parsed := ParsedContext{Metadata: map[string]any{}, Event: map[string]any{}}

	if metadata, ok := raw["metadata"].(map[string]any); ok {
		parsed.Metadata = metadata
	}

	if event, ok := raw["event"].(map[string]any); ok {
		parsed.Event = event
	}

	if nodes, ok := raw["nodes"].(map[string]any); ok {
		parsed.Nodes = make([]NodeSignal, 0, len(nodes))
		for name, node := range nodes {
			parsed.Nodes = append(parsed.Nodes, nodeSignal(name, node))
		}
	}

	return parsed
}

func fromTaskContext(tc models.TaskContext) ParsedContext {
	parsed := ParsedContext{Metadata: tc.Metadata, Event: map[string]any{}}
	if parsed.Metadata == nil {
		parsed.Metadata = map[string]any{}
	}

	if tc.Event.ProjectID != "" {
		parsed.Event["project_id"] = tc.Event.ProjectID
	}

	for _, name := range tc.Nodes.Names() {
		result, _ := tc.Nodes.Get(name)
		parsed.Nodes = append(parsed.Nodes, nodeSignal(name, map[string]any(result)))
	}

	return parsed
}

// nodeSignal reads status, then event_data.status. Non-mapping nodes carry no signal.
func nodeSignal(name string, node any) NodeSignal {
	signal := NodeSignal{Name: name}

	mapping, ok := node.(map[string]any)
	if !ok {
		return signal
	}

	if status, ok := mapping["status"].(string); ok {
		signal.Status = status
		signal.HasStatus = true

		return signal
	}

	if eventData, ok := mapping["event_data"].(map[string]any); ok {
		if status, ok := eventData["status"].(string); ok {
			signal.Status = status
			signal.HasStatus = true
		}
	}

	return signal
}
