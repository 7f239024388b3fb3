package projection

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/devflow/pkg/models"
)

// Engine projects task contexts into StatusProjections. It is safe for concurrent use.
type Engine struct {
	logger *slog.Logger
}

func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{logger: logger.With("module", "status_projection")}
}

// Project derives a StatusProjection. It never panics and never returns an invalid status.
func Project(raw any, executionID, projectID string) models.StatusProjection {
	return NewEngine(slog.Default()).Project(raw, executionID, projectID)
}

func (e *Engine) Project(raw any, executionID, projectID string) (projection models.StatusProjection) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("Task context transformation failed, using defaults",
				"execution_id", executionID,
				"project_id", projectID,
				"panic", fmt.Sprint(r))

			projection = defaultProjection(executionID, projectID)
		}
	}()

	return e.project(ParseTaskContext(raw), executionID, projectID)
}

func defaultProjection(executionID, projectID string) models.StatusProjection {
	projection := models.StatusProjection{
		ExecutionID: executionID,
		ProjectID:   projectID,
		Status:      models.StatusIdle,
	}

	if customerID := models.CustomerIDFromProjectID(projectID); customerID != "" {
		projection.CustomerID = &customerID
	}

	return projection
}

func (e *Engine) project(parsed ParsedContext, executionID, projectID string) models.StatusProjection {
	if projectID == "" {
		projectID, _ = parsed.LookupString("project_id")
		if projectID == "" {
			projectID, _ = parsed.Event["project_id"].(string)
		}
	}

	projection := defaultProjection(executionID, projectID)
	if parsed.Fallback {
		return projection
	}

	var completed, running, errored int

	for _, node := range parsed.Nodes {
		if !node.HasStatus {
			continue
		}

		switch node.Status {
		case models.NodeStatusCompleted:
			completed++
		case models.NodeStatusRunning:
			running++
		case models.NodeStatusError:
			errored++
		}
	}

	total := len(parsed.Nodes)

	var derived models.ExecutionStatus

	switch {
	case errored > 0:
		derived = models.StatusError
	case total > 0 && completed == total:
		derived = models.StatusCompleted
	case running > 0 || completed > 0:
		derived = models.StatusRunning
	default:
		derived = e.metadataStatus(parsed, executionID)
	}

	projection.Status = e.coerce(derived, executionID)
	projection.Totals = models.Totals{Completed: completed, Total: total}

	if total > 0 {
		projection.Progress = float64(completed) / float64(total) * 100.0
	}

	if taskID, ok := parsed.LookupString(models.MetaTaskID); ok {
		projection.CurrentTask = &taskID
	}

	if branch, ok := parsed.LookupString(models.MetaBranch); ok {
		projection.Branch = &branch
	}

	projection.Artifacts = artifacts(parsed)
	projection.StartedAt = timestamp(parsed, models.MetaStartedAt)
	projection.UpdatedAt = timestamp(parsed, models.MetaUpdatedAt)

	return projection
}

// metadataStatus is consulted only when no node produced a signal.
func (e *Engine) metadataStatus(parsed ParsedContext, executionID string) models.ExecutionStatus {
	value, ok := parsed.LookupString(models.MetaStatus)
	if !ok {
		return models.StatusIdle
	}

	if value == models.MetaStatusPrepared {
		return models.StatusInitializing
	}

	return e.coerce(models.ExecutionStatus(value), executionID)
}

func (e *Engine) coerce(status models.ExecutionStatus, executionID string) models.ExecutionStatus {
	if status.IsValid() {
		return status
	}

	e.logger.Warn("Unknown execution status, falling back to idle",
		"execution_id", executionID,
		"status", string(status))

	return models.StatusIdle
}

func artifacts(parsed ParsedContext) *models.Artifacts {
	result := &models.Artifacts{}

	if repoPath, ok := parsed.LookupString(models.MetaRepoPath); ok {
		result.RepoPath = repoPath
	}

	if value, ok := parsed.Lookup(models.MetaLogs); ok {
		result.Logs = stringList(value)
	}

	if value, ok := parsed.Lookup(models.MetaModifiedFiles); ok {
		result.ModifiedFiles = stringList(value)
	}

	if result.IsEmpty() {
		return nil
	}

	return result
}

func stringList(value any) []string {
	switch items := value.(type) {
	case []string:
		return append([]string(nil), items...)
	case []any:
		out := make([]string, 0, len(items))
		for _, item := range items {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}

		if len(out) == 0 {
			return nil
		}

		return out
	default:
		return nil
	}
}

func timestamp(parsed ParsedContext, field string) *time.Time {
	value, ok := parsed.LookupString(field)
	if !ok {
		return nil
	}

	parsedTime, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil
	}

	parsedTime = parsedTime.UTC()

	return &parsedTime
}
