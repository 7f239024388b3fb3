package models

import "time"

// Totals counts completed nodes against all nodes of an execution.
type Totals struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Artifacts collects the outputs a run produced.
type Artifacts struct {
	RepoPath      string   `json:"repo_path,omitempty"`
	Logs          []string `json:"logs,omitempty"`
	ModifiedFiles []string `json:"modified_files,omitempty"`
}

func (a *Artifacts) IsEmpty() bool {
	return a == nil || (a.RepoPath == "" && len(a.Logs) == 0 && len(a.ModifiedFiles) == 0)
}

// StatusProjection is the read-only canonical view derived from a TaskContext.
type StatusProjection struct {
	ExecutionID string          `json:"execution_id"`
	ProjectID   string          `json:"project_id"`
	Status      ExecutionStatus `json:"status"`
	Progress    float64         `json:"progress"`
	CurrentTask *string         `json:"current_task"`
	Totals      Totals          `json:"totals"`
	CustomerID  *string         `json:"customer_id,omitempty"`
	Branch      *string         `json:"branch,omitempty"`
	Artifacts   *Artifacts      `json:"artifacts,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	UpdatedAt   *time.Time      `json:"updated_at,omitempty"`
}

// Completed returns a copy of the projection in its fully satisfied completed
// form. Totals keep the counted node total, so a run without nodes stays 0/0.
func (p StatusProjection) Completed(now time.Time) StatusProjection {
	completed := p
	completed.Status = StatusCompleted
	completed.Progress = 100.0
	completed.Totals.Completed = completed.Totals.Total

	updated := now.UTC()
	completed.UpdatedAt = &updated

	return completed
}
