package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/devflow/pkg/models"
	"github.com/dukex/devflow/pkg/persistence"
	"github.com/lib/pq"
)

const eventColumns = `id, source_event_id, fingerprint, project_id, correlation_id,
	workflow_type, data, task_context, created_at, updated_at`

// EventRepository handles event-related database operations.
type EventRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *sql.DB, logger *slog.Logger) *EventRepository {
	return &EventRepository{db: db, logger: logger}
}

var _ persistence.EventStore = (*EventRepository)(nil)

// SaveEvent inserts a new event row.
func (er *EventRepository) SaveEvent(ctx context.Context, event *models.Event) error {
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}

	event.UpdatedAt = now

	data := event.Data
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := er.db.ExecContext(ctx, query,
		event.ID,
		event.SourceEventID,
		event.Fingerprint,
		nullString(event.ProjectID),
		event.CorrelationID,
		event.WorkflowType,
		[]byte(data),
		nullJSON(event.TaskContext),
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return persistence.NewEventError("SaveEvent", event.ID, persistence.ErrEventAlreadyExists)
		}

		return persistence.NewEventError("SaveEvent", event.ID, err)
	}

	return nil
}

// EventByID retrieves an event by its ID.
func (er *EventRepository) EventByID(ctx context.Context, id string) (*models.Event, error) {
	row := er.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)

	event, err := scanEvent(row)
	if err != nil {
		return nil, persistence.NewEventError("EventByID", id, notFound(err))
	}

	return event, nil
}

// UpdateTaskContext overwrites the stored task context.
func (er *EventRepository) UpdateTaskContext(ctx context.Context, id string, taskContext json.RawMessage) error {
	result, err := er.db.ExecContext(ctx,
		`UPDATE events SET task_context = $2, updated_at = NOW() WHERE id = $1`,
		id, nullJSON(taskContext),
	)
	if err != nil {
		return persistence.NewEventError("UpdateTaskContext", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewEventError("UpdateTaskContext", id, err)
	}

	if affected == 0 {
		return persistence.NewEventError("UpdateTaskContext", id, persistence.ErrEventNotFound)
	}

	return nil
}

// ExecutionBySourceEventID returns the execution ID of the first event seen with this source ID.
func (er *EventRepository) ExecutionBySourceEventID(ctx context.Context, sourceEventID string) (string, error) {
	var id string

	err := er.db.QueryRowContext(ctx,
		`SELECT id FROM events WHERE source_event_id = $1 ORDER BY created_at ASC LIMIT 1`,
		sourceEventID,
	).Scan(&id)
	if err != nil {
		return "", persistence.NewEventError("ExecutionBySourceEventID", sourceEventID, notFound(err))
	}

	return id, nil
}

// ExecutionByFingerprint returns the execution ID of the first event seen with this fingerprint.
func (er *EventRepository) ExecutionByFingerprint(ctx context.Context, fingerprint string) (string, error) {
	var id string

	err := er.db.QueryRowContext(ctx,
		`SELECT id FROM events WHERE fingerprint = $1 ORDER BY created_at ASC LIMIT 1`,
		fingerprint,
	).Scan(&id)
	if err != nil {
		return "", persistence.NewEventError("ExecutionByFingerprint", fingerprint, notFound(err))
	}

	return id, nil
}

// LatestEventByProject returns the most recently created event for a project.
func (er *EventRepository) LatestEventByProject(ctx context.Context, projectID string) (*models.Event, error) {
	row := er.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE project_id = $1 ORDER BY created_at DESC LIMIT 1`,
		projectID,
	)

	event, err := scanEvent(row)
	if err != nil {
		return nil, persistence.NewProjectError("LatestEventByProject", projectID, notFound(err))
	}

	return event, nil
}

// UnprocessedEvents lists events without a task context, oldest first.
func (er *EventRepository) UnprocessedEvents(ctx context.Context, olderThan time.Time, limit int) ([]*models.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := er.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		WHERE task_context IS NULL AND created_at < $1
		ORDER BY created_at ASC LIMIT $2`,
		olderThan, limit,
	)
	if err != nil {
		return nil, persistence.NewEventError("UnprocessedEvents", "", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			er.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	events := make([]*models.Event, 0)

	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

func scanEvent(scanner interface {
	Scan(dest ...any) error
}) (*models.Event, error) {
	var (
		event       models.Event
		projectID   sql.NullString
		data        []byte
		taskContext []byte
	)

	err := scanner.Scan(
		&event.ID,
		&event.SourceEventID,
		&event.Fingerprint,
		&projectID,
		&event.CorrelationID,
		&event.WorkflowType,
		&data,
		&taskContext,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	event.ProjectID = projectID.String
	event.Data = json.RawMessage(data)

	if len(taskContext) > 0 {
		event.TaskContext = json.RawMessage(taskContext)
	}

	return &event, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.ErrEventNotFound
	}

	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	return []byte(raw)
}
