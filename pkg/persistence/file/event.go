package file

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dukex/devflow/pkg/models"
	"github.com/dukex/devflow/pkg/persistence"
)

func (er *EventRepository) dir() string {
	return filepath.Join(er.root, "events")
}

// validateEventID validates that the event ID is safe for file operations.
func validateEventID(eventID string) error {
	if eventID == "" {
		return fmt.Errorf("%w: cannot be empty", persistence.ErrInvalidEventID)
	}

	if strings.Contains(eventID, "..") || strings.Contains(eventID, "/") || strings.Contains(eventID, "\\") {
		return fmt.Errorf("%w: contains invalid characters", persistence.ErrInvalidEventID)
	}

	return nil
}

// SaveEvent writes a new event. Saving an ID or a source event id that
// already exists fails with ErrEventAlreadyExists.
func (er *EventRepository) SaveEvent(_ context.Context, event *models.Event) error {
	if err := validateEventID(event.ID); err != nil {
		return persistence.NewEventError("SaveEvent", event.ID, err)
	}

	er.mu.Lock()
	defer er.mu.Unlock()

	if _, err := os.Stat(er.path(event.ID)); err == nil {
		return persistence.NewEventError("SaveEvent", event.ID, persistence.ErrEventAlreadyExists)
	}

	stored, err := er.scan()
	if err != nil {
		return persistence.NewEventError("SaveEvent", event.ID, err)
	}

	for _, existing := range stored {
		if existing.SourceEventID == event.SourceEventID {
			return persistence.NewEventError("SaveEvent", event.ID, persistence.ErrEventAlreadyExists)
		}
	}

	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}

	event.UpdatedAt = now

	return er.write(event)
}

// EventByID retrieves an event by its ID.
func (er *EventRepository) EventByID(_ context.Context, id string) (*models.Event, error) {
	if err := validateEventID(id); err != nil {
		return nil, persistence.NewEventError("EventByID", id, err)
	}

	er.mu.RLock()
	defer er.mu.RUnlock()

	event, err := er.read(id)
	if err != nil {
		return nil, persistence.NewEventError("EventByID", id, err)
	}

	return event, nil
}

// UpdateTaskContext replaces the stored task context for an event.
func (er *EventRepository) UpdateTaskContext(_ context.Context, id string, taskContext json.RawMessage) error {
	if err := validateEventID(id); err != nil {
		return persistence.NewEventError("UpdateTaskContext", id, err)
	}

	er.mu.Lock()
	defer er.mu.Unlock()

	event, err := er.read(id)
	if err != nil {
		return persistence.NewEventError("UpdateTaskContext", id, err)
	}

	event.TaskContext = taskContext
	event.UpdatedAt = time.Now().UTC()

	return er.write(event)
}

// ExecutionBySourceEventID returns the execution ID of the event with the given source ID.
func (er *EventRepository) ExecutionBySourceEventID(_ context.Context, sourceEventID string) (string, error) {
	event, err := er.find(func(e *models.Event) bool { return e.SourceEventID == sourceEventID })
	if err != nil {
		return "", persistence.NewEventError("ExecutionBySourceEventID", sourceEventID, err)
	}

	return event.ID, nil
}

// ExecutionByFingerprint returns the execution ID of the event with the given fingerprint.
func (er *EventRepository) ExecutionByFingerprint(_ context.Context, fingerprint string) (string, error) {
	event, err := er.find(func(e *models.Event) bool { return e.Fingerprint == fingerprint })
	if err != nil {
		return "", persistence.NewEventError("ExecutionByFingerprint", fingerprint, err)
	}

	return event.ID, nil
}

// LatestEventByProject returns the most recently created event for a project.
func (er *EventRepository) LatestEventByProject(_ context.Context, projectID string) (*models.Event, error) {
	events, err := er.all()
	if err != nil {
		return nil, persistence.NewProjectError("LatestEventByProject", projectID, err)
	}

	var latest *models.Event

	for _, event := range events {
		if event.ProjectID != projectID {
			continue
		}

		if latest == nil || event.CreatedAt.After(latest.CreatedAt) {
			latest = event
		}
	}

	if latest == nil {
		return nil, persistence.NewProjectError("LatestEventByProject", projectID, persistence.ErrEventNotFound)
	}

	return latest, nil
}

// UnprocessedEvents lists events still missing a task context, oldest first.
func (er *EventRepository) UnprocessedEvents(_ context.Context, olderThan time.Time, limit int) ([]*models.Event, error) {
	events, err := er.all()
	if err != nil {
		return nil, persistence.NewEventError("UnprocessedEvents", "", err)
	}

	pending := make([]*models.Event, 0)

	for _, event := range events {
		if !event.Processed() && event.CreatedAt.Before(olderThan) {
			pending = append(pending, event)
		}
	}

	slices.SortFunc(pending, func(a, b *models.Event) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	return pending, nil
}

func (er *EventRepository) path(id string) string {
	return filepath.Join(er.dir(), id+".json")
}

func (er *EventRepository) read(id string) (*models.Event, error) {
	data, err := os.ReadFile(er.path(id)) // #nosec G304 -- id is validated before use
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrEventNotFound
		}

		return nil, fmt.Errorf("failed to read event: %w", err)
	}

	var event models.Event

	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return &event, nil
}

func (er *EventRepository) write(event *models.Event) error {
	if err := os.MkdirAll(er.dir(), 0750); err != nil {
		return fmt.Errorf("failed to create events directory: %w", err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return persistence.NewEventError("write", event.ID, fmt.Errorf("failed to marshal event: %w", err))
	}

	tmp := er.path(event.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return persistence.NewEventError("write", event.ID, err)
	}

	if err := os.Rename(tmp, er.path(event.ID)); err != nil {
		return persistence.NewEventError("write", event.ID, err)
	}

	return nil
}

func (er *EventRepository) find(match func(*models.Event) bool) (*models.Event, error) {
	events, err := er.all()
	if err != nil {
		return nil, err
	}

	// Oldest match wins.
	slices.SortFunc(events, func(a, b *models.Event) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), strings.Compare(a.ID, b.ID))
	})

	for _, event := range events {
		if match(event) {
			return event, nil
		}
	}

	return nil, persistence.ErrEventNotFound
}

func (er *EventRepository) all() ([]*models.Event, error) {
	er.mu.RLock()
	defer er.mu.RUnlock()

	return er.scan()
}

// scan reads every stored event. Callers hold er.mu.
func (er *EventRepository) scan() ([]*models.Event, error) {
	entries, err := os.ReadDir(er.dir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*models.Event{}, nil
		}

		return nil, fmt.Errorf("failed to read events directory: %w", err)
	}

	events := make([]*models.Event, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		event, err := er.read(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			return nil, err
		}

		events = append(events, event)
	}

	return events, nil
}
