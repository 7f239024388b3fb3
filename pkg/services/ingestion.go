package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/devflow/pkg/eventbus"
	"github.com/dukex/devflow/pkg/events"
	"github.com/dukex/devflow/pkg/idempotency"
	"github.com/dukex/devflow/pkg/models"
	"github.com/dukex/devflow/pkg/otelhelper"
	"github.com/dukex/devflow/pkg/persistence"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Ingestion accepts inbound events: it deduplicates, persists and dispatches them.
type Ingestion struct {
	store        persistence.EventStore
	guard        *idempotency.Guard
	dispatcher   eventbus.Dispatcher
	logger       *slog.Logger
	tracer       trace.Tracer
	workflowType string
	now          func() time.Time
	newID        func() string
}

type IngestionOption func(*Ingestion)

func WithIngestionTracer(tracer trace.Tracer) IngestionOption {
	return func(i *Ingestion) {
		i.tracer = tracer
	}
}

// WithWorkflowType sets the workflow type stored on new events.
func WithWorkflowType(workflowType string) IngestionOption {
	return func(i *Ingestion) {
		i.workflowType = workflowType
	}
}

func NewIngestion(
	store persistence.EventStore,
	guard *idempotency.Guard,
	dispatcher eventbus.Dispatcher,
	logger *slog.Logger,
	opts ...IngestionOption,
) *Ingestion {
	ingestion := &Ingestion{
		store:        store,
		guard:        guard,
		dispatcher:   dispatcher,
		logger:       logger.With("module", "ingestion"),
		tracer:       otel.Tracer("devflow"),
		workflowType: models.WorkflowTypeDevTeamAutomation,
		now:          time.Now,
		newID:        uuid.NewString,
	}

	for _, opt := range opts {
		opt(ingestion)
	}

	return ingestion
}

// Ingest validates, deduplicates, persists and dispatches one raw event. A
// duplicate is not an error: the acceptance points at the prior execution.
// A dispatch failure leaves the event stored and returns a nil TaskID.
func (i *Ingestion) Ingest(ctx context.Context, raw []byte) (*models.Acceptance, error) {
	ctx, span := otelhelper.StartSpan(ctx, i.tracer, "ingestion.ingest")
	defer span.End()

	request, err := i.decode(raw)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(
		attribute.String(otelhelper.SourceEventIDKey, request.ID),
		attribute.String(otelhelper.ProjectIDKey, request.ProjectID),
	)

	logger := i.logger.With("source_event_id", request.ID, "project_id", request.ProjectID)

	check, err := i.guard.Check(ctx, raw, request.ID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, NewValidationError("ingest", "invalid_event", err.Error(), err)
	}

	correlationID := request.IncomingCorrelationID()

	if check.IsDuplicate() {
		logger.InfoContext(ctx, "Duplicate event ignored",
			"execution_id", check.ExecutionID,
			"matched_by", check.MatchedBy,
		)

		return duplicateAcceptance(request, check.ExecutionID), nil
	}

	event := &models.Event{
		ID:            i.newID(),
		SourceEventID: request.ID,
		Fingerprint:   check.Fingerprint,
		ProjectID:     request.ProjectID,
		WorkflowType:  i.workflowType,
		Data:          json.RawMessage(raw),
	}

	if correlationID == "" {
		correlationID = models.CorrelationIDFor(event.ID)
	}

	event.CorrelationID = correlationID
	span.SetAttributes(
		attribute.String(otelhelper.ExecutionIDKey, event.ID),
		attribute.String(otelhelper.CorrelationIDKey, correlationID),
	)

	logger = logger.With("execution_id", event.ID, "correlation_id", correlationID)

	if err := i.store.SaveEvent(ctx, event); err != nil {
		if errors.Is(err, persistence.ErrEventAlreadyExists) {
			return i.resolveConcurrentDuplicate(ctx, raw, request, err, logger)
		}

		otelhelper.SetError(span, err)
		logger.ErrorContext(ctx, "Failed to persist event", "error", err)

		return nil, &ServiceError{
			Op:            "ingest",
			Code:          "persistence_failed",
			ExecutionID:   event.ID,
			ProjectID:     event.ProjectID,
			CorrelationID: correlationID,
			Err:           err,
		}
	}

	i.guard.Remember(ctx, request.ID, check.Fingerprint, event.ID)

	acceptance := &models.Acceptance{
		ExecutionID:   event.ID,
		EventID:       request.ID,
		CorrelationID: correlationID,
	}

	jobID, err := i.dispatcher.Dispatch(ctx, events.NewProcessEventJob(event, request.Type))
	if err != nil {
		otelhelper.SetError(span, err)
		logger.WarnContext(ctx, "Event stored but dispatch failed", "error", err)

		return acceptance, nil
	}

	acceptance.TaskID = &jobID

	logger.InfoContext(ctx, "Event accepted", "task_id", jobID, "event_type", request.Type)

	return acceptance, nil
}

// resolveConcurrentDuplicate handles a save rejected because another delivery
// of the same event was stored first: the caller gets the winner's execution.
func (i *Ingestion) resolveConcurrentDuplicate(
	ctx context.Context,
	raw []byte,
	request models.RequestEvent,
	saveErr error,
	logger *slog.Logger,
) (*models.Acceptance, error) {
	check, err := i.guard.Check(ctx, raw, request.ID)
	if err == nil && check.IsDuplicate() {
		logger.InfoContext(ctx, "Concurrent duplicate event ignored",
			"execution_id", check.ExecutionID,
			"matched_by", check.MatchedBy,
		)

		return duplicateAcceptance(request, check.ExecutionID), nil
	}

	logger.WarnContext(ctx, "Event already stored but its execution could not be resolved", "error", saveErr)

	return nil, NewConflictError("ingest", "", "event was accepted concurrently",
		errors.Join(ErrDuplicateEvent, saveErr, err, check.LookupErr))
}

func duplicateAcceptance(request models.RequestEvent, executionID string) *models.Acceptance {
	return &models.Acceptance{
		ExecutionID:   executionID,
		EventID:       request.ID,
		CorrelationID: request.IncomingCorrelationID(),
		Duplicate:     true,
	}
}

func (i *Ingestion) decode(raw []byte) (models.RequestEvent, error) {
	var request models.RequestEvent

	if !json.Valid(raw) {
		return request, NewValidationError("ingest", "invalid_json", "payload is not valid JSON", ErrInvalidPayload)
	}

	if err := validateEventSchema(raw); err != nil {
		if errors.Is(err, ErrSchemaValidation) || errors.Is(err, ErrInvalidPayload) {
			return request, NewValidationError("ingest", "invalid_event", err.Error(), err)
		}

		return request, err
	}

	if err := json.Unmarshal(raw, &request); err != nil {
		return request, NewValidationError("ingest", "invalid_event", "payload does not decode", fmt.Errorf("%w: %w", ErrInvalidPayload, err))
	}

	if request.ProjectID != "" {
		if err := models.ValidateProjectID(request.ProjectID); err != nil {
			return request, NewValidationError("ingest", "invalid_project_id", err.Error(), err)
		}
	}

	return request, nil
}
