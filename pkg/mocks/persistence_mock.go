package mocks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dukex/devflow/pkg/models"
	"github.com/dukex/devflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock
}

var _ persistence.Persistence = (*MockPersistence)(nil)

func (m *MockPersistence) SaveEvent(ctx context.Context, event *models.Event) error {
	args := m.Called(ctx, event)

	return args.Error(0)
}

func (m *MockPersistence) EventByID(ctx context.Context, id string) (*models.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Event), args.Error(1)
}

func (m *MockPersistence) UpdateTaskContext(ctx context.Context, id string, taskContext json.RawMessage) error {
	args := m.Called(ctx, id, taskContext)

	return args.Error(0)
}

func (m *MockPersistence) ExecutionBySourceEventID(ctx context.Context, sourceEventID string) (string, error) {
	args := m.Called(ctx, sourceEventID)

	return args.String(0), args.Error(1)
}

func (m *MockPersistence) ExecutionByFingerprint(ctx context.Context, fingerprint string) (string, error) {
	args := m.Called(ctx, fingerprint)

	return args.String(0), args.Error(1)
}

func (m *MockPersistence) LatestEventByProject(ctx context.Context, projectID string) (*models.Event, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Event), args.Error(1)
}

func (m *MockPersistence) UnprocessedEvents(ctx context.Context, olderThan time.Time, limit int) ([]*models.Event, error) {
	args := m.Called(ctx, olderThan, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Event), args.Error(1)
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
