package mocks

import (
	"context"

	"github.com/dukex/devflow/pkg/eventbus"
	"github.com/dukex/devflow/pkg/events"
	"github.com/dukex/devflow/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockEventBus is a mock implementation of eventbus.EventBus interface.
type MockEventBus struct {
	mock.Mock
}

var _ eventbus.EventBus = (*MockEventBus)(nil)

func (m *MockEventBus) Dispatch(ctx context.Context, job events.Job) (string, error) {
	args := m.Called(ctx, job)

	return args.String(0), args.Error(1)
}

func (m *MockEventBus) Consume(ctx context.Context, handler eventbus.JobHandler) error {
	args := m.Called(ctx, handler)

	return args.Error(0)
}

func (m *MockEventBus) PublishStatus(ctx context.Context, envelope models.Envelope) error {
	args := m.Called(ctx, envelope)

	return args.Error(0)
}

func (m *MockEventBus) SubscribeStatus(ctx context.Context, handler eventbus.StatusHandler) error {
	args := m.Called(ctx, handler)

	return args.Error(0)
}

func (m *MockEventBus) Close() error {
	args := m.Called()

	return args.Error(0)
}
