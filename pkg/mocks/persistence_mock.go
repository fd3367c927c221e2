package mocks

import (
	"context"
	"time"

	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockExecutionRepository is a mock implementation of persistence.ExecutionRepository interface.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) Update(ctx context.Context, execution *models.Execution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) FindByID(ctx context.Context, id string) (*models.Execution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Execution), args.Error(1)
}

func (m *MockExecutionRepository) FindByConversationID(ctx context.Context, conversationID string) (*models.Execution, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Execution), args.Error(1)
}

// MockPauseStateStore is a mock implementation of persistence.PauseStateStore interface.
type MockPauseStateStore struct {
	mock.Mock
}

func (m *MockPauseStateStore) Put(ctx context.Context, request *models.HumanInterventionRequest, ttl time.Duration) error {
	args := m.Called(ctx, request, ttl)

	return args.Error(0)
}

func (m *MockPauseStateStore) Get(ctx context.Context, conversationID, nodeID string) (*models.HumanInterventionRequest, error) {
	args := m.Called(ctx, conversationID, nodeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.HumanInterventionRequest), args.Error(1)
}

func (m *MockPauseStateStore) Delete(ctx context.Context, conversationID, nodeID string) error {
	args := m.Called(ctx, conversationID, nodeID)

	return args.Error(0)
}

func (m *MockPauseStateStore) Archive(ctx context.Context, request *models.HumanInterventionRequest, ttl time.Duration) error {
	args := m.Called(ctx, request, ttl)

	return args.Error(0)
}

func (m *MockPauseStateStore) GetArchived(ctx context.Context, conversationID, nodeID string) (*models.HumanInterventionRequest, error) {
	args := m.Called(ctx, conversationID, nodeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.HumanInterventionRequest), args.Error(1)
}

// MockNodeLogRepository is a mock implementation of persistence.NodeLogRepository interface.
type MockNodeLogRepository struct {
	mock.Mock
}

func (m *MockNodeLogRepository) Start(ctx context.Context, entry *models.NodeExecution) error {
	args := m.Called(ctx, entry)

	return args.Error(0)
}

func (m *MockNodeLogRepository) Finish(ctx context.Context, entry *models.NodeExecution) error {
	args := m.Called(ctx, entry)

	return args.Error(0)
}

func (m *MockNodeLogRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.NodeExecution, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.NodeExecution), args.Error(1)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock
}

func (m *MockPersistence) Executions() persistence.ExecutionRepository {
	args := m.Called()

	return args.Get(0).(persistence.ExecutionRepository)
}

func (m *MockPersistence) NodeLogs() persistence.NodeLogRepository {
	args := m.Called()

	return args.Get(0).(persistence.NodeLogRepository)
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
