package testutil

import (
	"context"

	"github.com/dimitrije/cohort-api/internal/models"
	"github.com/dimitrije/cohort-api/internal/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockUserService mocks the UserService
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

// MockRequestService mocks the RequestService
type MockRequestService struct {
	mock.Mock
}

func (m *MockRequestService) Create(ctx context.Context, actor models.CurrentUser, in services.CreateRequestInput) (*models.Request, error) {
	args := m.Called(ctx, actor, in)
	return requestResult(args)
}

func (m *MockRequestService) Accept(ctx context.Context, actor models.CurrentUser, requestID uuid.UUID) (*models.Request, error) {
	args := m.Called(ctx, actor, requestID)
	return requestResult(args)
}

func (m *MockRequestService) Decline(ctx context.Context, actor models.CurrentUser, requestID uuid.UUID) (*models.Request, error) {
	args := m.Called(ctx, actor, requestID)
	return requestResult(args)
}

func (m *MockRequestService) Cancel(ctx context.Context, actor models.CurrentUser, requestID uuid.UUID) (*models.Request, error) {
	args := m.Called(ctx, actor, requestID)
	return requestResult(args)
}

func (m *MockRequestService) Get(ctx context.Context, actor models.CurrentUser, requestID uuid.UUID) (*models.Request, error) {
	args := m.Called(ctx, actor, requestID)
	return requestResult(args)
}

func (m *MockRequestService) ListPending(ctx context.Context, actor models.CurrentUser, incoming bool) ([]models.Request, error) {
	args := m.Called(ctx, actor, incoming)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Request), args.Error(1)
}

func requestResult(args mock.Arguments) (*models.Request, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Request), args.Error(1)
}

// MockPhaseService mocks the PhaseService
type MockPhaseService struct {
	mock.Mock
}

func (m *MockPhaseService) Create(ctx context.Context, in services.CreatePhaseInput) (*models.Phase, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Phase), args.Error(1)
}

func (m *MockPhaseService) Update(ctx context.Context, key string, in services.UpdatePhaseInput) (*models.Phase, error) {
	args := m.Called(ctx, key, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Phase), args.Error(1)
}

func (m *MockPhaseService) Get(ctx context.Context, key string) (*models.Phase, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Phase), args.Error(1)
}

func (m *MockPhaseService) Fire(ctx context.Context, phaseKey string) (*services.FireResult, error) {
	args := m.Called(ctx, phaseKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.FireResult), args.Error(1)
}

// MockNotificationService mocks the NotificationService
type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) ListUnread(ctx context.Context, recipientID uuid.UUID, limit int) ([]models.Notification, error) {
	args := m.Called(ctx, recipientID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Notification), args.Error(1)
}

func (m *MockNotificationService) CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error) {
	args := m.Called(ctx, recipientID)
	return args.Int(0), args.Error(1)
}

func (m *MockNotificationService) MarkRead(ctx context.Context, recipientID, id uuid.UUID) error {
	args := m.Called(ctx, recipientID, id)
	return args.Error(0)
}

func (m *MockNotificationService) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int, error) {
	args := m.Called(ctx, recipientID)
	return args.Int(0), args.Error(1)
}

func (m *MockNotificationService) Archive(ctx context.Context, recipientID, id uuid.UUID) error {
	args := m.Called(ctx, recipientID, id)
	return args.Error(0)
}
