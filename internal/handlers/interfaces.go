package handlers

import (
	"context"

	"github.com/dimitrije/cohort-api/internal/models"
	"github.com/dimitrije/cohort-api/internal/services"
	"github.com/google/uuid"
)

// UserServiceInterface defines the methods used by handlers from UserService
type UserServiceInterface interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// RequestServiceInterface defines the methods used by handlers from RequestService
type RequestServiceInterface interface {
	Create(ctx context.Context, actor models.CurrentUser, in services.CreateRequestInput) (*models.Request, error)
	Accept(ctx context.Context, actor models.CurrentUser, requestID uuid.UUID) (*models.Request, error)
	Decline(ctx context.Context, actor models.CurrentUser, requestID uuid.UUID) (*models.Request, error)
	Cancel(ctx context.Context, actor models.CurrentUser, requestID uuid.UUID) (*models.Request, error)
	Get(ctx context.Context, actor models.CurrentUser, requestID uuid.UUID) (*models.Request, error)
	ListPending(ctx context.Context, actor models.CurrentUser, incoming bool) ([]models.Request, error)
}

// PhaseServiceInterface defines the methods used by handlers from PhaseService
type PhaseServiceInterface interface {
	Create(ctx context.Context, in services.CreatePhaseInput) (*models.Phase, error)
	Update(ctx context.Context, key string, in services.UpdatePhaseInput) (*models.Phase, error)
	Get(ctx context.Context, key string) (*models.Phase, error)
	Fire(ctx context.Context, phaseKey string) (*services.FireResult, error)
}

// NotificationServiceInterface defines the methods used by handlers from
// NotificationService. It is a superset of realtime.Store.
type NotificationServiceInterface interface {
	ListUnread(ctx context.Context, recipientID uuid.UUID, limit int) ([]models.Notification, error)
	CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, recipientID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int, error)
	Archive(ctx context.Context, recipientID, id uuid.UUID) error
}

// Ensure the concrete services satisfy the handler interfaces.
var (
	_ UserServiceInterface         = (*services.UserService)(nil)
	_ RequestServiceInterface      = (*services.RequestService)(nil)
	_ PhaseServiceInterface        = (*services.PhaseService)(nil)
	_ NotificationServiceInterface = (*services.NotificationService)(nil)
)
