package realtime

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dimitrije/cohort-api/internal/models"
	"github.com/dimitrije/cohort-api/internal/services"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultCatchupLimit = 10

// Store is the part of the notification store a session needs.
type Store interface {
	ListUnread(ctx context.Context, recipientID uuid.UUID, limit int) ([]models.Notification, error)
	CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, recipientID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int, error)
	Archive(ctx context.Context, recipientID, id uuid.UUID) error
}

// Session is the protocol state of one connected client. It does no IO of
// its own; the transport feeds it frames and writes what it returns.
type Session struct {
	store       Store
	recipientID uuid.UUID
	limit       int
	logger      *zap.Logger
}

func NewSession(store Store, recipientID uuid.UUID, limit int, logger *zap.Logger) *Session {
	if limit <= 0 {
		limit = DefaultCatchupLimit
	}
	return &Session{
		store:       store,
		recipientID: recipientID,
		limit:       limit,
		logger:      logger.With(zap.Stringer("recipient_id", recipientID)),
	}
}

// CatchUp reads the most recent unread notifications straight from the
// store, newest first. It does not depend on any earlier publish.
func (s *Session) CatchUp(ctx context.Context) (*PendingNotifications, error) {
	list, err := s.store.ListUnread(ctx, s.recipientID, s.limit)
	if err != nil {
		return nil, err
	}
	count, err := s.store.CountUnread(ctx, s.recipientID)
	if err != nil {
		return nil, err
	}
	return &PendingNotifications{
		Type:          TypePendingNotifications,
		Notifications: Payloads(list),
		Count:         count,
	}, nil
}

// Handle answers one client frame. Malformed input gets an error message;
// the connection stays open.
func (s *Session) Handle(ctx context.Context, data []byte) any {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return errorMessage("invalid message format")
	}

	switch cmd.Type {
	case CmdMarkRead:
		id, err := uuid.Parse(cmd.NotificationID)
		if err != nil {
			return errorMessage("invalid notification_id")
		}
		return s.result(TypeMarkedRead, id, s.store.MarkRead(ctx, s.recipientID, id))

	case CmdArchive:
		id, err := uuid.Parse(cmd.NotificationID)
		if err != nil {
			return errorMessage("invalid notification_id")
		}
		return s.result(TypeArchived, id, s.store.Archive(ctx, s.recipientID, id))

	case CmdMarkAllRead:
		count, err := s.store.MarkAllRead(ctx, s.recipientID)
		if err != nil {
			s.logger.Error("mark all read failed", zap.Error(err))
			return errorMessage("failed to mark notifications as read")
		}
		return AllMarkedRead{Type: TypeAllMarkedRead, Count: count}

	case "":
		return errorMessage("message type is required")
	default:
		return errorMessage("unknown message type: " + cmd.Type)
	}
}

func (s *Session) result(typ string, id uuid.UUID, err error) CommandResult {
	res := CommandResult{Type: typ, ID: id, Success: err == nil}
	switch {
	case err == nil:
	case errors.Is(err, services.ErrNotFound):
		res.Message = "notification not found"
	default:
		s.logger.Error("notification command failed",
			zap.String("type", typ),
			zap.Stringer("notification_id", id),
			zap.Error(err))
		res.Message = "internal error"
	}
	return res
}
