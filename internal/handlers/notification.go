package handlers

import (
	"context"
	"strconv"

	"github.com/dimitrije/cohort-api/internal/broker"
	"github.com/dimitrije/cohort-api/internal/middleware"
	"github.com/dimitrije/cohort-api/internal/realtime"
	"github.com/dimitrije/cohort-api/internal/services"
	"github.com/dimitrije/cohort-api/pkg/dto"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
	"go.uber.org/zap"
)

const maxListLimit = 100

// NotificationHandler serves the notification inbox over REST, WebSocket
// and SSE. Every transport reads the same store.
type NotificationHandler struct {
	notifications NotificationServiceInterface
	users         UserServiceInterface
	broker        broker.Broker
	jwtService    *services.JWTService
	catchupLimit  int
	logger        *zap.Logger
}

func NewNotificationHandler(
	notifications NotificationServiceInterface,
	users UserServiceInterface,
	b broker.Broker,
	jwtService *services.JWTService,
	catchupLimit int,
	logger *zap.Logger,
) *NotificationHandler {
	if catchupLimit <= 0 {
		catchupLimit = realtime.DefaultCatchupLimit
	}
	return &NotificationHandler{
		notifications: notifications,
		users:         users,
		broker:        b,
		jwtService:    jwtService,
		catchupLimit:  catchupLimit,
		logger:        logger.Named("notifications"),
	}
}

// List returns the newest unread notifications and the total unread count.
func (h *NotificationHandler) List(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	limit := h.catchupLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxListLimit {
			c.BadRequest("limit must be between 1 and 100")
			return
		}
		limit = n
	}

	ctx := c.Request.Context()
	list, err := h.notifications.ListUnread(ctx, userID, limit)
	if err != nil {
		respondError(c, h.logger, err, "list notifications")
		return
	}
	count, err := h.notifications.CountUnread(ctx, userID)
	if err != nil {
		respondError(c, h.logger, err, "count notifications")
		return
	}

	_ = c.JSON(200, dto.NotificationListResponse{
		Notifications: realtime.Payloads(list),
		Count:         count,
	})
}

func (h *NotificationHandler) MarkRead(c *drift.Context) {
	h.update(c, "mark notification read", h.notifications.MarkRead)
}

func (h *NotificationHandler) Archive(c *drift.Context) {
	h.update(c, "archive notification", h.notifications.Archive)
}

func (h *NotificationHandler) MarkAllRead(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	count, err := h.notifications.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err, "mark notifications read")
		return
	}

	_ = c.JSON(200, dto.MarkAllReadResponse{Count: count})
}

func (h *NotificationHandler) update(c *drift.Context, op string, fn func(ctx context.Context, recipientID, id uuid.UUID) error) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.BadRequest("invalid notification id")
		return
	}

	if err := fn(c.Request.Context(), userID, id); err != nil {
		respondError(c, h.logger, err, op)
		return
	}

	_ = c.JSON(200, map[string]string{"status": "ok"})
}
