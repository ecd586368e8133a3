package handlers

import (
	"context"
	"time"

	"github.com/dimitrije/cohort-api/internal/broker"
	"github.com/dimitrije/cohort-api/internal/metrics"
	"github.com/dimitrije/cohort-api/internal/middleware"
	"github.com/dimitrije/cohort-api/internal/realtime"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/m1z23r/drift/pkg/websocket"
	"go.uber.org/zap"
)

const (
	streamPingInterval = 30 * time.Second
	streamWriteTimeout = 10 * time.Second
	streamReadTimeout  = 60 * time.Second
)

// open joins the recipient's broker group and then reads the catch-up batch.
// Joining first means a notification committed in between is delivered at
// least once, possibly twice; clients dedupe on id.
func (h *NotificationHandler) open(ctx context.Context, c *drift.Context, userID uuid.UUID) (broker.Subscription, *realtime.Session, *realtime.PendingNotifications, bool) {
	sub, err := h.broker.Join(ctx, userID)
	if err != nil {
		h.logger.Error("join broker group failed", zap.Stringer("user_id", userID), zap.Error(err))
		_ = c.JSON(503, map[string]string{"error": "real-time delivery unavailable"})
		return nil, nil, nil, false
	}

	session := realtime.NewSession(h.notifications, userID, h.catchupLimit, h.logger)
	pending, err := session.CatchUp(ctx)
	if err != nil {
		_ = sub.Close()
		respondError(c, h.logger, err, "load pending notifications")
		return nil, nil, nil, false
	}
	return sub, session, pending, true
}

// Connect upgrades to a WebSocket. The access token travels in the query
// string because browsers cannot set headers on the upgrade request.
func (h *NotificationHandler) Connect(c *drift.Context) {
	token := c.QueryParam("token")
	if token == "" {
		c.Unauthorized("token is required")
		return
	}

	claims, err := h.jwtService.ValidateAccessToken(token)
	if err != nil {
		c.Unauthorized("invalid token")
		return
	}

	if _, err := h.users.GetByID(c.Request.Context(), claims.UserID); err != nil {
		c.Unauthorized("user not found")
		return
	}

	// The connection outlives the upgrade request.
	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()

	sub, session, pending, ok := h.open(ctx, c, claims.UserID)
	if !ok {
		return
	}
	defer func() { _ = sub.Close() }()

	conn, err := websocket.Upgrade(c)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	metrics.RealtimeSessions.Inc()
	defer metrics.RealtimeSessions.Dec()

	log := h.logger.With(zap.Stringer("user_id", claims.UserID))
	log.Debug("websocket session opened")

	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := conn.WriteJSON(pending); err != nil {
		_ = conn.Close(websocket.CloseNormalClosure, "")
		return
	}

	replies := make(chan any, 16)
	done := make(chan struct{})
	writerDone := make(chan struct{})

	// Write pump: the only goroutine that writes after the catch-up.
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(streamPingInterval)
		defer ticker.Stop()
		defer func() {
			if err := conn.Close(websocket.CloseNormalClosure, ""); err != nil {
				log.Debug("websocket close error", zap.Error(err))
			}
		}()

		for {
			select {
			case payload, ok := <-sub.C():
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
				if err := conn.WriteText(string(payload)); err != nil {
					return
				}
			case reply := <-replies:
				_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
				if err := conn.WriteJSON(reply); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.Ping(nil); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	// Read pump (blocks until disconnect)
	defer func() {
		close(done)
		<-writerDone
		log.Debug("websocket session closed")
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		reply := session.Handle(ctx, data)
		select {
		case replies <- reply:
		case <-writerDone:
			return
		}
	}
}

// Stream is the server-sent events variant: push only, commands go through
// the REST endpoints.
func (h *NotificationHandler) Stream(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	ctx := c.Request.Context()
	sub, _, pending, ok := h.open(ctx, c, userID)
	if !ok {
		return
	}
	defer func() { _ = sub.Close() }()

	sseCtx := c.SSE()

	metrics.RealtimeSessions.Inc()
	defer metrics.RealtimeSessions.Dec()

	if err := sseCtx.SendJSON(pending, realtime.TypePendingNotifications, ""); err != nil {
		return
	}

	for {
		select {
		case payload, ok := <-sub.C():
			if !ok {
				return
			}
			if err := sseCtx.Send(string(payload), realtime.TypeNotification, ""); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
