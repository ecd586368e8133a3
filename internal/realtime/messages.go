// Package realtime implements the notification push protocol: the
// dispatcher that publishes stored notifications to the broker and the
// per-connection session that answers client commands.
package realtime

import (
	"time"

	"github.com/dimitrije/cohort-api/internal/models"
	"github.com/dimitrije/cohort-api/pkg/dto"
	"github.com/google/uuid"
)

// Server to client message types.
const (
	TypePendingNotifications = "pending_notifications"
	TypeNotification         = "notification"
	TypeMarkedRead           = "notification_marked_read"
	TypeAllMarkedRead        = "all_notifications_marked_read"
	TypeArchived             = "notification_archived"
	TypeError                = "error"
)

// Client to server commands.
const (
	CmdMarkRead    = "mark_read"
	CmdMarkAllRead = "mark_all_read"
	CmdArchive     = "archive_notification"
)

type Command struct {
	Type           string `json:"type"`
	NotificationID string `json:"notification_id,omitempty"`
}

// PendingNotifications is the catch-up batch sent on connect. Count is the
// total number of unread notifications, which may exceed the batch.
type PendingNotifications struct {
	Type          string                     `json:"type"`
	Notifications []dto.NotificationResponse `json:"notifications"`
	Count         int                        `json:"count"`
}

type NotificationEvent struct {
	Type    string                   `json:"type"`
	Payload dto.NotificationResponse `json:"payload"`
}

// CommandResult answers mark_read and archive_notification.
type CommandResult struct {
	Type    string    `json:"type"`
	ID      uuid.UUID `json:"id"`
	Success bool      `json:"success"`
	Message string    `json:"message,omitempty"`
}

type AllMarkedRead struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func errorMessage(msg string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: msg}
}

// Payload is the wire shape of a notification.
func Payload(n models.Notification) dto.NotificationResponse {
	return dto.NotificationResponse{
		ID:       n.ID,
		Kind:     n.Kind,
		Content:  n.Content,
		Priority: string(n.Priority),
		Related: dto.RelatedEntityResponse{
			Kind: string(n.Related.Kind),
			ID:   n.Related.ID,
			Key:  n.Related.Key,
		},
		Link:      n.Link,
		Status:    string(n.Status),
		CreatedAt: n.CreatedAt.Format(time.RFC3339Nano),
	}
}

func Payloads(ns []models.Notification) []dto.NotificationResponse {
	out := make([]dto.NotificationResponse, 0, len(ns))
	for _, n := range ns {
		out = append(out, Payload(n))
	}
	return out
}
