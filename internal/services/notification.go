package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dimitrije/cohort-api/internal/database"
	"github.com/dimitrije/cohort-api/internal/metrics"
	"github.com/dimitrije/cohort-api/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const notificationColumns = `id, recipient_id, kind, content, priority, related_kind, related_id, related_key, status, created_at`

// NotificationService is the durable notification store. Record must run in
// the transaction of the event that produced the notification; delivery is
// the Dispatcher's job.
type NotificationService struct {
	db      *database.DB
	baseURL string
}

func NewNotificationService(db *database.DB, baseURL string) *NotificationService {
	return &NotificationService{db: db, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *NotificationService) Record(ctx context.Context, q database.Querier, n models.NewNotification) (*models.Notification, error) {
	if !n.Related.Valid() {
		return nil, fmt.Errorf("%w: related entity %q is malformed", ErrValidation, n.Related.Kind)
	}
	if n.Priority == "" {
		n.Priority = models.PriorityNormal
	}

	out := models.Notification{
		RecipientID: n.RecipientID,
		Kind:        n.Kind,
		Content:     n.Content,
		Priority:    n.Priority,
		Related:     n.Related,
		Status:      models.NotificationUnread,
	}
	err := q.QueryRow(ctx, `
		INSERT INTO notifications (recipient_id, kind, content, priority, related_kind, related_id, related_key, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, n.RecipientID, n.Kind, n.Content, n.Priority, n.Related.Kind, n.Related.ID, nullableString(n.Related.Key),
		models.NotificationUnread).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record notification: %w", err)
	}
	out.Link = s.link(out.Related)

	metrics.NotificationsRecorded.WithLabelValues(n.Kind).Inc()
	return &out, nil
}

// RecordAll records each notification in order and returns them for dispatch.
func (s *NotificationService) RecordAll(ctx context.Context, q database.Querier, batch []models.NewNotification) ([]models.Notification, error) {
	out := make([]models.Notification, 0, len(batch))
	for _, n := range batch {
		rec, err := s.Record(ctx, q, n)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

// ListUnread returns the most recent unread notifications, newest first.
func (s *NotificationService) ListUnread(ctx context.Context, recipientID uuid.UUID, limit int) ([]models.Notification, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE recipient_id = $1 AND status = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, recipientID, models.NotificationUnread, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := []models.Notification{}
	for rows.Next() {
		n, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, *n)
	}
	return notifications, rows.Err()
}

func (s *NotificationService) CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error) {
	var count int
	err := s.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND status = $2
	`, recipientID, models.NotificationUnread).Scan(&count)
	return count, err
}

// MarkRead fails with ErrNotificationNotFound when the notification does not
// exist, belongs to someone else, or is archived.
func (s *NotificationService) MarkRead(ctx context.Context, recipientID, id uuid.UUID) error {
	return s.setStatus(ctx, recipientID, id, models.NotificationRead)
}

func (s *NotificationService) Archive(ctx context.Context, recipientID, id uuid.UUID) error {
	return s.setStatus(ctx, recipientID, id, models.NotificationArchived)
}

// MarkAllRead returns how many notifications changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int, error) {
	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE notifications SET status = $1
		WHERE recipient_id = $2 AND status = $3
	`, models.NotificationRead, recipientID, models.NotificationUnread)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *NotificationService) setStatus(ctx context.Context, recipientID, id uuid.UUID, status models.NotificationStatus) error {
	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE notifications SET status = $1
		WHERE id = $2 AND recipient_id = $3 AND status <> $4
	`, status, id, recipientID, models.NotificationArchived)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (s *NotificationService) scan(row pgx.Row) (*models.Notification, error) {
	var n models.Notification
	var relatedKey *string
	err := row.Scan(&n.ID, &n.RecipientID, &n.Kind, &n.Content, &n.Priority,
		&n.Related.Kind, &n.Related.ID, &relatedKey, &n.Status, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	if relatedKey != nil {
		n.Related.Key = *relatedKey
	}
	n.Link = s.link(n.Related)
	return &n, nil
}

// link builds the client deep link for a related entity.
func (s *NotificationService) link(r models.RelatedEntity) string {
	switch r.Kind {
	case models.RelatedRequest:
		return s.baseURL + "/requests/" + r.ID.String()
	case models.RelatedTeam:
		return s.baseURL + "/teams/" + r.ID.String()
	case models.RelatedPhaseRun:
		return s.baseURL + "/phases/" + r.Key
	}
	return ""
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
