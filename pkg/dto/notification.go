package dto

import "github.com/google/uuid"

type RelatedEntityResponse struct {
	Kind string     `json:"kind"`
	ID   *uuid.UUID `json:"id,omitempty"`
	Key  string     `json:"key,omitempty"`
}

type NotificationResponse struct {
	ID        uuid.UUID             `json:"id"`
	Kind      string                `json:"kind"`
	Content   string                `json:"content"`
	Priority  string                `json:"priority"`
	Related   RelatedEntityResponse `json:"related"`
	Link      string                `json:"link,omitempty"`
	Status    string                `json:"status"`
	CreatedAt string                `json:"created_at"`
}

type NotificationListResponse struct {
	Notifications []NotificationResponse `json:"notifications"`
	Count         int                    `json:"count"`
}

type MarkAllReadResponse struct {
	Count int `json:"count"`
}
