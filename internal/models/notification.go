package models

import (
	"time"

	"github.com/google/uuid"
)

type NotificationStatus string

const (
	NotificationUnread   NotificationStatus = "unread"
	NotificationRead     NotificationStatus = "read"
	NotificationArchived NotificationStatus = "archived"
)

type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
)

// Notification kinds produced by the core.
const (
	NotifyRequestReceived  = "request_received"
	NotifyRequestAccepted  = "request_accepted"
	NotifyRequestDeclined  = "request_declined"
	NotifyRequestCancelled = "request_cancelled"
	NotifyRequestExpired   = "request_expired"
	NotifyMemberJoined     = "member_joined"
	NotifySupervisorAdded  = "supervisor_added"
	NotifyTeamAssigned     = "team_assigned"
	NotifyMemberAutoAdded  = "member_auto_added"
	NotifyThemeAssigned    = "theme_assigned"
	NotifyPhaseRun         = "phase_run"
)

type RelatedKind string

const (
	RelatedRequest  RelatedKind = "request"
	RelatedTeam     RelatedKind = "team"
	RelatedPhaseRun RelatedKind = "phase_run"
)

// RelatedEntity is a tagged reference: ID is set for request and team,
// Key for phase_run.
type RelatedEntity struct {
	Kind RelatedKind `json:"kind"`
	ID   *uuid.UUID  `json:"id,omitempty"`
	Key  string      `json:"key,omitempty"`
}

func RelatedToRequest(id uuid.UUID) RelatedEntity {
	return RelatedEntity{Kind: RelatedRequest, ID: &id}
}

func RelatedToTeam(id uuid.UUID) RelatedEntity {
	return RelatedEntity{Kind: RelatedTeam, ID: &id}
}

func RelatedToPhaseRun(phaseKey string) RelatedEntity {
	return RelatedEntity{Kind: RelatedPhaseRun, Key: phaseKey}
}

func (r RelatedEntity) Valid() bool {
	switch r.Kind {
	case RelatedRequest, RelatedTeam:
		return r.ID != nil && r.Key == ""
	case RelatedPhaseRun:
		return r.ID == nil && r.Key != ""
	}
	return false
}

type Notification struct {
	ID          uuid.UUID            `json:"id"`
	RecipientID uuid.UUID            `json:"recipient_id"`
	Kind        string               `json:"kind"`
	Content     string               `json:"content"`
	Priority    NotificationPriority `json:"priority"`
	Related     RelatedEntity        `json:"related"`
	Link        string               `json:"link,omitempty"`
	Status      NotificationStatus   `json:"status"`
	CreatedAt   time.Time            `json:"created_at"`
}

// NewNotification is the input to the store's Record.
type NewNotification struct {
	RecipientID uuid.UUID
	Kind        string
	Content     string
	Priority    NotificationPriority
	Related     RelatedEntity
}
