package models

import (
	"time"

	"github.com/google/uuid"
)

type RequestKind string

const (
	RequestTeamInvitation RequestKind = "team_invitation"
	RequestTeamJoin       RequestKind = "team_join"
	RequestSupervision    RequestKind = "supervision"
)

func (k RequestKind) Valid() bool {
	switch k {
	case RequestTeamInvitation, RequestTeamJoin, RequestSupervision:
		return true
	}
	return false
}

type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestAccepted  RequestStatus = "accepted"
	RequestDeclined  RequestStatus = "declined"
	RequestExpired   RequestStatus = "expired"
	RequestCancelled RequestStatus = "cancelled"
)

// IsActive reports whether the status counts toward the one-active-request
// per (subject, counterparty) rule.
func (s RequestStatus) IsActive() bool {
	return s == RequestPending || s == RequestAccepted
}

func (s RequestStatus) IsTerminal() bool {
	return s != RequestPending
}

// RequestSubject identifies what a request is about. TeamID is always set;
// ThemeID is set for supervision requests, which are scoped to the theme.
type RequestSubject struct {
	TeamID  uuid.UUID
	ThemeID *uuid.UUID
}

// ID is the key the uniqueness rule is scoped on.
func (s RequestSubject) ID() uuid.UUID {
	if s.ThemeID != nil {
		return *s.ThemeID
	}
	return s.TeamID
}

type Request struct {
	ID             uuid.UUID     `json:"id"`
	Kind           RequestKind   `json:"kind"`
	SubjectID      uuid.UUID     `json:"subject_id"`
	TeamID         uuid.UUID     `json:"team_id"`
	ThemeID        *uuid.UUID    `json:"theme_id,omitempty"`
	InitiatorID    uuid.UUID     `json:"initiator_id"`
	CounterpartyID uuid.UUID     `json:"counterparty_id"`
	Status         RequestStatus `json:"status"`
	Message        string        `json:"message"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	RespondedAt    *time.Time    `json:"responded_at,omitempty"`
}

func (r *Request) Subject() RequestSubject {
	return RequestSubject{TeamID: r.TeamID, ThemeID: r.ThemeID}
}
