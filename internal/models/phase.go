package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type PhaseStatus string

const (
	PhaseUpcoming PhaseStatus = "upcoming"
	PhaseActive   PhaseStatus = "active"
	PhaseExpired  PhaseStatus = "expired"
	PhaseInactive PhaseStatus = "inactive"
)

// PhaseKind selects which batch algorithm runs when the phase expires.
type PhaseKind string

const (
	PhaseKindGroups PhaseKind = "groups"
	PhaseKindThemes PhaseKind = "themes"
)

func (k PhaseKind) Valid() bool {
	return k == PhaseKindGroups || k == PhaseKindThemes
}

var ErrPhaseWindow = errors.New("phase end must be after its start")

type Phase struct {
	ID        uuid.UUID  `json:"id"`
	Key       string     `json:"key"`
	Kind      PhaseKind  `json:"kind"`
	CohortKey string     `json:"cohort_key"`
	StartsAt  time.Time  `json:"starts_at"`
	EndsAt    *time.Time `json:"ends_at,omitempty"`
	Active    bool       `json:"active"`
	Processed bool       `json:"processed"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Status derives the phase status at now. It is a pure function of Active,
// StartsAt and EndsAt; inactive dominates.
func (p *Phase) Status(now time.Time) PhaseStatus {
	switch {
	case !p.Active:
		return PhaseInactive
	case now.Before(p.StartsAt):
		return PhaseUpcoming
	case p.EndsAt != nil && !now.Before(*p.EndsAt):
		return PhaseExpired
	default:
		return PhaseActive
	}
}

func (p *Phase) Validate() error {
	if p.EndsAt != nil && !p.EndsAt.After(p.StartsAt) {
		return ErrPhaseWindow
	}
	return nil
}

// JobKey is the stable job-queue key for the phase's expiry trigger.
func (p *Phase) JobKey() string {
	return PhaseJobKey(p.Key)
}

func PhaseJobKey(phaseKey string) string {
	return "phase:" + phaseKey
}
