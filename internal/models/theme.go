package models

import (
	"time"

	"github.com/google/uuid"
)

type Theme struct {
	ID             uuid.UUID  `json:"id"`
	Title          string     `json:"title"`
	CohortKey      string     `json:"cohort_key"`
	Verified       bool       `json:"verified"`
	MaxGroups      *int       `json:"max_groups,omitempty"`
	MaxSupervisors int        `json:"max_supervisors"`
	ProposedByTeam *uuid.UUID `json:"proposed_by_team,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ThemeSlots is a theme annotated with how many teams it is assigned to.
type ThemeSlots struct {
	ThemeID   uuid.UUID
	MaxGroups *int
	Assigned  int
}

// HasRoom reports whether the theme can take another team. A nil MaxGroups
// means unlimited.
func (t ThemeSlots) HasRoom() bool {
	return t.MaxGroups == nil || t.Assigned < *t.MaxGroups
}
