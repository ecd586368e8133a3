package models

import (
	"time"

	"github.com/google/uuid"
)

type Team struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CohortKey string    `json:"cohort_key"`
	Capacity  int       `json:"capacity"`
	OwnerID   uuid.UUID `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TeamMember struct {
	ID        uuid.UUID `json:"id"`
	TeamID    uuid.UUID `json:"team_id"`
	UserID    uuid.UUID `json:"user_id"`
	CohortKey string    `json:"cohort_key"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// TeamSlots is a team annotated with its live member count.
type TeamSlots struct {
	TeamID   uuid.UUID
	OwnerID  uuid.UUID
	Capacity int
	Members  int
}

func (t TeamSlots) Remaining() int {
	if r := t.Capacity - t.Members; r > 0 {
		return r
	}
	return 0
}
