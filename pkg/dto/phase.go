package dto

import (
	"time"

	"github.com/google/uuid"
)

type CreatePhaseRequest struct {
	Key       string     `json:"key"`
	Kind      string     `json:"kind"`
	CohortKey string     `json:"cohort_key"`
	StartsAt  time.Time  `json:"starts_at"`
	EndsAt    *time.Time `json:"ends_at,omitempty"`
	Active    *bool      `json:"active,omitempty"`
}

type UpdatePhaseRequest struct {
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	ClearEndsAt bool       `json:"clear_ends_at,omitempty"`
	Active      *bool      `json:"active,omitempty"`
}

type PhaseResponse struct {
	ID        uuid.UUID `json:"id"`
	Key       string    `json:"key"`
	Kind      string    `json:"kind"`
	CohortKey string    `json:"cohort_key"`
	StartsAt  string    `json:"starts_at"`
	EndsAt    *string   `json:"ends_at,omitempty"`
	Active    bool      `json:"active"`
	Processed bool      `json:"processed"`
	Status    string    `json:"status"`
}
