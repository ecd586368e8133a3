package dto

import "github.com/google/uuid"

type CreateRequestRequest struct {
	Kind           string     `json:"kind"`
	TeamID         uuid.UUID  `json:"team_id"`
	ThemeID        *uuid.UUID `json:"theme_id,omitempty"`
	CounterpartyID uuid.UUID  `json:"counterparty_id"`
	Message        string     `json:"message"`
}

type RequestResponse struct {
	ID             uuid.UUID  `json:"id"`
	Kind           string     `json:"kind"`
	TeamID         uuid.UUID  `json:"team_id"`
	ThemeID        *uuid.UUID `json:"theme_id,omitempty"`
	InitiatorID    uuid.UUID  `json:"initiator_id"`
	CounterpartyID uuid.UUID  `json:"counterparty_id"`
	Status         string     `json:"status"`
	Message        string     `json:"message"`
	CreatedAt      string     `json:"created_at"`
	RespondedAt    *string    `json:"responded_at,omitempty"`
}
