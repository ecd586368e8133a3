package dto

import "github.com/google/uuid"

type UserResponse struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	GlobalRole string    `json:"global_role"`
	Role       string    `json:"role"`
	CohortKey  string    `json:"cohort_key"`
	Eligible   bool      `json:"eligible"`
}
