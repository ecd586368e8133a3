package models

import "github.com/google/uuid"

// BatchResult reports one run of a batch assignment algorithm for a cohort.
// It is never persisted.
type BatchResult struct {
	CohortKey string    `json:"cohort_key"`
	Kind      PhaseKind `json:"kind"`

	// Member distribution.
	TeamlessBefore    int               `json:"teamless_before,omitempty"`
	TeamsWithCapacity int               `json:"teams_with_capacity,omitempty"`
	PerTeam           map[uuid.UUID]int `json:"per_team,omitempty"`

	// Theme distribution.
	RemainingTeams  int `json:"remaining_teams,omitempty"`
	RemainingThemes int `json:"remaining_themes,omitempty"`

	Assigned   int `json:"assigned"`
	Unassigned int `json:"unassigned"`
	Failed     int `json:"failed"`
}
