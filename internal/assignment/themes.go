package assignment

import (
	"math/rand/v2"

	"github.com/google/uuid"
)

// Pair is one theme-to-team assignment.
type Pair struct {
	TeamID  uuid.UUID
	ThemeID uuid.UUID
}

// ThemePlan is the outcome of PlanThemes.
type ThemePlan struct {
	Pairs           []Pair
	RemainingTeams  []uuid.UUID
	RemainingThemes []uuid.UUID
}

// PlanThemes shuffles both lists independently and pairs them by position.
// Each available theme is offered at most once per run.
func PlanThemes(rng *rand.Rand, teams, themes []uuid.UUID) ThemePlan {
	t := Shuffle(rng, teams)
	th := Shuffle(rng, themes)

	n := min(len(t), len(th))
	plan := ThemePlan{
		Pairs:           make([]Pair, 0, n),
		RemainingTeams:  t[n:],
		RemainingThemes: th[n:],
	}
	for i := 0; i < n; i++ {
		plan.Pairs = append(plan.Pairs, Pair{TeamID: t[i], ThemeID: th[i]})
	}
	return plan
}
