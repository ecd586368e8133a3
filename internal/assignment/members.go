// Package assignment implements the random fair-share distribution policies
// used when a phase closes. The functions here work on in-memory snapshots;
// persistence is the caller's concern.
package assignment

import (
	"math/rand/v2"

	"github.com/google/uuid"
)

// Slot is a team with the number of places still open in the snapshot.
type Slot struct {
	TeamID    uuid.UUID
	Remaining int
}

// Placement pairs a member with the team it was drawn into.
type Placement struct {
	UserID uuid.UUID
	TeamID uuid.UUID
}

// MemberPlan is the outcome of PlanMembers. Failed members were drawn a
// team but their placement was rejected; they also count as unassigned.
type MemberPlan struct {
	Placements []Placement
	PerTeam    map[uuid.UUID]int
	Unassigned []uuid.UUID
	Failed     []uuid.UUID
}

// PlaceFunc persists one placement. A non-nil error gives the place back to
// the team and moves on to the next member.
type PlaceFunc func(Placement) error

// Distributor hands out open team places uniformly at random. Each Pick
// consumes one place from the drawn team so later picks see the decrement.
type Distributor struct {
	rng   *rand.Rand
	open  []uuid.UUID
	slots map[uuid.UUID]int
}

func NewDistributor(rng *rand.Rand, slots []Slot) *Distributor {
	d := &Distributor{rng: rng, slots: make(map[uuid.UUID]int, len(slots))}
	for _, s := range slots {
		if s.Remaining <= 0 {
			continue
		}
		if _, dup := d.slots[s.TeamID]; !dup {
			d.open = append(d.open, s.TeamID)
		}
		d.slots[s.TeamID] += s.Remaining
	}
	return d
}

// Capacity is the total number of open places left.
func (d *Distributor) Capacity() int {
	total := 0
	for _, n := range d.slots {
		total += n
	}
	return total
}

// Pick draws one team among those with remaining places, each with equal
// probability regardless of how many places it has.
func (d *Distributor) Pick() (uuid.UUID, bool) {
	if len(d.open) == 0 {
		return uuid.Nil, false
	}
	i := d.rng.IntN(len(d.open))
	teamID := d.open[i]
	d.slots[teamID]--
	if d.slots[teamID] == 0 {
		last := len(d.open) - 1
		d.open[i] = d.open[last]
		d.open = d.open[:last]
	}
	return teamID, true
}

// Release gives back a place taken by Pick whose insertion failed.
func (d *Distributor) Release(teamID uuid.UUID) {
	if _, known := d.slots[teamID]; !known {
		return
	}
	if d.slots[teamID] == 0 {
		d.open = append(d.open, teamID)
	}
	d.slots[teamID]++
}

// Shuffle returns a uniformly permuted copy of ids.
func Shuffle(rng *rand.Rand, ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, len(ids))
	copy(out, ids)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// PlanMembers shuffles the teamless members and draws a team for each until
// places run out. Members left over are unassigned. place may be nil.
func PlanMembers(rng *rand.Rand, members []uuid.UUID, slots []Slot, place PlaceFunc) MemberPlan {
	plan := MemberPlan{PerTeam: make(map[uuid.UUID]int)}
	d := NewDistributor(rng, slots)
	for _, userID := range Shuffle(rng, members) {
		teamID, ok := d.Pick()
		if !ok {
			plan.Unassigned = append(plan.Unassigned, userID)
			continue
		}
		p := Placement{UserID: userID, TeamID: teamID}
		if place != nil {
			if err := place(p); err != nil {
				d.Release(teamID)
				plan.Failed = append(plan.Failed, userID)
				plan.Unassigned = append(plan.Unassigned, userID)
				continue
			}
		}
		plan.Placements = append(plan.Placements, p)
		plan.PerTeam[teamID]++
	}
	return plan
}
