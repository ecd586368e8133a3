package services

import (
	"context"

	"github.com/dimitrije/cohort-api/internal/database"
	"github.com/dimitrije/cohort-api/internal/models"
	"github.com/google/uuid"
)

// requestPolicy is what varies between request kinds. The shared workflow
// in RequestService owns locking, state checks, persistence and
// notifications.
type requestPolicy interface {
	// prepare validates a new request on behalf of actor and fills the
	// derived fields (SubjectID, and CounterpartyID for join requests).
	prepare(ctx context.Context, q database.Querier, actor models.CurrentUser, r *models.Request) error
	approver(ctx context.Context, q database.Querier, r *models.Request) (uuid.UUID, error)
	isMember(ctx context.Context, q database.Querier, r *models.Request) (bool, error)
	hasCapacity(ctx context.Context, q database.Querier, r *models.Request, lock bool) (bool, error)
	// watchers are the parties told about an acceptance besides the initiator.
	watchers(ctx context.Context, q database.Querier, r *models.Request) ([]uuid.UUID, error)
	materialize(ctx context.Context, q database.Querier, r *models.Request) error
	describe() policyInfo
}

type policyInfo struct {
	label string
	// joinedKind is the notification kind watchers receive on acceptance.
	joinedKind string
	// notifyWatchersOnCreate also tells watchers about a new request.
	notifyWatchersOnCreate bool
}

// teamSubject covers both request kinds whose subject is a team.
type teamSubject struct {
	users *UserService
	teams *TeamService
}

func (p teamSubject) isMember(ctx context.Context, q database.Querier, r *models.Request) (bool, error) {
	return p.teams.inCohort(ctx, q, r.TeamID, r.CounterpartyID)
}

func (p teamSubject) hasCapacity(ctx context.Context, q database.Querier, r *models.Request, lock bool) (bool, error) {
	slots, err := p.teams.slots(ctx, q, r.TeamID, lock)
	if err != nil {
		return false, err
	}
	return slots.Remaining() > 0, nil
}

func (p teamSubject) watchers(ctx context.Context, q database.Querier, r *models.Request) ([]uuid.UUID, error) {
	return p.teams.memberIDs(ctx, q, r.TeamID)
}

func (p teamSubject) materialize(ctx context.Context, q database.Querier, r *models.Request) error {
	return p.teams.addMember(ctx, q, r.TeamID, r.CounterpartyID, models.RoleMember)
}

// checkStudent validates a user that would join the team.
func checkStudent(u models.CurrentUser, team *models.Team) error {
	switch {
	case u.Role != models.UserRoleStudent:
		return ErrWrongRole
	case !u.Eligible:
		return ErrNotEligible
	case u.CohortKey != team.CohortKey:
		return ErrCohortMismatch
	}
	return nil
}

// invitationPolicy: the team owner invites a student, who approves.
type invitationPolicy struct{ teamSubject }

func (p invitationPolicy) prepare(ctx context.Context, q database.Querier, actor models.CurrentUser, r *models.Request) error {
	team, err := p.teams.get(ctx, q, r.TeamID)
	if err != nil {
		return err
	}
	if team.OwnerID != actor.ID {
		return ErrNotTeamOwner
	}
	if r.CounterpartyID == uuid.Nil {
		return ErrMissingCounterpart
	}
	if r.CounterpartyID == actor.ID {
		return ErrSelfRequest
	}
	invitee, err := p.users.get(ctx, q, r.CounterpartyID)
	if err != nil {
		return err
	}
	if err := checkStudent(invitee.Current(), team); err != nil {
		return err
	}
	r.SubjectID = team.ID
	r.ThemeID = nil
	return nil
}

func (p invitationPolicy) approver(_ context.Context, _ database.Querier, r *models.Request) (uuid.UUID, error) {
	return r.CounterpartyID, nil
}

func (p invitationPolicy) describe() policyInfo {
	return policyInfo{label: "team invitation", joinedKind: models.NotifyMemberJoined}
}

// joinPolicy: a student asks to join; the team owner approves. The
// requester is also the counterparty the uniqueness rule is scoped on.
type joinPolicy struct{ teamSubject }

func (p joinPolicy) prepare(ctx context.Context, q database.Querier, actor models.CurrentUser, r *models.Request) error {
	team, err := p.teams.get(ctx, q, r.TeamID)
	if err != nil {
		return err
	}
	if err := checkStudent(actor, team); err != nil {
		return err
	}
	r.SubjectID = team.ID
	r.CounterpartyID = actor.ID
	r.ThemeID = nil
	return nil
}

func (p joinPolicy) approver(ctx context.Context, q database.Querier, r *models.Request) (uuid.UUID, error) {
	team, err := p.teams.get(ctx, q, r.TeamID)
	if err != nil {
		return uuid.Nil, err
	}
	return team.OwnerID, nil
}

func (p joinPolicy) describe() policyInfo {
	return policyInfo{label: "join request", joinedKind: models.NotifyMemberJoined}
}

// supervisionPolicy: a team owner asks a teacher to supervise a theme.
// Capacity is the theme's supervisor limit.
type supervisionPolicy struct {
	users  *UserService
	teams  *TeamService
	themes *ThemeService
}

func (p supervisionPolicy) prepare(ctx context.Context, q database.Querier, actor models.CurrentUser, r *models.Request) error {
	if r.ThemeID == nil {
		return ErrMissingTheme
	}
	if r.CounterpartyID == uuid.Nil {
		return ErrMissingCounterpart
	}
	team, err := p.teams.get(ctx, q, r.TeamID)
	if err != nil {
		return err
	}
	if team.OwnerID != actor.ID {
		return ErrNotTeamOwner
	}
	theme, err := p.themes.get(ctx, q, *r.ThemeID, false)
	if err != nil {
		return err
	}
	if theme.CohortKey != team.CohortKey {
		return ErrCohortMismatch
	}
	supervisor, err := p.users.get(ctx, q, r.CounterpartyID)
	if err != nil {
		return err
	}
	if supervisor.Role != models.UserRoleTeacher {
		return ErrWrongRole
	}
	r.SubjectID = theme.ID
	return nil
}

func (p supervisionPolicy) approver(_ context.Context, _ database.Querier, r *models.Request) (uuid.UUID, error) {
	return r.CounterpartyID, nil
}

func (p supervisionPolicy) isMember(ctx context.Context, q database.Querier, r *models.Request) (bool, error) {
	ids, err := p.themes.supervisorIDs(ctx, q, r.SubjectID)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == r.CounterpartyID {
			return true, nil
		}
	}
	return false, nil
}

func (p supervisionPolicy) hasCapacity(ctx context.Context, q database.Querier, r *models.Request, lock bool) (bool, error) {
	theme, err := p.themes.get(ctx, q, r.SubjectID, lock)
	if err != nil {
		return false, err
	}
	ids, err := p.themes.supervisorIDs(ctx, q, r.SubjectID)
	if err != nil {
		return false, err
	}
	return len(ids) < theme.MaxSupervisors, nil
}

func (p supervisionPolicy) watchers(ctx context.Context, q database.Querier, r *models.Request) ([]uuid.UUID, error) {
	return p.themes.supervisorIDs(ctx, q, r.SubjectID)
}

func (p supervisionPolicy) materialize(ctx context.Context, q database.Querier, r *models.Request) error {
	return p.themes.addSupervisor(ctx, q, r.SubjectID, r.CounterpartyID)
}

func (p supervisionPolicy) describe() policyInfo {
	return policyInfo{
		label:                  "supervision request",
		joinedKind:             models.NotifySupervisorAdded,
		notifyWatchersOnCreate: true,
	}
}
