package services

import (
	"context"
	"testing"
	"time"

	"github.com/dimitrije/cohort-api/internal/database"
	"github.com/dimitrije/cohort-api/internal/models"
	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type requestFixture struct {
	owner   models.User
	student models.User
	teacher models.User
	team    models.Team
	theme   models.Theme
}

func newRequestFixture() requestFixture {
	owner := models.User{ID: uuid.New(), Email: "owner@uni.test", Name: "Owner", GlobalRole: models.GlobalRoleUser, Role: models.UserRoleStudent, CohortKey: cohort, Eligible: true}
	student := models.User{ID: uuid.New(), Email: "student@uni.test", Name: "Student", GlobalRole: models.GlobalRoleUser, Role: models.UserRoleStudent, CohortKey: cohort, Eligible: true}
	teacher := models.User{ID: uuid.New(), Email: "teacher@uni.test", Name: "Teacher", GlobalRole: models.GlobalRoleUser, Role: models.UserRoleTeacher, CohortKey: cohort, Eligible: true}
	team := models.Team{ID: uuid.New(), Name: "Compilers", CohortKey: cohort, Capacity: 3, OwnerID: owner.ID}
	theme := models.Theme{ID: uuid.New(), Title: "Static analysis", CohortKey: cohort, Verified: true, MaxSupervisors: 2}
	return requestFixture{owner: owner, student: student, teacher: teacher, team: team, theme: theme}
}

func expectTeam(mock pgxmock.PgxPoolIface, team models.Team) {
	mock.ExpectQuery(`SELECT .+ FROM teams WHERE id = \$1`).
		WithArgs(team.ID).
		WillReturnRows(teamRow(team))
}

func expectSlots(mock pgxmock.PgxPoolIface, team models.Team, members int, lock bool) {
	pattern := `SELECT id, owner_id, capacity FROM teams WHERE id = \$1$`
	if lock {
		pattern = `SELECT id, owner_id, capacity FROM teams WHERE id = \$1 FOR UPDATE`
	}
	mock.ExpectQuery(pattern).
		WithArgs(team.ID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "owner_id", "capacity"}).AddRow(team.ID, team.OwnerID, team.Capacity))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM team_members WHERE team_id = \$1`).
		WithArgs(team.ID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(members))
}

func expectInCohort(mock pgxmock.PgxPoolIface, teamID, userID uuid.UUID, member bool) {
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(teamID, userID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(member))
}

func expectSetStatus(mock pgxmock.PgxPoolIface, requestID uuid.UUID, to models.RequestStatus) {
	now := time.Now()
	mock.ExpectQuery(`UPDATE requests SET status = \$1`).
		WithArgs(to, requestID).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at", "responded_at"}).AddRow(now, &now))
}

func expectLockRequest(mock pgxmock.PgxPoolIface, r models.Request) {
	mock.ExpectQuery(`SELECT .+ FROM requests WHERE id = \$1\s+FOR UPDATE`).
		WithArgs(r.ID).
		WillReturnRows(requestRow(r))
}

func TestRequestService_Create_Invitation(t *testing.T) {
	env := setupEnv(t)
	f := newRequestFixture()
	requestID := uuid.New()
	now := time.Now()

	env.mock.ExpectBegin()
	expectTeam(env.mock, f.team)
	env.mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
		WithArgs(f.student.ID).
		WillReturnRows(userRow(f.student))
	expectInCohort(env.mock, f.team.ID, f.student.ID, false)
	expectSlots(env.mock, f.team, 1, false)
	env.mock.ExpectQuery(`INSERT INTO requests`).
		WithArgs(models.RequestTeamInvitation, f.team.ID, f.team.ID, (*uuid.UUID)(nil), f.owner.ID, f.student.ID,
			models.RequestPending, "join us").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(requestID, now, now))
	expectRecord(env.mock)
	env.mock.ExpectCommit()

	r, err := env.requests.Create(context.Background(), f.owner.Current(), CreateRequestInput{
		Kind:           models.RequestTeamInvitation,
		TeamID:         f.team.ID,
		CounterpartyID: f.student.ID,
		Message:        "  join us ",
	})

	require.NoError(t, err)
	assert.Equal(t, requestID, r.ID)
	assert.Equal(t, models.RequestPending, r.Status)
	assert.Equal(t, f.team.ID, r.SubjectID)
	assert.Equal(t, []string{models.NotifyRequestReceived}, env.dispatcher.kinds())
	assert.Equal(t, f.student.ID, env.dispatcher.sent[0].RecipientID)
	assert.Equal(t, models.PriorityHigh, env.dispatcher.sent[0].Priority)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestRequestService_Create_DuplicateActive(t *testing.T) {
	env := setupEnv(t)
	f := newRequestFixture()

	env.mock.ExpectBegin()
	expectTeam(env.mock, f.team)
	expectInCohort(env.mock, f.team.ID, f.student.ID, false)
	expectSlots(env.mock, f.team, 1, false)
	env.mock.ExpectQuery(`INSERT INTO requests`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(uniqueViolation(database.ConstraintActiveRequest))
	env.mock.ExpectRollback()

	_, err := env.requests.Create(context.Background(), f.student.Current(), CreateRequestInput{
		Kind:   models.RequestTeamJoin,
		TeamID: f.team.ID,
	})

	assert.ErrorIs(t, err, ErrDuplicateActiveRequest)
	assert.ErrorIs(t, err, ErrStateConflict)
	assert.Empty(t, env.dispatcher.kinds())
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestRequestService_Create_NoCapacity(t *testing.T) {
	env := setupEnv(t)
	f := newRequestFixture()

	env.mock.ExpectBegin()
	expectTeam(env.mock, f.team)
	expectInCohort(env.mock, f.team.ID, f.student.ID, false)
	expectSlots(env.mock, f.team, 3, false)
	env.mock.ExpectRollback()

	_, err := env.requests.Create(context.Background(), f.student.Current(), CreateRequestInput{
		Kind:   models.RequestTeamJoin,
		TeamID: f.team.ID,
	})

	assert.ErrorIs(t, err, ErrNoCapacity)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestRequestService_Create_AlreadyInCohortTeam(t *testing.T) {
	env := setupEnv(t)
	f := newRequestFixture()

	env.mock.ExpectBegin()
	expectTeam(env.mock, f.team)
	expectInCohort(env.mock, f.team.ID, f.student.ID, true)
	env.mock.ExpectRollback()

	_, err := env.requests.Create(context.Background(), f.student.Current(), CreateRequestInput{
		Kind:   models.RequestTeamJoin,
		TeamID: f.team.ID,
	})

	assert.ErrorIs(t, err, ErrAlreadyMember)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestRequestService_Create_Validation(t *testing.T) {
	f := newRequestFixture()
	otherCohort := f.student
	otherCohort.CohortKey = "2025-siw"
	ineligible := f.student
	ineligible.Eligible = false

	tests := []struct {
		name   string
		actor  models.CurrentUser
		expect error
	}{
		{"teacher cannot join", f.teacher.Current(), ErrWrongRole},
		{"ineligible student", ineligible.Current(), ErrNotEligible},
		{"other cohort", otherCohort.Current(), ErrCohortMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupEnv(t)
			env.mock.ExpectBegin()
			expectTeam(env.mock, f.team)
			env.mock.ExpectRollback()

			_, err := env.requests.Create(context.Background(), tt.actor, CreateRequestInput{
				Kind:   models.RequestTeamJoin,
				TeamID: f.team.ID,
			})

			assert.ErrorIs(t, err, tt.expect)
			assert.ErrorIs(t, err, ErrValidation)
			assert.NoError(t, env.mock.ExpectationsWereMet())
		})
	}
}

func TestRequestService_Create_InvitationByNonOwner(t *testing.T) {
	env := setupEnv(t)
	f := newRequestFixture()

	env.mock.ExpectBegin()
	expectTeam(env.mock, f.team)
	env.mock.ExpectRollback()

	_, err := env.requests.Create(context.Background(), f.student.Current(), CreateRequestInput{
		Kind:           models.RequestTeamInvitation,
		TeamID:         f.team.ID,
		CounterpartyID: f.teacher.ID,
	})

	assert.ErrorIs(t, err, ErrNotTeamOwner)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRequestService_Create_UnknownKind(t *testing.T) {
	env := setupEnv(t)

	_, err := env.requests.Create(context.Background(), models.CurrentUser{ID: uuid.New()}, CreateRequestInput{
		Kind: "adoption",
	})

	assert.ErrorIs(t, err, ErrInvalidRequestKind)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestRequestService_Create_SupervisionNotifiesSupervisors(t *testing.T) {
	env := setupEnv(t)
	f := newRequestFixture()
	existing := uuid.New()
	now := time.Now()

	env.mock.ExpectBegin()
	expectTeam(env.mock, f.team)
	env.mock.ExpectQuery(`SELECT .+ FROM themes WHERE id = \$1$`).
		WithArgs(f.theme.ID).
		WillReturnRows(themeRow(f.theme))
	env.mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
		WithArgs(f.teacher.ID).
		WillReturnRows(userRow(f.teacher))
	env.mock.ExpectQuery(`SELECT user_id FROM theme_supervisors`).
		WithArgs(f.theme.ID).
		WillReturnRows(idRows(existing))
	env.mock.ExpectQuery(`SELECT .+ FROM themes WHERE id = \$1$`).
		WithArgs(f.theme.ID).
		WillReturnRows(themeRow(f.theme))
	env.mock.ExpectQuery(`SELECT user_id FROM theme_supervisors`).
		WithArgs(f.theme.ID).
		WillReturnRows(idRows(existing))
	env.mock.ExpectQuery(`INSERT INTO requests`).
		WithArgs(models.RequestSupervision, f.theme.ID, f.team.ID, &f.theme.ID, f.owner.ID, f.teacher.ID,
			models.RequestPending, "").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(uuid.New(), now, now))
	env.mock.ExpectQuery(`SELECT user_id FROM theme_supervisors`).
		WithArgs(f.theme.ID).
		WillReturnRows(idRows(existing))
	expectRecord(env.mock)
	expectRecord(env.mock)
	env.mock.ExpectCommit()

	r, err := env.requests.Create(context.Background(), f.owner.Current(), CreateRequestInput{
		Kind:           models.RequestSupervision,
		TeamID:         f.team.ID,
		ThemeID:        &f.theme.ID,
		CounterpartyID: f.teacher.ID,
	})

	require.NoError(t, err)
	assert.Equal(t, f.theme.ID, r.SubjectID)
	require.Len(t, env.dispatcher.sent, 2)
	assert.Equal(t, f.teacher.ID, env.dispatcher.sent[0].RecipientID)
	assert.Equal(t, existing, env.dispatcher.sent[1].RecipientID)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func joinRequest(f requestFixture, status models.RequestStatus) models.Request {
	return models.Request{
		ID:             uuid.New(),
		Kind:           models.RequestTeamJoin,
		SubjectID:      f.team.ID,
		TeamID:         f.team.ID,
		InitiatorID:    f.student.ID,
		CounterpartyID: f.student.ID,
		Status:         status,
	}
}

func TestRequestService_Accept_Join(t *testing.T) {
	env := setupEnv(t)
	f := newRequestFixture()
	teammate := uuid.New()
	req := joinRequest(f, models.RequestPending)

	env.mock.ExpectBegin()
	expectLockRequest(env.mock, req)
	expectTeam(env.mock, f.team)
	expectSlots(env.mock, f.team, 2, true)
	env.mock.ExpectQuery(`SELECT user_id FROM team_members WHERE team_id = \$1`).
		WithArgs(f.team.ID).
		WillReturnRows(idRows(f.owner.ID, teammate))
	env.mock.ExpectExec(`INSERT INTO team_members`).
		WithArgs(f.team.ID, f.student.ID, models.RoleMember).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	expectSetStatus(env.mock, req.ID, models.RequestAccepted)
	expectRecord(env.mock)
	expectRecord(env.mock)
	env.mock.ExpectCommit()

	r, err := env.requests.Accept(context.Background(), f.owner.Current(), req.ID)

	require.NoError(t, err)
	assert.Equal(t, models.RequestAccepted, r.Status)
	assert.NotNil(t, r.RespondedAt)
	assert.Equal(t, []string{models.NotifyRequestAccepted, models.NotifyMemberJoined}, env.dispatcher.kinds())
	assert.Equal(t, f.student.ID, env.dispatcher.sent[0].RecipientID)
	assert.Equal(t, teammate, env.dispatcher.sent[1].RecipientID)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

// A team that filled up after the request was created expires the request
// and the expiry is committed.
func TestRequestService_Accept_CapacityRace(t *testing.T) {
	env := setupEnv(t)
	f := newRequestFixture()
	req := joinRequest(f, models.RequestPending)

	env.mock.ExpectBegin()
	expectLockRequest(env.mock, req)
	expectTeam(env.mock, f.team)
	expectSlots(env.mock, f.team, 3, true)
	expectSetStatus(env.mock, req.ID, models.RequestExpired)
	expectRecord(env.mock)
	env.mock.ExpectCommit()

	r, err := env.requests.Accept(context.Background(), f.owner.Current(), req.ID)

	assert.ErrorIs(t, err, ErrCapacityExceeded)
	require.NotNil(t, r)
	assert.Equal(t, models.RequestExpired, r.Status)
	assert.Equal(t, []string{models.NotifyRequestExpired}, env.dispatcher.kinds())
	assert.Equal(t, f.student.ID, env.dispatcher.sent[0].RecipientID)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestRequestService_Accept_NotPending(t *testing.T) {
	env := setupEnv(t)
	f := newRequestFixture()
	req := joinRequest(f, models.RequestDeclined)

	env.mock.ExpectBegin()
	expectLockRequest(env.mock, req)
	env.mock.ExpectRollback()

	_, err := env.requests.Accept(context.Background(), f.owner.Current(), req.ID)

	assert.ErrorIs(t, err, ErrInvalidState)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestRequestService_Accept_NotApprover(t *testing.T) {
	env := setupEnv(t)
	f := newRequestFixture()
	req := joinRequest(f, models.RequestPending)

	env.mock.ExpectBegin()
	expectLockRequest(env.mock, req)
	expectTeam(env.mock, f.team)
	env.mock.ExpectRollback()

	// The requester cannot approve their own join request.
	_, err := env.requests.Accept(context.Background(), f.student.Current(), req.ID)

	assert.ErrorIs(t, err, ErrNotApprover)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestRequestService_Accept_Missing(t *testing.T) {
	env := setupEnv(t)
	id := uuid.New()

	env.mock.ExpectBegin()
	env.mock.ExpectQuery(`SELECT .+ FROM requests WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(reqCols))
	env.mock.ExpectRollback()

	_, err := env.requests.Accept(context.Background(), models.CurrentUser{ID: uuid.New()}, id)

	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func invitation(f requestFixture) models.Request {
	return models.Request{
		ID:             uuid.New(),
		Kind:           models.RequestTeamInvitation,
		SubjectID:      f.team.ID,
		TeamID:         f.team.ID,
		InitiatorID:    f.owner.ID,
		CounterpartyID: f.student.ID,
		Status:         models.RequestPending,
	}
}

func TestRequestService_Decline(t *testing.T) {
	env := setupEnv(t)
	f := newRequestFixture()
	req := invitation(f)

	env.mock.ExpectBegin()
	expectLockRequest(env.mock, req)
	expectSetStatus(env.mock, req.ID, models.RequestDeclined)
	expectRecord(env.mock)
	env.mock.ExpectCommit()

	r, err := env.requests.Decline(context.Background(), f.student.Current(), req.ID)

	require.NoError(t, err)
	assert.Equal(t, models.RequestDeclined, r.Status)
	assert.Equal(t, []string{models.NotifyRequestDeclined}, env.dispatcher.kinds())
	assert.Equal(t, f.owner.ID, env.dispatcher.sent[0].RecipientID)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestRequestService_Cancel(t *testing.T) {
	env := setupEnv(t)
	f := newRequestFixture()
	req := invitation(f)

	env.mock.ExpectBegin()
	expectLockRequest(env.mock, req)
	expectSetStatus(env.mock, req.ID, models.RequestCancelled)
	expectRecord(env.mock)
	env.mock.ExpectCommit()

	r, err := env.requests.Cancel(context.Background(), f.owner.Current(), req.ID)

	require.NoError(t, err)
	assert.Equal(t, models.RequestCancelled, r.Status)
	assert.Equal(t, f.student.ID, env.dispatcher.sent[0].RecipientID)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestRequestService_Cancel_NotInitiator(t *testing.T) {
	env := setupEnv(t)
	f := newRequestFixture()
	req := invitation(f)

	env.mock.ExpectBegin()
	expectLockRequest(env.mock, req)
	env.mock.ExpectRollback()

	_, err := env.requests.Cancel(context.Background(), f.student.Current(), req.ID)

	assert.ErrorIs(t, err, ErrNotInitiator)
	assert.Empty(t, env.dispatcher.kinds())
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestRequestService_Get_HiddenFromOutsiders(t *testing.T) {
	env := setupEnv(t)
	f := newRequestFixture()
	req := invitation(f)

	env.mock.ExpectQuery(`SELECT .+ FROM requests WHERE id = \$1`).
		WithArgs(req.ID).
		WillReturnRows(requestRow(req))

	_, err := env.requests.Get(context.Background(), models.CurrentUser{ID: uuid.New(), Role: models.UserRoleStudent}, req.ID)

	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestRequestService_Get_AdminSeesAll(t *testing.T) {
	env := setupEnv(t)
	f := newRequestFixture()
	req := invitation(f)

	env.mock.ExpectQuery(`SELECT .+ FROM requests WHERE id = \$1`).
		WithArgs(req.ID).
		WillReturnRows(requestRow(req))

	r, err := env.requests.Get(context.Background(), models.CurrentUser{ID: uuid.New(), GlobalRole: models.GlobalRoleSuperAdmin}, req.ID)

	require.NoError(t, err)
	assert.Equal(t, req.ID, r.ID)
}

func TestRequestService_ListPending_Incoming(t *testing.T) {
	env := setupEnv(t)
	f := newRequestFixture()
	req := joinRequest(f, models.RequestPending)

	env.mock.ExpectQuery(`kind = 'team_join' AND team_id IN`).
		WithArgs(models.RequestPending, f.owner.ID).
		WillReturnRows(requestRow(req))

	list, err := env.requests.ListPending(context.Background(), f.owner.Current(), true)

	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, req.ID, list[0].ID)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestDistinct(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	assert.Equal(t, []uuid.UUID{b, c}, distinct([]uuid.UUID{a, b, b, c, a}, a))
	assert.Empty(t, distinct(nil))
}
