package services

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/dimitrije/cohort-api/internal/database"
	"github.com/dimitrije/cohort-api/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (d *recordingDispatcher) Dispatch(_ context.Context, notifications ...models.Notification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, notifications...)
}

func (d *recordingDispatcher) kinds() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, n := range d.sent {
		out = append(out, n.Kind)
	}
	return out
}

type fakeScheduler struct {
	scheduled   map[string]time.Time
	unscheduled []string
	err         error
}

func (f *fakeScheduler) Schedule(_ context.Context, phaseKey string, at time.Time) error {
	if f.err != nil {
		return f.err
	}
	if f.scheduled == nil {
		f.scheduled = map[string]time.Time{}
	}
	f.scheduled[phaseKey] = at
	return nil
}

func (f *fakeScheduler) Unschedule(_ context.Context, phaseKey string) error {
	if f.err != nil {
		return f.err
	}
	delete(f.scheduled, phaseKey)
	f.unscheduled = append(f.unscheduled, phaseKey)
	return nil
}

// testEnv wires every service onto one pgxmock pool.
type testEnv struct {
	mock          pgxmock.PgxPoolIface
	dispatcher    *recordingDispatcher
	scheduler     *fakeScheduler
	users         *UserService
	teams         *TeamService
	themes        *ThemeService
	notifications *NotificationService
	requests      *RequestService
	assignments   *AssignmentService
	phases        *PhaseService
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	db := &database.DB{Pool: mock}
	logger := zap.NewNop()
	env := &testEnv{
		mock:       mock,
		dispatcher: &recordingDispatcher{},
		scheduler:  &fakeScheduler{},
	}
	env.users = NewUserService(db)
	env.teams = NewTeamService(db)
	env.themes = NewThemeService(db)
	env.notifications = NewNotificationService(db, "https://cohort.test/")
	env.requests = NewRequestService(db, env.users, env.teams, env.themes, env.notifications, env.dispatcher, logger)
	env.assignments = NewAssignmentService(env.teams, env.themes, env.notifications, logger)
	env.assignments.newRand = func() *rand.Rand { return rand.New(rand.NewPCG(1, 2)) }
	env.phases = NewPhaseService(db, env.scheduler, env.users, env.assignments, env.notifications, env.dispatcher, logger)
	return env
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint}
}

var (
	userCols  = []string{"id", "email", "name", "global_role", "role", "cohort_key", "eligible", "created_at", "updated_at"}
	teamCols  = []string{"id", "name", "cohort_key", "capacity", "owner_id", "created_at", "updated_at"}
	themeCols = []string{"id", "title", "cohort_key", "verified", "max_groups", "max_supervisors", "proposed_by_team", "created_at", "updated_at"}
	reqCols   = []string{"id", "kind", "subject_id", "team_id", "theme_id", "initiator_id", "counterparty_id", "status", "message", "created_at", "updated_at", "responded_at"}
	phaseCols = []string{"id", "key", "kind", "cohort_key", "starts_at", "ends_at", "active", "processed", "created_at", "updated_at"}
)

func userRow(u models.User) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows(userCols).
		AddRow(u.ID, u.Email, u.Name, u.GlobalRole, u.Role, u.CohortKey, u.Eligible, now, now)
}

func teamRow(t models.Team) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows(teamCols).
		AddRow(t.ID, t.Name, t.CohortKey, t.Capacity, t.OwnerID, now, now)
}

func themeRow(t models.Theme) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows(themeCols).
		AddRow(t.ID, t.Title, t.CohortKey, t.Verified, nullable(t.MaxGroups), t.MaxSupervisors, nullable(t.ProposedByTeam), now, now)
}

func requestRow(r models.Request) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows(reqCols).
		AddRow(r.ID, string(r.Kind), r.SubjectID, r.TeamID, nullable(r.ThemeID), r.InitiatorID, r.CounterpartyID,
			string(r.Status), r.Message, now, now, nullable(r.RespondedAt))
}

// nullable turns a typed nil pointer into an untyped nil column.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return p
}

func idRows(ids ...uuid.UUID) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{"id"})
	for _, id := range ids {
		rows.AddRow(id)
	}
	return rows
}

// expectRecord expects one notification insert.
func expectRecord(mock pgxmock.PgxPoolIface) {
	mock.ExpectQuery(`INSERT INTO notifications`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(uuid.New(), time.Now()))
}

const cohort = "2026-siw"
