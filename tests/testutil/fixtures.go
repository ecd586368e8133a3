package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dimitrije/cohort-api/internal/database"
	"github.com/dimitrije/cohort-api/internal/models"
	"github.com/dimitrije/cohort-api/internal/services"
	"github.com/google/uuid"
)

// DefaultCohort is the cohort fixtures land in unless told otherwise
const DefaultCohort = "2026-test"

// Fixtures provides factory methods for creating test data
type Fixtures struct {
	db      *database.DB
	counter int
}

// NewFixtures creates a new fixtures factory
func NewFixtures(db *database.DB) *Fixtures {
	return &Fixtures{db: db}
}

// CreateUser creates an eligible student in DefaultCohort
func (f *Fixtures) CreateUser(t *testing.T, opts ...UserOption) *models.User {
	t.Helper()
	f.counter++

	user := &models.User{
		Email:      fmt.Sprintf("user%d@example.com", f.counter),
		Name:       fmt.Sprintf("Test User %d", f.counter),
		GlobalRole: models.GlobalRoleUser,
		Role:       models.UserRoleStudent,
		CohortKey:  DefaultCohort,
		Eligible:   true,
	}

	for _, opt := range opts {
		opt(user)
	}

	ctx := context.Background()
	err := f.db.Pool.QueryRow(ctx, `
		INSERT INTO users (email, name, global_role, role, cohort_key, eligible)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, user.Email, user.Name, user.GlobalRole, user.Role, user.CohortKey, user.Eligible,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	return user
}

// UserOption configures a test user
type UserOption func(*models.User)

// WithEmail sets the user's email
func WithEmail(email string) UserOption {
	return func(u *models.User) {
		u.Email = email
	}
}

// WithRole sets the user's academic role
func WithRole(role string) UserOption {
	return func(u *models.User) {
		u.Role = role
	}
}

// WithCohort sets the user's cohort
func WithCohort(cohortKey string) UserOption {
	return func(u *models.User) {
		u.CohortKey = cohortKey
	}
}

// Ineligible marks the user as not eligible for requests or batches
func Ineligible() UserOption {
	return func(u *models.User) {
		u.Eligible = false
	}
}

// SuperAdmin grants the platform-wide admin role
func SuperAdmin() UserOption {
	return func(u *models.User) {
		u.GlobalRole = models.GlobalRoleSuperAdmin
		u.Role = models.UserRoleAdmin
	}
}

// CreateTeam creates a team in the owner's cohort with the owner as member
func (f *Fixtures) CreateTeam(t *testing.T, owner *models.User, capacity int) *models.Team {
	t.Helper()
	f.counter++

	team, err := services.NewTeamService(f.db).Create(context.Background(),
		fmt.Sprintf("Test Team %d", f.counter), owner.CohortKey, capacity, owner.ID)
	if err != nil {
		t.Fatalf("failed to create team: %v", err)
	}
	return team
}

// AddTeamMember adds a member to a team
func (f *Fixtures) AddTeamMember(t *testing.T, team *models.Team, user *models.User) {
	t.Helper()
	ctx := context.Background()

	_, err := f.db.Pool.Exec(ctx, `
		INSERT INTO team_members (team_id, user_id, cohort_key, role)
		VALUES ($1, $2, $3, $4)
	`, team.ID, user.ID, team.CohortKey, models.RoleMember)
	if err != nil {
		t.Fatalf("failed to add team member: %v", err)
	}
}

// CreateTheme creates a verified theme. maxGroups of zero means unlimited.
func (f *Fixtures) CreateTheme(t *testing.T, cohortKey string, maxGroups, maxSupervisors int) *models.Theme {
	t.Helper()
	f.counter++

	theme := &models.Theme{
		Title:          fmt.Sprintf("Test Theme %d", f.counter),
		CohortKey:      cohortKey,
		Verified:       true,
		MaxSupervisors: maxSupervisors,
	}
	if maxGroups > 0 {
		theme.MaxGroups = &maxGroups
	}

	ctx := context.Background()
	err := f.db.Pool.QueryRow(ctx, `
		INSERT INTO themes (title, cohort_key, verified, max_groups, max_supervisors)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, theme.Title, theme.CohortKey, theme.Verified, theme.MaxGroups, theme.MaxSupervisors,
	).Scan(&theme.ID, &theme.CreatedAt, &theme.UpdatedAt)
	if err != nil {
		t.Fatalf("failed to create theme: %v", err)
	}

	return theme
}

// AssignTheme links a theme to a team
func (f *Fixtures) AssignTheme(t *testing.T, team *models.Team, theme *models.Theme) {
	t.Helper()
	_, err := f.db.Pool.Exec(context.Background(), `
		INSERT INTO team_themes (team_id, theme_id) VALUES ($1, $2)
	`, team.ID, theme.ID)
	if err != nil {
		t.Fatalf("failed to assign theme: %v", err)
	}
}

// CreatePhase inserts a phase row directly, bypassing the scheduler
func (f *Fixtures) CreatePhase(t *testing.T, kind models.PhaseKind, cohortKey string, startsAt time.Time, endsAt *time.Time) *models.Phase {
	t.Helper()
	f.counter++

	phase := &models.Phase{
		Key:       fmt.Sprintf("phase-%d-%s", f.counter, uuid.NewString()[:8]),
		Kind:      kind,
		CohortKey: cohortKey,
		StartsAt:  startsAt,
		EndsAt:    endsAt,
		Active:    true,
	}

	err := f.db.Pool.QueryRow(context.Background(), `
		INSERT INTO phases (key, kind, cohort_key, starts_at, ends_at, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, processed, created_at, updated_at
	`, phase.Key, phase.Kind, phase.CohortKey, phase.StartsAt, phase.EndsAt, phase.Active,
	).Scan(&phase.ID, &phase.Processed, &phase.CreatedAt, &phase.UpdatedAt)
	if err != nil {
		t.Fatalf("failed to create phase: %v", err)
	}

	return phase
}

// CountRows counts rows matching a WHERE clause
func (f *Fixtures) CountRows(t *testing.T, table, where string, args ...any) int {
	t.Helper()
	var n int
	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	if err := f.db.Pool.QueryRow(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatalf("failed to count %s: %v", table, err)
	}
	return n
}
