package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dimitrije/cohort-api/internal/database"
	"github.com/dimitrije/cohort-api/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const teamColumns = `id, name, cohort_key, capacity, owner_id, created_at, updated_at`

// TeamService is the team capacity oracle and membership primitive used by
// the request workflow and the batch engine.
type TeamService struct {
	db *database.DB
}

func NewTeamService(db *database.DB) *TeamService {
	return &TeamService{db: db}
}

// Create inserts a team together with its owner membership.
func (s *TeamService) Create(ctx context.Context, name, cohortKey string, capacity int, ownerID uuid.UUID) (*models.Team, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive", ErrValidation)
	}

	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var team models.Team
	err = tx.QueryRow(ctx, `
		INSERT INTO teams (name, cohort_key, capacity, owner_id)
		VALUES ($1, $2, $3, $4)
		RETURNING `+teamColumns,
		name, cohortKey, capacity, ownerID,
	).Scan(&team.ID, &team.Name, &team.CohortKey, &team.Capacity, &team.OwnerID, &team.CreatedAt, &team.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create team: %w", err)
	}

	if err := s.addMember(ctx, tx, team.ID, ownerID, models.RoleOwner); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &team, nil
}

func (s *TeamService) GetByID(ctx context.Context, teamID uuid.UUID) (*models.Team, error) {
	return s.get(ctx, s.db.Pool, teamID)
}

func (s *TeamService) get(ctx context.Context, q database.Querier, teamID uuid.UUID) (*models.Team, error) {
	var team models.Team
	err := q.QueryRow(ctx, `
		SELECT `+teamColumns+`
		FROM teams WHERE id = $1
	`, teamID).Scan(&team.ID, &team.Name, &team.CohortKey, &team.Capacity, &team.OwnerID, &team.CreatedAt, &team.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, err
	}
	return &team, nil
}

// slots reads capacity and the live member count. With lock the team row is
// held FOR UPDATE until the caller's transaction ends, which serializes
// every writer that changes the team's membership.
func (s *TeamService) slots(ctx context.Context, q database.Querier, teamID uuid.UUID, lock bool) (models.TeamSlots, error) {
	query := `SELECT id, owner_id, capacity FROM teams WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	var slots models.TeamSlots
	err := q.QueryRow(ctx, query, teamID).Scan(&slots.TeamID, &slots.OwnerID, &slots.Capacity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return slots, ErrTeamNotFound
		}
		return slots, err
	}

	err = q.QueryRow(ctx, `
		SELECT COUNT(*) FROM team_members WHERE team_id = $1
	`, teamID).Scan(&slots.Members)
	return slots, err
}

// inCohort reports whether the user already belongs to any team of the
// team's cohort.
func (s *TeamService) inCohort(ctx context.Context, q database.Querier, teamID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM team_members tm
			JOIN teams t ON t.cohort_key = tm.cohort_key
			WHERE t.id = $1 AND tm.user_id = $2
		)
	`, teamID, userID).Scan(&exists)
	return exists, err
}

func (s *TeamService) memberIDs(ctx context.Context, q database.Querier, teamID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx, `
		SELECT user_id FROM team_members WHERE team_id = $1 ORDER BY created_at
	`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// addMember inserts a membership, copying the cohort from the team. The
// per-cohort uniqueness constraint turns a second team into ErrAlreadyMember.
func (s *TeamService) addMember(ctx context.Context, q database.Querier, teamID, userID uuid.UUID, role string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO team_members (team_id, user_id, cohort_key, role)
		SELECT id, $2, cohort_key, $3 FROM teams WHERE id = $1
	`, teamID, userID, role)
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return ErrAlreadyMember
		}
		return fmt.Errorf("failed to add team member: %w", err)
	}
	return nil
}

func (s *TeamService) GetMembers(ctx context.Context, teamID uuid.UUID) ([]models.TeamMember, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT id, team_id, user_id, cohort_key, role, created_at
		FROM team_members
		WHERE team_id = $1
		ORDER BY created_at
	`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []models.TeamMember{}
	for rows.Next() {
		var m models.TeamMember
		if err := rows.Scan(&m.ID, &m.TeamID, &m.UserID, &m.CohortKey, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
