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

const themeColumns = `id, title, cohort_key, verified, max_groups, max_supervisors, proposed_by_team, created_at, updated_at`

type ThemeService struct {
	db *database.DB
}

func NewThemeService(db *database.DB) *ThemeService {
	return &ThemeService{db: db}
}

// get with lock holds the theme row FOR UPDATE, serializing supervisor
// acceptances for the theme.
func (s *ThemeService) get(ctx context.Context, q database.Querier, themeID uuid.UUID, lock bool) (*models.Theme, error) {
	query := `SELECT ` + themeColumns + ` FROM themes WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	var theme models.Theme
	err := q.QueryRow(ctx, query, themeID).Scan(
		&theme.ID, &theme.Title, &theme.CohortKey, &theme.Verified, &theme.MaxGroups,
		&theme.MaxSupervisors, &theme.ProposedByTeam, &theme.CreatedAt, &theme.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrThemeNotFound
		}
		return nil, err
	}
	return &theme, nil
}

func (s *ThemeService) supervisorIDs(ctx context.Context, q database.Querier, themeID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx, `
		SELECT user_id FROM theme_supervisors WHERE theme_id = $1 ORDER BY created_at
	`, themeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (s *ThemeService) addSupervisor(ctx context.Context, q database.Querier, themeID, userID uuid.UUID) error {
	_, err := q.Exec(ctx, `
		INSERT INTO theme_supervisors (theme_id, user_id) VALUES ($1, $2)
	`, themeID, userID)
	if err != nil {
		if database.IsUniqueViolation(err, database.ConstraintSupervisor) {
			return ErrAlreadyMember
		}
		return fmt.Errorf("failed to add supervisor: %w", err)
	}
	return nil
}

// assignToTeam records a batch theme assignment.
func (s *ThemeService) assignToTeam(ctx context.Context, q database.Querier, teamID, themeID uuid.UUID) error {
	_, err := q.Exec(ctx, `
		INSERT INTO team_themes (team_id, theme_id) VALUES ($1, $2)
	`, teamID, themeID)
	if err != nil {
		if database.IsUniqueViolation(err, database.ConstraintThemePerTeam) {
			return ErrThemeAlreadyAssigned
		}
		return fmt.Errorf("failed to assign theme: %w", err)
	}
	return nil
}
