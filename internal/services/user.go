package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dimitrije/cohort-api/internal/database"
	"github.com/dimitrije/cohort-api/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, email, name, global_role, role, cohort_key, eligible, created_at, updated_at`

// UserService reads the identity collaborator's projection of users. The
// request and batch flows never write to it; PromoteSuperAdmin is for
// operators only.
type UserService struct {
	db *database.DB
}

func NewUserService(db *database.DB) *UserService {
	return &UserService{db: db}
}

func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.get(ctx, s.db.Pool, id)
}

func (s *UserService) get(ctx context.Context, q database.Querier, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := q.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users WHERE id = $1
	`, id).Scan(
		&user.ID, &user.Email, &user.Name, &user.GlobalRole, &user.Role,
		&user.CohortKey, &user.Eligible, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// PromoteSuperAdmin grants the global super admin role by email.
func (s *UserService) PromoteSuperAdmin(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}

	result, err := s.db.Pool.Exec(ctx, `
		UPDATE users SET global_role = $1, updated_at = NOW()
		WHERE lower(email) = $2
	`, models.GlobalRoleSuperAdmin, email)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SuperAdminIDs lists the recipients of phase run reports.
func (s *UserService) SuperAdminIDs(ctx context.Context, q database.Querier) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx, `
		SELECT id FROM users WHERE global_role = $1 ORDER BY created_at
	`, models.GlobalRoleSuperAdmin)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func scanIDs(rows pgx.Rows) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
