package services

import (
	"context"
	"testing"

	"github.com/dimitrije/cohort-api/internal/database"
	"github.com/dimitrije/cohort-api/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupUserService(t *testing.T) (*UserService, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	db := &database.DB{Pool: mock}
	return NewUserService(db), mock
}

func TestUserService_GetByID(t *testing.T) {
	svc, mock := setupUserService(t)
	ctx := context.Background()
	user := models.User{
		ID:         uuid.New(),
		Email:      "test@example.com",
		Name:       "Test User",
		GlobalRole: models.GlobalRoleUser,
		Role:       models.UserRoleStudent,
		CohortKey:  cohort,
		Eligible:   true,
	}

	mock.ExpectQuery(`SELECT .+ FROM users WHERE id`).
		WithArgs(user.ID).
		WillReturnRows(userRow(user))

	got, err := svc.GetByID(ctx, user.ID)

	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, user.Email, got.Email)
	assert.Equal(t, models.UserRoleStudent, got.Role)
	assert.True(t, got.Eligible)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserService_GetByID_NotFound(t *testing.T) {
	svc, mock := setupUserService(t)
	ctx := context.Background()
	userID := uuid.New()

	mock.ExpectQuery(`SELECT .+ FROM users WHERE id`).
		WithArgs(userID).
		WillReturnError(pgx.ErrNoRows)

	_, err := svc.GetByID(ctx, userID)

	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserService_SuperAdminIDs(t *testing.T) {
	svc, mock := setupUserService(t)
	ctx := context.Background()
	first, second := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT id FROM users WHERE global_role = \$1`).
		WithArgs(models.GlobalRoleSuperAdmin).
		WillReturnRows(idRows(first, second))

	ids, err := svc.SuperAdminIDs(ctx, mock)

	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{first, second}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserService_PromoteSuperAdmin(t *testing.T) {
	svc, mock := setupUserService(t)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE users SET global_role = \$1`).
		WithArgs(models.GlobalRoleSuperAdmin, "dean@example.com").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := svc.PromoteSuperAdmin(ctx, "  Dean@Example.com ")

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserService_PromoteSuperAdmin_Errors(t *testing.T) {
	svc, mock := setupUserService(t)
	ctx := context.Background()

	err := svc.PromoteSuperAdmin(ctx, "   ")
	assert.ErrorIs(t, err, ErrValidation)

	mock.ExpectExec(`UPDATE users SET global_role = \$1`).
		WithArgs(models.GlobalRoleSuperAdmin, "ghost@example.com").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = svc.PromoteSuperAdmin(ctx, "ghost@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
