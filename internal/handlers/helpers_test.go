package handlers

import (
	"testing"

	"github.com/dimitrije/cohort-api/internal/models"
	"github.com/dimitrije/cohort-api/tests/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

const testCohort = "2026-siw"

func newStudent() *models.User {
	return &models.User{
		ID:         uuid.New(),
		Email:      "student@example.com",
		Name:       "Student",
		GlobalRole: models.GlobalRoleUser,
		Role:       models.UserRoleStudent,
		CohortKey:  testCohort,
		Eligible:   true,
	}
}

func newAdmin() *models.User {
	u := newStudent()
	u.Email = "admin@example.com"
	u.Role = models.UserRoleAdmin
	return u
}

// loggedIn registers the user with the mock and returns auth headers for it.
func loggedIn(t *testing.T, users *testutil.MockUserService, user *models.User) map[string]string {
	t.Helper()
	users.On("GetByID", mock.Anything, user.ID).Return(user, nil)
	return map[string]string{
		"Authorization": testutil.AuthHeader(testutil.GenerateTestToken(t, user)),
	}
}
