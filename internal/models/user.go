package models

import (
	"time"

	"github.com/google/uuid"
)

// Global user roles (platform-wide permissions)
const (
	GlobalRoleSuperAdmin = "super_admin"
	GlobalRoleUser       = "user"
)

// Academic roles within a cohort.
const (
	UserRoleStudent = "student"
	UserRoleTeacher = "teacher"
	UserRoleAdmin   = "admin"
)

type User struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	GlobalRole string    `json:"global_role"`
	Role       string    `json:"role"`
	CohortKey  string    `json:"cohort_key"`
	Eligible   bool      `json:"eligible"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CurrentUser is the identity fact every workflow call is made on behalf of.
// The core never mutates it.
type CurrentUser struct {
	ID         uuid.UUID
	Role       string
	GlobalRole string
	CohortKey  string
	Eligible   bool
}

func (u *User) Current() CurrentUser {
	return CurrentUser{
		ID:         u.ID,
		Role:       u.Role,
		GlobalRole: u.GlobalRole,
		CohortKey:  u.CohortKey,
		Eligible:   u.Eligible,
	}
}

func (c CurrentUser) IsAdmin() bool {
	return c.GlobalRole == GlobalRoleSuperAdmin || c.Role == UserRoleAdmin
}
