package middleware

import (
	"context"
	"strings"

	"github.com/dimitrije/cohort-api/internal/models"
	"github.com/dimitrije/cohort-api/internal/services"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
)

const (
	UserIDKey      = "user_id"
	UserEmailKey   = "user_email"
	GlobalRoleKey  = "global_role"
	CurrentUserKey = "current_user"
)

func Auth(jwtService *services.JWTService) drift.HandlerFunc {
	return func(c *drift.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Unauthorized("missing authorization header")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
			c.Unauthorized("invalid authorization header format")
			c.Abort()
			return
		}

		claims, err := jwtService.ValidateAccessToken(parts[1])
		if err != nil {
			c.Unauthorized("invalid or expired token")
			c.Abort()
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(UserEmailKey, claims.Email)
		c.Set(GlobalRoleKey, claims.GlobalRole)

		c.Next()
	}
}

type UserLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// LoadUser resolves the authenticated user's academic identity (role,
// cohort, eligibility) for the workflow calls. It must run after Auth.
func LoadUser(users UserLoader) drift.HandlerFunc {
	return func(c *drift.Context) {
		userID := GetUserID(c)
		if userID == uuid.Nil {
			c.Unauthorized("not authenticated")
			c.Abort()
			return
		}

		user, err := users.GetByID(c.Request.Context(), userID)
		if err != nil {
			c.Unauthorized("user not found")
			c.Abort()
			return
		}

		c.Set(CurrentUserKey, user.Current())
		c.Next()
	}
}

// RequireAdmin rejects users that are neither super admins nor cohort
// admins. It must run after LoadUser.
func RequireAdmin() drift.HandlerFunc {
	return func(c *drift.Context) {
		user, ok := GetCurrentUser(c)
		if !ok || !user.IsAdmin() {
			c.Forbidden("admin access required")
			c.Abort()
			return
		}
		c.Next()
	}
}

func GetUserID(c *drift.Context) uuid.UUID {
	if id, ok := c.Get(UserIDKey); ok {
		if uid, ok := id.(uuid.UUID); ok {
			return uid
		}
	}
	return uuid.Nil
}

func GetUserEmail(c *drift.Context) string {
	if email, ok := c.Get(UserEmailKey); ok {
		if e, ok := email.(string); ok {
			return e
		}
	}
	return ""
}

func GetCurrentUser(c *drift.Context) (models.CurrentUser, bool) {
	if v, ok := c.Get(CurrentUserKey); ok {
		if u, ok := v.(models.CurrentUser); ok {
			return u, true
		}
	}
	return models.CurrentUser{}, false
}
