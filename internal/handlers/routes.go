package handlers

import (
	"github.com/dimitrije/cohort-api/internal/middleware"
	"github.com/dimitrije/cohort-api/internal/services"
	"github.com/m1z23r/drift/pkg/drift"
)

// Routes is the API route table.
type Routes struct {
	JWT           *services.JWTService
	Users         middleware.UserLoader
	User          *UserHandler
	Requests      *RequestHandler
	Phases        *PhaseHandler
	Notifications *NotificationHandler
}

// Register mounts every route under api. The drift tree panics when a static
// segment and a :param share a position, so collection-wide actions use the
// collection path with their own method.
func (r Routes) Register(api *drift.RouterGroup) {
	api.Get("/health", func(c *drift.Context) {
		_ = c.JSON(200, map[string]string{"status": "ok"})
	})

	// The WebSocket authenticates with a query token before upgrading.
	api.Get("/ws/notifications", r.Notifications.Connect)

	protected := api.Group("")
	protected.Use(middleware.Auth(r.JWT))
	protected.Use(middleware.LoadUser(r.Users))

	protected.Get("/users/me", r.User.GetMe)

	protected.Get("/requests", r.Requests.List)
	protected.Post("/requests", r.Requests.Create)
	protected.Get("/requests/:id", r.Requests.Get)
	protected.Post("/requests/:id/accept", r.Requests.Accept)
	protected.Post("/requests/:id/decline", r.Requests.Decline)
	protected.Post("/requests/:id/cancel", r.Requests.Cancel)

	protected.Get("/notifications", r.Notifications.List)
	protected.Patch("/notifications", r.Notifications.MarkAllRead)
	protected.Get("/notifications/stream", r.Notifications.Stream)
	protected.Post("/notifications/:id/read", r.Notifications.MarkRead)
	protected.Post("/notifications/:id/archive", r.Notifications.Archive)

	admin := protected.Group("/admin")
	admin.Use(middleware.RequireAdmin())

	admin.Post("/phases", r.Phases.Create)
	admin.Get("/phases/:key", r.Phases.Get)
	admin.Patch("/phases/:key", r.Phases.Update)
	admin.Post("/phases/:key/run", r.Phases.Run)
}
