package handlers

import (
	"errors"
	"strings"

	"github.com/dimitrije/cohort-api/internal/services"
	"github.com/m1z23r/drift/pkg/drift"
	"go.uber.org/zap"
)

// respondError maps a service error onto an HTTP status by category. The
// category prefix ("state conflict: ...") is stripped from the message the
// client sees.
func respondError(c *drift.Context, logger *zap.Logger, err error, op string) {
	switch {
	case errors.Is(err, services.ErrValidation):
		c.BadRequest(clientMessage(err, services.ErrValidation))
	case errors.Is(err, services.ErrNotFound):
		if what, ok := detail(err, services.ErrNotFound); ok {
			c.NotFound(what + " not found")
			return
		}
		c.NotFound("not found")
	case errors.Is(err, services.ErrUnauthorized):
		c.Forbidden(clientMessage(err, services.ErrUnauthorized))
	case errors.Is(err, services.ErrStateConflict):
		_ = c.JSON(409, map[string]string{
			"error": clientMessage(err, services.ErrStateConflict),
		})
	case errors.Is(err, services.ErrTransientInfra):
		logger.Warn(op+" failed", zap.Error(err))
		_ = c.JSON(503, map[string]string{"error": "service temporarily unavailable"})
	default:
		logger.Error(op+" failed", zap.Error(err))
		c.InternalServerError("failed to " + op)
	}
}

func clientMessage(err, category error) string {
	if msg, ok := detail(err, category); ok {
		return msg
	}
	return category.Error()
}

// detail returns the text after the last "<category>: " in err's message.
func detail(err, category error) (string, bool) {
	msg := err.Error()
	prefix := category.Error() + ": "
	if i := strings.LastIndex(msg, prefix); i >= 0 {
		return msg[i+len(prefix):], true
	}
	return "", false
}
