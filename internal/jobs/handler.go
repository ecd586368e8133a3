package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dimitrije/cohort-api/internal/services"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type PhaseFirer interface {
	Fire(ctx context.Context, phaseKey string) (*services.FireResult, error)
}

// PhaseExpiryHandler fires the phase named in the task payload. Every
// failure is archived without retry.
type PhaseExpiryHandler struct {
	phases PhaseFirer
	logger *zap.Logger
}

func NewPhaseExpiryHandler(phases PhaseFirer, logger *zap.Logger) *PhaseExpiryHandler {
	return &PhaseExpiryHandler{phases: phases, logger: logger}
}

func (h *PhaseExpiryHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload PhaseExpiryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.PhaseKey == "" {
		return fmt.Errorf("task payload has no phase key: %w", asynq.SkipRetry)
	}

	res, err := h.phases.Fire(ctx, payload.PhaseKey)
	if err != nil {
		h.logger.Error("phase trigger failed",
			zap.String("phase", payload.PhaseKey),
			zap.Error(err))
		return fmt.Errorf("phase %s: %v: %w", payload.PhaseKey, err, asynq.SkipRetry)
	}

	if !res.Ran {
		h.logger.Debug("phase trigger was a no-op",
			zap.String("phase", payload.PhaseKey),
			zap.String("reason", res.Skipped))
	}
	return nil
}
