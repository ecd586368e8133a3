package handlers

import (
	"time"

	"github.com/dimitrije/cohort-api/internal/middleware"
	"github.com/dimitrije/cohort-api/internal/models"
	"github.com/dimitrije/cohort-api/internal/services"
	"github.com/dimitrije/cohort-api/pkg/dto"
	"github.com/m1z23r/drift/pkg/drift"
	"go.uber.org/zap"
)

// PhaseHandler serves the admin-only phase endpoints.
type PhaseHandler struct {
	phaseService PhaseServiceInterface
	logger       *zap.Logger
	now          func() time.Time
}

func NewPhaseHandler(phaseService PhaseServiceInterface, logger *zap.Logger) *PhaseHandler {
	return &PhaseHandler{
		phaseService: phaseService,
		logger:       logger.Named("phases"),
		now:          time.Now,
	}
}

func (h *PhaseHandler) Create(c *drift.Context) {
	var req dto.CreatePhaseRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}
	if req.Key == "" {
		c.BadRequest("key is required")
		return
	}
	if req.CohortKey == "" {
		c.BadRequest("cohort_key is required")
		return
	}
	if req.StartsAt.IsZero() {
		c.BadRequest("starts_at is required")
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	phase, err := h.phaseService.Create(c.Request.Context(), services.CreatePhaseInput{
		Key:       req.Key,
		Kind:      models.PhaseKind(req.Kind),
		CohortKey: req.CohortKey,
		StartsAt:  req.StartsAt,
		EndsAt:    req.EndsAt,
		Active:    active,
	})
	if err != nil {
		respondError(c, h.logger, err, "create phase")
		return
	}

	_ = c.JSON(201, h.toResponse(phase))
}

func (h *PhaseHandler) Update(c *drift.Context) {
	var req dto.UpdatePhaseRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}
	if req.ClearEndsAt && req.EndsAt != nil {
		c.BadRequest("ends_at and clear_ends_at are mutually exclusive")
		return
	}

	phase, err := h.phaseService.Update(c.Request.Context(), c.Param("key"), services.UpdatePhaseInput{
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		ClearEndsAt: req.ClearEndsAt,
		Active:      req.Active,
	})
	if err != nil {
		respondError(c, h.logger, err, "update phase")
		return
	}

	_ = c.JSON(200, h.toResponse(phase))
}

func (h *PhaseHandler) Get(c *drift.Context) {
	phase, err := h.phaseService.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		respondError(c, h.logger, err, "get phase")
		return
	}

	_ = c.JSON(200, h.toResponse(phase))
}

// Run fires the phase trigger by hand. It is idempotent: a phase that
// already ran, or has not expired yet, reports why nothing happened.
func (h *PhaseHandler) Run(c *drift.Context) {
	key := c.Param("key")
	result, err := h.phaseService.Fire(c.Request.Context(), key)
	if err != nil {
		respondError(c, h.logger, err, "run phase")
		return
	}

	h.logger.Info("phase run requested",
		zap.String("phase", key),
		zap.String("by", middleware.GetUserEmail(c)),
		zap.Bool("ran", result.Ran))

	_ = c.JSON(200, result)
}

func (h *PhaseHandler) toResponse(p *models.Phase) dto.PhaseResponse {
	response := dto.PhaseResponse{
		ID:        p.ID,
		Key:       p.Key,
		Kind:      string(p.Kind),
		CohortKey: p.CohortKey,
		StartsAt:  p.StartsAt.Format(time.RFC3339),
		Active:    p.Active,
		Processed: p.Processed,
		Status:    string(p.Status(h.now())),
	}
	if p.EndsAt != nil {
		ends := p.EndsAt.Format(time.RFC3339)
		response.EndsAt = &ends
	}
	return response
}
