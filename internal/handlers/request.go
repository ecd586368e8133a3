package handlers

import (
	"errors"
	"time"

	"github.com/dimitrije/cohort-api/internal/middleware"
	"github.com/dimitrije/cohort-api/internal/models"
	"github.com/dimitrije/cohort-api/internal/services"
	"github.com/dimitrije/cohort-api/pkg/dto"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
	"go.uber.org/zap"
)

type RequestHandler struct {
	requestService RequestServiceInterface
	logger         *zap.Logger
}

func NewRequestHandler(requestService RequestServiceInterface, logger *zap.Logger) *RequestHandler {
	return &RequestHandler{
		requestService: requestService,
		logger:         logger.Named("requests"),
	}
}

func (h *RequestHandler) Create(c *drift.Context) {
	actor, ok := middleware.GetCurrentUser(c)
	if !ok {
		c.Unauthorized("not authenticated")
		return
	}

	var req dto.CreateRequestRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}
	if req.Kind == "" {
		c.BadRequest("kind is required")
		return
	}
	if req.TeamID == uuid.Nil {
		c.BadRequest("team_id is required")
		return
	}

	r, err := h.requestService.Create(c.Request.Context(), actor, services.CreateRequestInput{
		Kind:           models.RequestKind(req.Kind),
		TeamID:         req.TeamID,
		ThemeID:        req.ThemeID,
		CounterpartyID: req.CounterpartyID,
		Message:        req.Message,
	})
	if err != nil {
		respondError(c, h.logger, err, "create request")
		return
	}

	_ = c.JSON(201, toRequestResponse(r))
}

// List returns pending requests. role=outgoing lists the caller's own;
// anything else lists those awaiting the caller's answer.
func (h *RequestHandler) List(c *drift.Context) {
	actor, ok := middleware.GetCurrentUser(c)
	if !ok {
		c.Unauthorized("not authenticated")
		return
	}

	var incoming bool
	switch c.QueryParam("role") {
	case "", "incoming":
		incoming = true
	case "outgoing":
	default:
		c.BadRequest("role must be incoming or outgoing")
		return
	}

	list, err := h.requestService.ListPending(c.Request.Context(), actor, incoming)
	if err != nil {
		respondError(c, h.logger, err, "list requests")
		return
	}

	response := make([]dto.RequestResponse, 0, len(list))
	for i := range list {
		response = append(response, toRequestResponse(&list[i]))
	}
	_ = c.JSON(200, response)
}

func (h *RequestHandler) Get(c *drift.Context) {
	actor, ok := middleware.GetCurrentUser(c)
	if !ok {
		c.Unauthorized("not authenticated")
		return
	}

	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.BadRequest("invalid request id")
		return
	}

	r, err := h.requestService.Get(c.Request.Context(), actor, requestID)
	if err != nil {
		respondError(c, h.logger, err, "get request")
		return
	}

	_ = c.JSON(200, toRequestResponse(r))
}

// Accept answers 409 with the expired request when capacity ran out
// between creation and acceptance.
func (h *RequestHandler) Accept(c *drift.Context) {
	actor, requestID, ok := h.target(c)
	if !ok {
		return
	}

	r, err := h.requestService.Accept(c.Request.Context(), actor, requestID)
	if errors.Is(err, services.ErrCapacityExceeded) && r != nil {
		_ = c.JSON(409, map[string]any{
			"error":   clientMessage(err, services.ErrStateConflict),
			"request": toRequestResponse(r),
		})
		return
	}
	if err != nil {
		respondError(c, h.logger, err, "accept request")
		return
	}

	_ = c.JSON(200, toRequestResponse(r))
}

func (h *RequestHandler) Decline(c *drift.Context) {
	actor, requestID, ok := h.target(c)
	if !ok {
		return
	}

	r, err := h.requestService.Decline(c.Request.Context(), actor, requestID)
	if err != nil {
		respondError(c, h.logger, err, "decline request")
		return
	}

	_ = c.JSON(200, toRequestResponse(r))
}

func (h *RequestHandler) Cancel(c *drift.Context) {
	actor, requestID, ok := h.target(c)
	if !ok {
		return
	}

	r, err := h.requestService.Cancel(c.Request.Context(), actor, requestID)
	if err != nil {
		respondError(c, h.logger, err, "cancel request")
		return
	}

	_ = c.JSON(200, toRequestResponse(r))
}

func (h *RequestHandler) target(c *drift.Context) (models.CurrentUser, uuid.UUID, bool) {
	actor, ok := middleware.GetCurrentUser(c)
	if !ok {
		c.Unauthorized("not authenticated")
		return actor, uuid.Nil, false
	}

	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.BadRequest("invalid request id")
		return actor, uuid.Nil, false
	}
	return actor, requestID, true
}

func toRequestResponse(r *models.Request) dto.RequestResponse {
	response := dto.RequestResponse{
		ID:             r.ID,
		Kind:           string(r.Kind),
		TeamID:         r.TeamID,
		ThemeID:        r.ThemeID,
		InitiatorID:    r.InitiatorID,
		CounterpartyID: r.CounterpartyID,
		Status:         string(r.Status),
		Message:        r.Message,
		CreatedAt:      r.CreatedAt.Format(time.RFC3339),
	}
	if r.RespondedAt != nil {
		responded := r.RespondedAt.Format(time.RFC3339)
		response.RespondedAt = &responded
	}
	return response
}
