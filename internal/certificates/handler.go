package certificates

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/campus-events/backend/internal/events"
	"github.com/campus-events/backend/internal/registrations"
	"github.com/campus-events/backend/pkg/response"
)

// Handler handles certificate HTTP endpoints.
type Handler struct {
	issuer *Issuer
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a certificates handler.
func NewHandler(issuer *Issuer, repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{issuer: issuer, repo: repo, logger: logger}
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Generate handles POST /registrations/:id/certificate (staff).
func (h *Handler) Generate(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		response.BadRequest(c, "invalid registration id")
		return
	}
	cert, err := h.issuer.Generate(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, registrations.ErrNotFound):
			response.NotFound(c, "registration not found")
		case errors.Is(err, ErrNotEligible):
			response.Conflict(c, "registration is not approved")
		default:
			h.logger.Error("generate certificate failed", zap.Error(err), zap.Int64("registration_id", id))
			response.Internal(c, "failed to generate certificate")
		}
		return
	}
	response.OK(c, cert)
}

// BulkGenerate handles POST /events/:id/certificates/bulk (staff).
func (h *Handler) BulkGenerate(c *gin.Context) {
	eventID, ok := paramID(c)
	if !ok {
		response.BadRequest(c, "invalid event id")
		return
	}
	created, err := h.issuer.BulkGenerate(c.Request.Context(), eventID)
	if err != nil {
		if errors.Is(err, events.ErrNotFound) {
			response.NotFound(c, "event not found")
			return
		}
		h.logger.Error("bulk generate certificates failed", zap.Error(err), zap.Int64("event_id", eventID))
		response.Internal(c, "failed to generate certificates")
		return
	}
	response.OK(c, gin.H{"created": created})
}

// ListByEvent handles GET /events/:id/certificates (staff).
func (h *Handler) ListByEvent(c *gin.Context) {
	eventID, ok := paramID(c)
	if !ok {
		response.BadRequest(c, "invalid event id")
		return
	}
	list, err := h.repo.ListByEvent(c.Request.Context(), eventID)
	if err != nil {
		h.logger.Error("list certificates failed", zap.Error(err), zap.Int64("event_id", eventID))
		response.Internal(c, "failed to list certificates")
		return
	}
	response.OK(c, list)
}
