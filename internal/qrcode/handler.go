package qrcode

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/campus-events/backend/internal/registrations"
	"github.com/campus-events/backend/pkg/response"
)

// Handler serves credential downloads.
type Handler struct {
	issuer *Issuer
	logger *zap.Logger
}

// NewHandler creates a QR download handler.
func NewHandler(issuer *Issuer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{issuer: issuer, logger: logger}
}

// Download handles GET /registrations/:id/qr and responds with the PNG as an
// attachment.
func (h *Handler) Download(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid registration id")
		return
	}

	reg, cred, err := h.issuer.GetOrIssue(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, registrations.ErrNotFound):
			response.NotFound(c, "registration not found")
		case errors.Is(err, ErrNotEligible):
			response.Conflict(c, "registration is not approved")
		case errors.Is(err, ErrRenderFailed):
			h.logger.Error("qr render failed", zap.Error(err), zap.Int64("registration_id", id))
			response.ServiceUnavailable(c, "qr code temporarily unavailable, retry later")
		default:
			h.logger.Error("qr issuance failed", zap.Error(err), zap.Int64("registration_id", id))
			response.Internal(c, "failed to issue qr code")
		}
		return
	}

	filename := fmt.Sprintf("event-%d-registration-%d.png", reg.EventID, reg.ID)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(200, "image/png", cred.Image)
}
