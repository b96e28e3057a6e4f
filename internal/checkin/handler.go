package checkin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/campus-events/backend/internal/models"
	"github.com/campus-events/backend/internal/notify"
	"github.com/campus-events/backend/pkg/response"
)

// ScanRequest is the body for POST /checkin/scan. Payload carries the raw
// decoded QR content, either the JSON object or the legacy key:value text.
type ScanRequest struct {
	Payload string `json:"payload" binding:"required"`
}

// EventReader resolves event details for the confirmation notification.
type EventReader interface {
	GetByID(ctx context.Context, id int64) (*models.Event, error)
}

// Handler handles check-in HTTP endpoints.
type Handler struct {
	scanner  *Scanner
	events   EventReader
	notifier notify.Dispatcher
	logger   *zap.Logger
}

// NewHandler creates a check-in handler.
func NewHandler(scanner *Scanner, events EventReader, notifier notify.Dispatcher, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{scanner: scanner, events: events, notifier: notifier, logger: logger}
}

// Scan handles POST /checkin/scan (staff). Expected conditions map to
// distinct statuses so gate software can tell "already done" from "bad code":
// marked=200, already_marked=200, invalid=400, not_found=404, not_eligible=409.
func (h *Handler) Scan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	res, err := h.scanner.Scan(c.Request.Context(), req.Payload)
	if err != nil {
		h.logger.Error("scan failed", zap.Error(err))
		response.Internal(c, "failed to process scan")
		return
	}

	switch res.Outcome {
	case OutcomeInvalid:
		c.JSON(http.StatusBadRequest, response.Body{Success: false, Data: res, Error: "unrecognized credential payload"})
	case OutcomeNotFound:
		c.JSON(http.StatusNotFound, response.Body{Success: false, Data: res, Error: "registration not found"})
	case OutcomeNotEligible:
		c.JSON(http.StatusConflict, response.Body{Success: false, Data: res, Error: "registration is not approved"})
	default:
		if res.Outcome == OutcomeMarked {
			h.notifyMarked(c, res.Registration)
		}
		response.OK(c, res)
	}
}

func (h *Handler) notifyMarked(c *gin.Context, reg *models.Registration) {
	var title string
	if ev, err := h.events.GetByID(c.Request.Context(), reg.EventID); err == nil {
		title = ev.Title
	}
	h.notifier.Dispatch(c.Request.Context(), notify.Message{
		Kind:           notify.KindCheckInConfirmed,
		EventID:        reg.EventID,
		EventTitle:     title,
		RegistrationID: reg.ID,
		RecipientEmail: reg.StudentEmail,
		RecipientName:  reg.StudentName,
	})
}
