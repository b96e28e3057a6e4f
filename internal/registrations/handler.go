package registrations

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/campus-events/backend/internal/events"
	"github.com/campus-events/backend/internal/models"
	"github.com/campus-events/backend/pkg/response"
)

// SignupRequest is the body for POST /events/:id/register.
type SignupRequest struct {
	StudentID    int64  `json:"student_id" binding:"required"`
	StudentName  string `json:"student_name" binding:"required"`
	StudentEmail string `json:"student_email" binding:"required,email"`
}

// RejectRequest is the body for POST /registrations/:id/reject.
type RejectRequest struct {
	Reason string `json:"reason"` // empty allowed
}

// Handler handles registration HTTP endpoints.
type Handler struct {
	repo     *Repository
	workflow *Workflow
	events   *events.Repository
	logger   *zap.Logger
}

// NewHandler creates a registrations handler.
func NewHandler(repo *Repository, workflow *Workflow, eventRepo *events.Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, workflow: workflow, events: eventRepo, logger: logger}
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Signup handles POST /events/:id/register (public). Registrations land in
// pending, or waitlist_pending once non-rejected signups reach capacity.
func (h *Handler) Signup(c *gin.Context) {
	eventID, ok := paramID(c)
	if !ok {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	ev, err := h.events.GetByID(c.Request.Context(), eventID)
	if err != nil {
		if errors.Is(err, events.ErrNotFound) {
			response.NotFound(c, "event not found")
			return
		}
		h.logger.Error("event lookup failed", zap.Error(err), zap.Int64("event_id", eventID))
		response.Internal(c, "failed to register")
		return
	}
	if !ev.AcceptsRegistrations(time.Now()) {
		response.Conflict(c, "registrations are closed for this event")
		return
	}

	status := models.StatusPending
	if ev.Capacity > 0 {
		active, err := h.repo.CountActive(c.Request.Context(), eventID)
		if err != nil {
			h.logger.Error("count registrations failed", zap.Error(err), zap.Int64("event_id", eventID))
			response.Internal(c, "failed to register")
			return
		}
		if active >= ev.Capacity {
			status = models.StatusWaitlistPending
		}
	}

	reg := &models.Registration{
		EventID:      eventID,
		StudentID:    req.StudentID,
		StudentName:  req.StudentName,
		StudentEmail: req.StudentEmail,
		Status:       status,
	}
	if err := h.repo.Create(c.Request.Context(), reg); err != nil {
		if errors.Is(err, ErrDuplicate) {
			response.Conflict(c, "student already registered for this event")
			return
		}
		h.logger.Error("create registration failed", zap.Error(err), zap.Int64("event_id", eventID))
		response.Internal(c, "failed to register")
		return
	}
	response.Created(c, reg)
}

// GetByID handles GET /registrations/:id (staff).
func (h *Handler) GetByID(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		response.BadRequest(c, "invalid registration id")
		return
	}
	reg, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "registration not found")
			return
		}
		h.logger.Error("get registration failed", zap.Error(err), zap.Int64("registration_id", id))
		response.Internal(c, "failed to load registration")
		return
	}
	response.OK(c, reg)
}

// ListByEvent handles GET /events/:id/registrations (staff).
func (h *Handler) ListByEvent(c *gin.Context) {
	eventID, ok := paramID(c)
	if !ok {
		response.BadRequest(c, "invalid event id")
		return
	}
	list, err := h.repo.ListByEvent(c.Request.Context(), eventID)
	if err != nil {
		h.logger.Error("list registrations failed", zap.Error(err), zap.Int64("event_id", eventID))
		response.Internal(c, "failed to list registrations")
		return
	}
	response.OK(c, list)
}

// Stats handles GET /events/:id/stats (staff).
func (h *Handler) Stats(c *gin.Context) {
	eventID, ok := paramID(c)
	if !ok {
		response.BadRequest(c, "invalid event id")
		return
	}
	stats, err := h.repo.Stats(c.Request.Context(), eventID)
	if err != nil {
		h.logger.Error("registration stats failed", zap.Error(err), zap.Int64("event_id", eventID))
		response.Internal(c, "failed to load stats")
		return
	}
	response.OK(c, stats)
}

// Approve handles POST /registrations/:id/approve (staff). A repeated or
// racing decision yields 409; callers that treat "already done" as success
// can key off that status.
func (h *Handler) Approve(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		response.BadRequest(c, "invalid registration id")
		return
	}
	reg, err := h.workflow.Approve(c.Request.Context(), id)
	if err != nil {
		h.decisionError(c, err, id, "approve")
		return
	}
	response.OK(c, reg)
}

// Reject handles POST /registrations/:id/reject (staff).
func (h *Handler) Reject(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		response.BadRequest(c, "invalid registration id")
		return
	}
	var req RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	reg, err := h.workflow.Reject(c.Request.Context(), id, req.Reason)
	if err != nil {
		h.decisionError(c, err, id, "reject")
		return
	}
	response.OK(c, reg)
}

func (h *Handler) decisionError(c *gin.Context, err error, id int64, op string) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "registration not found")
	case errors.Is(err, ErrAlreadyDecided):
		response.Conflict(c, "registration already decided")
	default:
		h.logger.Error("decision failed", zap.String("op", op), zap.Error(err), zap.Int64("registration_id", id))
		response.Internal(c, "failed to "+op+" registration")
	}
}
