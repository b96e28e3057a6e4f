package events

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/campus-events/backend/internal/middleware"
	"github.com/campus-events/backend/internal/models"
	"github.com/campus-events/backend/pkg/response"
)

// CreateRequest is the body for POST /events.
type CreateRequest struct {
	Title                string  `json:"title" binding:"required"`
	Description          string  `json:"description"`
	Venue                string  `json:"venue"`
	Capacity             int     `json:"capacity" binding:"min=0"`
	RegistrationDeadline string  `json:"registration_deadline" binding:"required"`
	StartsAt             string  `json:"starts_at" binding:"required"`
	EndsAt               *string `json:"ends_at"`
	Status               string  `json:"status"`
}

// UpdateRequest is the body for PATCH /events/:id.
type UpdateRequest struct {
	Title                string  `json:"title" binding:"required"`
	Description          string  `json:"description"`
	Venue                string  `json:"venue"`
	Capacity             int     `json:"capacity" binding:"min=0"`
	RegistrationDeadline *string `json:"registration_deadline"`
	StartsAt             *string `json:"starts_at"`
	EndsAt               *string `json:"ends_at"`
	Status               string  `json:"status" binding:"required"`
}

// Handler handles event HTTP endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates an events handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// ParseID parses a path parameter as an int64 entity ID.
func ParseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func parseStatus(s string) (models.EventStatus, bool) {
	switch models.EventStatus(s) {
	case models.EventStatusDraft, models.EventStatusPublished, models.EventStatusCompleted, models.EventStatusCancelled:
		return models.EventStatus(s), true
	}
	return "", false
}

// Create handles POST /events (admin only).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	deadline, err := parseTime(req.RegistrationDeadline)
	if err != nil {
		response.BadRequest(c, "invalid registration_deadline")
		return
	}
	startsAt, err := parseTime(req.StartsAt)
	if err != nil {
		response.BadRequest(c, "invalid starts_at")
		return
	}
	var endsAt *time.Time
	if req.EndsAt != nil {
		t, err := parseTime(*req.EndsAt)
		if err != nil {
			response.BadRequest(c, "invalid ends_at")
			return
		}
		endsAt = &t
	}
	status := models.EventStatusDraft
	if req.Status != "" {
		s, ok := parseStatus(req.Status)
		if !ok {
			response.BadRequest(c, "invalid status")
			return
		}
		status = s
	}

	userID := c.MustGet(middleware.ContextUserID).(int64)
	e := &models.Event{
		Title:                req.Title,
		Description:          req.Description,
		Venue:                req.Venue,
		Capacity:             req.Capacity,
		RegistrationDeadline: deadline,
		StartsAt:             startsAt,
		EndsAt:               endsAt,
		Status:               status,
		CreatedBy:            userID,
	}
	if err := h.repo.Create(c.Request.Context(), e); err != nil {
		h.logger.Error("create event failed", zap.Error(err))
		response.Internal(c, "failed to create event")
		return
	}
	response.Created(c, e)
}

// GetByID handles GET /events/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, ok := ParseID(c, "id")
	if !ok {
		response.BadRequest(c, "invalid event id")
		return
	}
	e, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "event not found")
			return
		}
		h.logger.Error("get event failed", zap.Error(err), zap.Int64("event_id", id))
		response.Internal(c, "failed to load event")
		return
	}
	response.OK(c, e)
}

// List handles GET /events.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list events failed", zap.Error(err))
		response.Internal(c, "failed to list events")
		return
	}
	response.OK(c, list)
}

// Update handles PATCH /events/:id (admin only).
func (h *Handler) Update(c *gin.Context) {
	id, ok := ParseID(c, "id")
	if !ok {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	status, ok := parseStatus(req.Status)
	if !ok {
		response.BadRequest(c, "invalid status")
		return
	}

	var deadline, startsAt, endsAt *time.Time
	for _, f := range []struct {
		raw  *string
		dst  **time.Time
		name string
	}{
		{req.RegistrationDeadline, &deadline, "registration_deadline"},
		{req.StartsAt, &startsAt, "starts_at"},
		{req.EndsAt, &endsAt, "ends_at"},
	} {
		if f.raw == nil {
			continue
		}
		t, err := parseTime(*f.raw)
		if err != nil {
			response.BadRequest(c, "invalid "+f.name)
			return
		}
		*f.dst = &t
	}

	if err := h.repo.Update(c.Request.Context(), id, req.Title, req.Description, req.Venue, req.Capacity, deadline, startsAt, endsAt, status); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "event not found")
			return
		}
		h.logger.Error("update event failed", zap.Error(err), zap.Int64("event_id", id))
		response.Internal(c, "failed to update event")
		return
	}
	e, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load event")
		return
	}
	response.OK(c, e)
}

// Delete handles DELETE /events/:id (admin only).
func (h *Handler) Delete(c *gin.Context) {
	id, ok := ParseID(c, "id")
	if !ok {
		response.BadRequest(c, "invalid event id")
		return
	}
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "event not found")
			return
		}
		h.logger.Error("delete event failed", zap.Error(err), zap.Int64("event_id", id))
		response.Internal(c, "failed to delete event")
		return
	}
	response.NoContent(c)
}
