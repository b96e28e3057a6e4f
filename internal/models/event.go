package models

import "time"

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPublished EventStatus = "published"
	EventStatusCompleted EventStatus = "completed"
	EventStatusCancelled EventStatus = "cancelled"
)

// Event represents a college event that students register for.
type Event struct {
	ID                   int64       `json:"id"`
	Title                string      `json:"title"`
	Description          string      `json:"description"`
	Venue                string      `json:"venue"`
	Capacity             int         `json:"capacity"`
	RegistrationDeadline time.Time   `json:"registration_deadline"`
	StartsAt             time.Time   `json:"starts_at"`
	EndsAt               *time.Time  `json:"ends_at,omitempty"`
	Status               EventStatus `json:"status"`
	CreatedBy            int64       `json:"created_by"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

// AcceptsRegistrations reports whether signups are currently open.
func (e *Event) AcceptsRegistrations(now time.Time) bool {
	return e.Status == EventStatusPublished && now.Before(e.RegistrationDeadline)
}
