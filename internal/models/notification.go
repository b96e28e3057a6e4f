package models

import "time"

// NotificationStatus is the delivery state of a queued notification.
const (
	NotificationQueued = "queued"
	NotificationSent   = "sent"
	NotificationFailed = "failed"
)

// NotificationLog records a dispatched notification and its delivery outcome.
type NotificationLog struct {
	ID             int64      `json:"id"`
	EventID        *int64     `json:"event_id,omitempty"`
	RegistrationID *int64     `json:"registration_id,omitempty"`
	Kind           string     `json:"kind"`
	RecipientEmail string     `json:"recipient_email"`
	Subject        string     `json:"subject,omitempty"`
	Status         string     `json:"status"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
