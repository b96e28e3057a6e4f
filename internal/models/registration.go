package models

import "time"

// RegistrationStatus is the approval state of a registration. Once a
// registration is approved or rejected it never moves back.
type RegistrationStatus string

const (
	StatusPending         RegistrationStatus = "pending"
	StatusWaitlistPending RegistrationStatus = "waitlist_pending"
	StatusApproved        RegistrationStatus = "approved"
	StatusRejected        RegistrationStatus = "rejected"
)

// Decided reports whether the status is terminal.
func (s RegistrationStatus) Decided() bool {
	return s == StatusApproved || s == StatusRejected
}

// AttendanceStatus is the check-in state of a registration.
type AttendanceStatus string

const (
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendancePresent AttendanceStatus = "present"
)

// Registration is a student's request to attend an event, carrying the
// approval and attendance lifecycle. The row in the database is the single
// authority for all state transitions.
type Registration struct {
	ID               int64              `json:"id"`
	EventID          int64              `json:"event_id"`
	StudentID        int64              `json:"student_id"`
	StudentName      string             `json:"student_name"`
	StudentEmail     string             `json:"student_email"`
	Status           RegistrationStatus `json:"status"`
	RegisteredOn     time.Time          `json:"registered_on"`
	DecidedAt        *time.Time         `json:"decided_at,omitempty"`
	RejectionReason  string             `json:"rejection_reason,omitempty"`
	QRToken          *string            `json:"qr_token,omitempty"`
	AttendanceStatus AttendanceStatus   `json:"attendance_status"`
	AttendanceTime   *time.Time         `json:"attendance_time,omitempty"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// RegistrationStats are per-event registration counters.
type RegistrationStats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Attended int `json:"attended"`
}
