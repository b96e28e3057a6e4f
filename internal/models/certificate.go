package models

import "time"

// CertificateStatus is the issuance state of a certificate.
type CertificateStatus string

const (
	CertificatePending CertificateStatus = "pending"
	CertificateIssued  CertificateStatus = "issued"
)

// Certificate is a per-student, per-event artifact produced after the event.
// At most one certificate exists for an (event, student) pair.
type Certificate struct {
	ID              int64             `json:"id"`
	EventID         int64             `json:"event_id"`
	StudentID       int64             `json:"student_id"`
	CertificateCode string            `json:"certificate_code"`
	Status          CertificateStatus `json:"status"`
	IssuedDate      *time.Time        `json:"issued_date,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}
