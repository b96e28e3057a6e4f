package checkin

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campus-events/backend/internal/models"
	"github.com/campus-events/backend/internal/registrations"
)

func isNotFound(err error) bool {
	return errors.Is(err, registrations.ErrNotFound)
}

// Outcome classifies a scan attempt.
type Outcome string

const (
	// OutcomeMarked means this scan performed the attendance write.
	OutcomeMarked Outcome = "marked"
	// OutcomeAlreadyMarked means attendance was recorded earlier; no write
	// happened. Safe to receive any number of times per credential.
	OutcomeAlreadyMarked Outcome = "already_marked"
	// OutcomeInvalid means the payload matched neither supported shape.
	OutcomeInvalid Outcome = "invalid"
	// OutcomeNotFound means the payload referenced no known registration.
	OutcomeNotFound Outcome = "not_found"
	// OutcomeNotEligible means the registration is not approved. Attendance
	// is only recorded for approved registrations; approval is one-way, so
	// this check cannot race with a concurrent un-approval.
	OutcomeNotEligible Outcome = "not_eligible"
)

// Result is the outcome of one scan.
type Result struct {
	Outcome        Outcome              `json:"outcome"`
	Registration   *models.Registration `json:"registration,omitempty"`
	AttendanceTime *time.Time           `json:"attendance_time,omitempty"`
}

// Store is the registration persistence the scanner needs. Implemented by
// registrations.Repository.
type Store interface {
	GetByID(ctx context.Context, id int64) (*models.Registration, error)
	MarkAttendance(ctx context.Context, id int64) (reg *models.Registration, marked bool, err error)
}

// Scanner decodes a scanned credential payload and marks attendance exactly
// once. The store's conditional update arbitrates between concurrent gates.
type Scanner struct {
	store  Store
	logger *zap.Logger
}

// NewScanner creates a check-in scanner.
func NewScanner(store Store, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{store: store, logger: logger}
}

// Scan parses the raw payload, resolves the registration and marks attendance.
// The returned error is only non-nil for storage failures; every expected
// condition is reported through Result.Outcome.
func (s *Scanner) Scan(ctx context.Context, raw string) (*Result, error) {
	id, ok := ParsePayload(raw)
	if !ok {
		return &Result{Outcome: OutcomeInvalid}, nil
	}

	reg, err := s.store.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return &Result{Outcome: OutcomeNotFound}, nil
		}
		return nil, err
	}
	if reg.Status != models.StatusApproved {
		return &Result{Outcome: OutcomeNotEligible, Registration: reg}, nil
	}
	if reg.AttendanceStatus == models.AttendancePresent {
		return &Result{Outcome: OutcomeAlreadyMarked, Registration: reg, AttendanceTime: reg.AttendanceTime}, nil
	}

	reg, marked, err := s.store.MarkAttendance(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return &Result{Outcome: OutcomeNotFound}, nil
		}
		return nil, err
	}
	outcome := OutcomeAlreadyMarked
	if marked {
		outcome = OutcomeMarked
		s.logger.Info("attendance marked", zap.Int64("registration_id", reg.ID), zap.Int64("event_id", reg.EventID))
	}
	return &Result{Outcome: outcome, Registration: reg, AttendanceTime: reg.AttendanceTime}, nil
}

// jsonPayload is the primary structured credential shape.
type jsonPayload struct {
	RegistrationID int64 `json:"registration_id"`
	EventID        int64 `json:"event_id"`
	StudentID      int64 `json:"student_id"`
}

// ParsePayload extracts a registration ID from a scanned payload. Primary
// format is a JSON object carrying registration_id; legacy credentials encode
// "key: value" text lines with a reg or registration_id key.
func ParsePayload(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}

	if strings.HasPrefix(raw, "{") {
		var p jsonPayload
		if err := json.Unmarshal([]byte(raw), &p); err == nil && p.RegistrationID > 0 {
			return p.RegistrationID, true
		}
		return 0, false
	}

	for _, line := range strings.Split(raw, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "reg", "registration_id", "registration":
			id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err == nil && id > 0 {
				return id, true
			}
			return 0, false
		}
	}
	return 0, false
}
