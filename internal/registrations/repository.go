package registrations

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campus-events/backend/internal/models"
)

var (
	// ErrNotFound is returned when no registration matches the lookup.
	ErrNotFound = errors.New("registration not found")
	// ErrAlreadyDecided is returned when a decision races against (or repeats)
	// an earlier approve/reject. It is an expected outcome under concurrency,
	// not a failure.
	ErrAlreadyDecided = errors.New("registration already decided")
	// ErrDuplicate is returned when the student already registered for the event.
	ErrDuplicate = errors.New("student already registered for this event")
)

const registrationColumns = `id, event_id, student_id, student_name, student_email, status, registered_on,
	decided_at, COALESCE(rejection_reason, ''), qr_token, attendance_status, attendance_time, updated_at`

// Repository is the durable registration store. All state transitions are
// single conditional UPDATE statements so that concurrent requests race on
// the row itself rather than on application-level reads.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a registrations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanRegistration(row pgx.Row) (*models.Registration, error) {
	var reg models.Registration
	err := row.Scan(&reg.ID, &reg.EventID, &reg.StudentID, &reg.StudentName, &reg.StudentEmail,
		&reg.Status, &reg.RegisteredOn, &reg.DecidedAt, &reg.RejectionReason,
		&reg.QRToken, &reg.AttendanceStatus, &reg.AttendanceTime, &reg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Create inserts a registration in the given initial status (pending or
// waitlist_pending). A second signup for the same (event, student) pair
// returns ErrDuplicate via the unique constraint.
func (r *Repository) Create(ctx context.Context, reg *models.Registration) error {
	const q = `INSERT INTO registrations (event_id, student_id, student_name, student_email, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, registered_on, attendance_status, updated_at`
	err := r.pool.QueryRow(ctx, q, reg.EventID, reg.StudentID, reg.StudentName, reg.StudentEmail, string(reg.Status)).
		Scan(&reg.ID, &reg.RegisteredOn, &reg.AttendanceStatus, &reg.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetByID returns a registration by ID.
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Registration, error) {
	return scanRegistration(r.pool.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id))
}

// ListByEvent returns all registrations for an event, newest first.
func (r *Repository) ListByEvent(ctx context.Context, eventID int64) ([]models.Registration, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE event_id = $1 ORDER BY registered_on DESC`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Registration
	for rows.Next() {
		var reg models.Registration
		if err := rows.Scan(&reg.ID, &reg.EventID, &reg.StudentID, &reg.StudentName, &reg.StudentEmail,
			&reg.Status, &reg.RegisteredOn, &reg.DecidedAt, &reg.RejectionReason,
			&reg.QRToken, &reg.AttendanceStatus, &reg.AttendanceTime, &reg.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, reg)
	}
	return list, rows.Err()
}

// CountActive returns the number of non-rejected registrations for an event,
// used by signup to decide between pending and waitlist_pending.
func (r *Repository) CountActive(ctx context.Context, eventID int64) (int, error) {
	const q = `SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND status <> 'rejected'`
	var n int
	err := r.pool.QueryRow(ctx, q, eventID).Scan(&n)
	return n, err
}

// Stats returns per-event registration counters.
func (r *Repository) Stats(ctx context.Context, eventID int64) (*models.RegistrationStats, error) {
	const q = `SELECT COUNT(*),
		COUNT(*) FILTER (WHERE status IN ('pending', 'waitlist_pending')),
		COUNT(*) FILTER (WHERE status = 'approved'),
		COUNT(*) FILTER (WHERE status = 'rejected'),
		COUNT(*) FILTER (WHERE attendance_status = 'present')
		FROM registrations WHERE event_id = $1`
	var s models.RegistrationStats
	err := r.pool.QueryRow(ctx, q, eventID).Scan(&s.Total, &s.Pending, &s.Approved, &s.Rejected, &s.Attended)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Decide atomically transitions an undecided registration to approved or
// rejected and stamps decided_at. The WHERE guard makes concurrent decisions
// race on the row: exactly one caller wins, the rest get ErrAlreadyDecided.
func (r *Repository) Decide(ctx context.Context, id int64, to models.RegistrationStatus, reason string) (*models.Registration, error) {
	const q = `UPDATE registrations
		SET status = $2, decided_at = NOW(), rejection_reason = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'waitlist_pending')
		RETURNING ` + registrationColumns
	reg, err := scanRegistration(r.pool.QueryRow(ctx, q, id, string(to), reason))
	if !errors.Is(err, ErrNotFound) {
		return reg, err
	}
	// Guard failed: missing row and already-decided row look the same here.
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrAlreadyDecided
}

// SetQRTokenIfEmpty persists the token only when none exists yet and returns
// the authoritative token either way, so a credential is written exactly once
// per registration no matter how many issuers race.
func (r *Repository) SetQRTokenIfEmpty(ctx context.Context, id int64, token string) (string, error) {
	const q = `UPDATE registrations SET qr_token = $2, updated_at = NOW()
		WHERE id = $1 AND qr_token IS NULL
		RETURNING qr_token`
	var stored string
	err := r.pool.QueryRow(ctx, q, id, token).Scan(&stored)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}
	reg, err := r.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if reg.QRToken == nil {
		// Row exists with a null token yet the guarded write matched nothing;
		// only possible if the row vanished between statements.
		return "", ErrNotFound
	}
	return *reg.QRToken, nil
}

// MarkAttendance atomically flips attendance to present and stamps the time.
// marked reports whether this call performed the write; when false the
// returned registration carries the original attendance_time untouched.
func (r *Repository) MarkAttendance(ctx context.Context, id int64) (reg *models.Registration, marked bool, err error) {
	const q = `UPDATE registrations
		SET attendance_status = 'present', attendance_time = NOW(), updated_at = NOW()
		WHERE id = $1 AND attendance_status = 'absent'
		RETURNING ` + registrationColumns
	reg, err = scanRegistration(r.pool.QueryRow(ctx, q, id))
	if err == nil {
		return reg, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	reg, err = r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return reg, false, nil
}
