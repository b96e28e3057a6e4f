package certificates

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campus-events/backend/internal/models"
)

// ErrNotFound is returned when no certificate matches the lookup.
var ErrNotFound = errors.New("certificate not found")

const certificateColumns = `id, event_id, student_id, certificate_code, status, issued_date, created_at`

// Repository handles certificate persistence. Uniqueness per (event, student)
// and per code is enforced by the table constraints; writes go through
// conflict-aware inserts so reruns never duplicate.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a certificates repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateIfAbsent inserts the certificate unless one already exists for the
// (event, student) pair. created reports whether this call inserted the row;
// when false, cert is populated with the existing certificate.
func (r *Repository) CreateIfAbsent(ctx context.Context, cert *models.Certificate) (created bool, err error) {
	const q = `INSERT INTO certificates (event_id, student_id, certificate_code, status, issued_date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id, student_id) DO NOTHING
		RETURNING id, created_at`
	err = r.pool.QueryRow(ctx, q, cert.EventID, cert.StudentID, cert.CertificateCode, string(cert.Status), cert.IssuedDate).
		Scan(&cert.ID, &cert.CreatedAt)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}
	existing, err := r.GetByEventAndStudent(ctx, cert.EventID, cert.StudentID)
	if err != nil {
		return false, err
	}
	*cert = *existing
	return false, nil
}

// GetByEventAndStudent returns the certificate for an (event, student) pair.
func (r *Repository) GetByEventAndStudent(ctx context.Context, eventID, studentID int64) (*models.Certificate, error) {
	const q = `SELECT ` + certificateColumns + ` FROM certificates WHERE event_id = $1 AND student_id = $2`
	var cert models.Certificate
	err := r.pool.QueryRow(ctx, q, eventID, studentID).
		Scan(&cert.ID, &cert.EventID, &cert.StudentID, &cert.CertificateCode, &cert.Status, &cert.IssuedDate, &cert.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

// ListByEvent returns all certificates for an event.
func (r *Repository) ListByEvent(ctx context.Context, eventID int64) ([]models.Certificate, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+certificateColumns+` FROM certificates WHERE event_id = $1 ORDER BY created_at DESC`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Certificate
	for rows.Next() {
		var cert models.Certificate
		if err := rows.Scan(&cert.ID, &cert.EventID, &cert.StudentID, &cert.CertificateCode, &cert.Status, &cert.IssuedDate, &cert.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, cert)
	}
	return list, rows.Err()
}

// BulkCreatePending inserts a pending certificate for every approved
// registration of the event that has none yet, as one set-difference
// statement. Rerunning is a no-op for already-certified students, and a crash
// mid-run leaves no partial duplicates for the retry to trip over. The
// conflict clause absorbs a single issuance committing between the scan and
// the insert instead of failing the whole batch.
func (r *Repository) BulkCreatePending(ctx context.Context, eventID int64) (int64, error) {
	const q = `INSERT INTO certificates (event_id, student_id, certificate_code, status)
		SELECT r.event_id, r.student_id,
			'CERT-' || r.event_id || '-' || UPPER(SUBSTR(REPLACE(gen_random_uuid()::text, '-', ''), 1, 10)),
			'pending'
		FROM registrations r
		WHERE r.event_id = $1 AND r.status = 'approved'
			AND NOT EXISTS (
				SELECT 1 FROM certificates c
				WHERE c.event_id = r.event_id AND c.student_id = r.student_id
			)
		ON CONFLICT (event_id, student_id) DO NOTHING`
	tag, err := r.pool.Exec(ctx, q, eventID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
