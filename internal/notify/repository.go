package notify

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campus-events/backend/internal/models"
)

// Repository handles notification_logs persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a notification logs repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateQueued inserts a queued log row and returns its ID.
func (r *Repository) CreateQueued(ctx context.Context, msg Message, subject string) (int64, error) {
	const q = `INSERT INTO notification_logs (event_id, registration_id, kind, recipient_email, subject, status)
		VALUES (NULLIF($1, 0), NULLIF($2, 0), $3, $4, $5, 'queued')
		RETURNING id`
	var id int64
	err := r.pool.QueryRow(ctx, q, msg.EventID, msg.RegistrationID, string(msg.Kind), msg.RecipientEmail, subject).Scan(&id)
	return id, err
}

// MarkSent records successful delivery.
func (r *Repository) MarkSent(ctx context.Context, id int64) error {
	const q = `UPDATE notification_logs SET status = 'sent', sent_at = NOW(), error_message = NULL WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

// MarkFailed records a delivery failure.
func (r *Repository) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	const q = `UPDATE notification_logs SET status = 'failed', error_message = $2 WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, errMsg)
	return err
}

// ListByEvent returns notification logs for an event, newest first.
func (r *Repository) ListByEvent(ctx context.Context, eventID int64) ([]models.NotificationLog, error) {
	const q = `SELECT id, event_id, registration_id, kind, recipient_email, COALESCE(subject, ''),
		status, sent_at, COALESCE(error_message, ''), created_at
		FROM notification_logs WHERE event_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.NotificationLog
	for rows.Next() {
		var nl models.NotificationLog
		if err := rows.Scan(&nl.ID, &nl.EventID, &nl.RegistrationID, &nl.Kind, &nl.RecipientEmail, &nl.Subject,
			&nl.Status, &nl.SentAt, &nl.ErrorMessage, &nl.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, nl)
	}
	return list, rows.Err()
}
