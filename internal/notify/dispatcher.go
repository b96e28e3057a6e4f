package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campus-events/backend/pkg/queue"
)

// Kind identifies a notification trigger.
type Kind string

const (
	KindRegistrationApproved Kind = "registration_approved"
	KindRegistrationRejected Kind = "registration_rejected"
	KindCheckInConfirmed     Kind = "checkin_confirmed"
	KindCertificateIssued    Kind = "certificate_issued"
)

// Message describes one notification to a registrant.
type Message struct {
	Kind            Kind
	EventID         int64
	EventTitle      string
	RegistrationID  int64
	RecipientEmail  string
	RecipientName   string
	Reason          string // rejection reason, when applicable
	CertificateCode string // when applicable
}

// Dispatcher delivers notifications on lifecycle transitions. Implementations
// are best-effort: Dispatch never returns an error and never blocks the
// caller's transition beyond a short bounded timeout.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message)
}

// DispatchTimeout bounds the enqueue call; delivery itself happens in the worker.
const DispatchTimeout = 2 * time.Second

// QueueDispatcher records the notification and hands delivery to the redis
// job queue. Failures are logged and swallowed.
type QueueDispatcher struct {
	queue  *queue.Queue
	repo   *Repository
	logger *zap.Logger
}

// NewQueueDispatcher creates a queue-backed dispatcher.
func NewQueueDispatcher(q *queue.Queue, repo *Repository, logger *zap.Logger) *QueueDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueDispatcher{queue: q, repo: repo, logger: logger}
}

// Dispatch writes a queued notification_logs row and enqueues the delivery
// job. The surrounding state transition has already committed, so every
// failure here downgrades to a warning.
func (d *QueueDispatcher) Dispatch(ctx context.Context, msg Message) {
	// Detach from the request's cancellation but keep a hard bound, so a
	// closed client connection cannot lose the notification and a slow redis
	// cannot stall the response.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DispatchTimeout)
	defer cancel()

	subject, body := render(msg)
	logID, err := d.repo.CreateQueued(ctx, msg, subject)
	if err != nil {
		d.logger.Warn("notification log write failed",
			zap.String("kind", string(msg.Kind)), zap.Int64("registration_id", msg.RegistrationID), zap.Error(err))
	}

	payload := queue.NotificationPayload{
		LogID:          logID,
		Kind:           string(msg.Kind),
		EventID:        msg.EventID,
		RegistrationID: msg.RegistrationID,
		RecipientEmail: msg.RecipientEmail,
		RecipientName:  msg.RecipientName,
		Subject:        subject,
		BodyHTML:       body,
	}
	if err := d.queue.EnqueueNotification(ctx, payload); err != nil {
		d.logger.Warn("notification enqueue failed",
			zap.String("kind", string(msg.Kind)), zap.Int64("registration_id", msg.RegistrationID), zap.Error(err))
	}
}

func render(msg Message) (subject, body string) {
	switch msg.Kind {
	case KindRegistrationApproved:
		subject = fmt.Sprintf("Registration approved: %s", msg.EventTitle)
		body = fmt.Sprintf("<p>Hi %s,</p><p>Your registration for <b>%s</b> has been approved. Your check-in QR code is ready in the portal.</p>",
			msg.RecipientName, msg.EventTitle)
	case KindRegistrationRejected:
		subject = fmt.Sprintf("Registration update: %s", msg.EventTitle)
		reason := msg.Reason
		if reason == "" {
			reason = "not specified"
		}
		body = fmt.Sprintf("<p>Hi %s,</p><p>Your registration for <b>%s</b> was not approved. Reason: %s.</p>",
			msg.RecipientName, msg.EventTitle, reason)
	case KindCheckInConfirmed:
		subject = fmt.Sprintf("Checked in: %s", msg.EventTitle)
		body = fmt.Sprintf("<p>Hi %s,</p><p>Your attendance at <b>%s</b> has been recorded.</p>",
			msg.RecipientName, msg.EventTitle)
	case KindCertificateIssued:
		subject = fmt.Sprintf("Certificate issued: %s", msg.EventTitle)
		body = fmt.Sprintf("<p>Hi %s,</p><p>Your certificate for <b>%s</b> is ready. Certificate code: <b>%s</b>.</p>",
			msg.RecipientName, msg.EventTitle, msg.CertificateCode)
	default:
		subject = "Campus Events notification"
		body = fmt.Sprintf("<p>Hi %s,</p><p>There is an update on your registration.</p>", msg.RecipientName)
	}
	return subject, body
}
