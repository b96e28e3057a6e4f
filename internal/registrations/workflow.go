package registrations

import (
	"context"

	"go.uber.org/zap"

	"github.com/campus-events/backend/internal/models"
	"github.com/campus-events/backend/internal/notify"
)

// Store is the registration persistence the workflow drives. Implemented by
// Repository; narrowed to an interface so the decision race is testable
// against an in-memory store.
type Store interface {
	GetByID(ctx context.Context, id int64) (*models.Registration, error)
	Decide(ctx context.Context, id int64, to models.RegistrationStatus, reason string) (*models.Registration, error)
}

// CredentialIssuer issues the check-in credential after approval and returns
// the token stored on the registration row. Implemented by qrcode.Issuer.
type CredentialIssuer interface {
	IssueToken(ctx context.Context, reg *models.Registration) (string, error)
}

// EventReader resolves event details for notifications.
// Implemented by events.Repository.
type EventReader interface {
	GetByID(ctx context.Context, id int64) (*models.Event, error)
}

// Workflow drives the one-way approval lifecycle. The store's conditional
// update is the only arbiter between racing decisions; QR issuance and
// notifications run strictly after the transition commits and never fail it.
type Workflow struct {
	store    Store
	issuer   CredentialIssuer
	events   EventReader
	notifier notify.Dispatcher
	logger   *zap.Logger
}

// NewWorkflow creates the approval workflow.
func NewWorkflow(store Store, issuer CredentialIssuer, events EventReader, notifier notify.Dispatcher, logger *zap.Logger) *Workflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workflow{store: store, issuer: issuer, events: events, notifier: notifier, logger: logger}
}

// Approve transitions a pending or waitlisted registration to approved, then
// issues the QR credential (best-effort) and dispatches a notification.
// Returns ErrNotFound or ErrAlreadyDecided when the transition cannot happen.
func (w *Workflow) Approve(ctx context.Context, id int64) (*models.Registration, error) {
	reg, err := w.store.Decide(ctx, id, models.StatusApproved, "")
	if err != nil {
		return nil, err
	}

	if token, issueErr := w.issuer.IssueToken(ctx, reg); issueErr != nil {
		// Approval stands; the token stays unset until a later issuance succeeds.
		w.logger.Warn("qr issuance after approval failed", zap.Error(issueErr), zap.Int64("registration_id", reg.ID))
	} else {
		reg.QRToken = &token
	}

	w.dispatch(ctx, notify.KindRegistrationApproved, reg, "")
	return reg, nil
}

// Reject transitions a pending or waitlisted registration to rejected with an
// optional reason. Errors as Approve.
func (w *Workflow) Reject(ctx context.Context, id int64, reason string) (*models.Registration, error) {
	reg, err := w.store.Decide(ctx, id, models.StatusRejected, reason)
	if err != nil {
		return nil, err
	}
	w.dispatch(ctx, notify.KindRegistrationRejected, reg, reason)
	return reg, nil
}

func (w *Workflow) dispatch(ctx context.Context, kind notify.Kind, reg *models.Registration, reason string) {
	var title string
	if ev, err := w.events.GetByID(ctx, reg.EventID); err == nil {
		title = ev.Title
	} else {
		w.logger.Warn("event lookup for notification failed", zap.Error(err), zap.Int64("event_id", reg.EventID))
	}
	w.notifier.Dispatch(ctx, notify.Message{
		Kind:           kind,
		EventID:        reg.EventID,
		EventTitle:     title,
		RegistrationID: reg.ID,
		RecipientEmail: reg.StudentEmail,
		RecipientName:  reg.StudentName,
		Reason:         reason,
	})
}
