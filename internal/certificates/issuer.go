package certificates

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campus-events/backend/internal/models"
	"github.com/campus-events/backend/internal/notify"
)

// ErrNotEligible is returned when the registration is not approved.
// Certificate issuance is gated on approval for both the single and bulk
// paths.
var ErrNotEligible = errors.New("registration not approved")

// Store is the certificate persistence the issuer drives. Implemented by
// Repository.
type Store interface {
	CreateIfAbsent(ctx context.Context, cert *models.Certificate) (created bool, err error)
	BulkCreatePending(ctx context.Context, eventID int64) (int64, error)
	ListByEvent(ctx context.Context, eventID int64) ([]models.Certificate, error)
}

// RegistrationReader resolves registrations for eligibility checks.
// Implemented by registrations.Repository.
type RegistrationReader interface {
	GetByID(ctx context.Context, id int64) (*models.Registration, error)
}

// EventReader resolves events. Implemented by events.Repository.
type EventReader interface {
	GetByID(ctx context.Context, id int64) (*models.Event, error)
}

// Issuer produces certificates gated on registration outcome, without
// duplication: at most one certificate ever exists per (event, student) pair.
type Issuer struct {
	store    Store
	regs     RegistrationReader
	events   EventReader
	notifier notify.Dispatcher
	logger   *zap.Logger
}

// NewIssuer creates a certificate issuer.
func NewIssuer(store Store, regs RegistrationReader, events EventReader, notifier notify.Dispatcher, logger *zap.Logger) *Issuer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Issuer{store: store, regs: regs, events: events, notifier: notifier, logger: logger}
}

// Generate issues a certificate for one registration. Propagates the
// registration store's not-found error when the registration is absent and
// ErrNotEligible when it is not approved. When a certificate already exists
// for the (event, student) pair the existing one is returned unchanged.
func (i *Issuer) Generate(ctx context.Context, registrationID int64) (*models.Certificate, error) {
	reg, err := i.regs.GetByID(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if reg.Status != models.StatusApproved {
		return nil, ErrNotEligible
	}

	code, err := GenerateCode(reg.EventID)
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	now := time.Now()
	cert := &models.Certificate{
		EventID:         reg.EventID,
		StudentID:       reg.StudentID,
		CertificateCode: code,
		Status:          models.CertificateIssued,
		IssuedDate:      &now,
	}
	created, err := i.store.CreateIfAbsent(ctx, cert)
	if err != nil {
		return nil, err
	}
	if created {
		i.notifyIssued(ctx, reg, cert)
	}
	return cert, nil
}

// BulkGenerate issues pending certificates for every approved registration of
// the event that has none yet. Returns the number of certificates created;
// rerunning returns zero without touching existing rows.
func (i *Issuer) BulkGenerate(ctx context.Context, eventID int64) (int64, error) {
	if _, err := i.events.GetByID(ctx, eventID); err != nil {
		return 0, err
	}
	created, err := i.store.BulkCreatePending(ctx, eventID)
	if err != nil {
		return 0, err
	}
	if created > 0 {
		i.logger.Info("bulk certificates created", zap.Int64("event_id", eventID), zap.Int64("created", created))
	}
	return created, nil
}

func (i *Issuer) notifyIssued(ctx context.Context, reg *models.Registration, cert *models.Certificate) {
	var title string
	if ev, err := i.events.GetByID(ctx, reg.EventID); err == nil {
		title = ev.Title
	}
	i.notifier.Dispatch(ctx, notify.Message{
		Kind:            notify.KindCertificateIssued,
		EventID:         reg.EventID,
		EventTitle:      title,
		RegistrationID:  reg.ID,
		RecipientEmail:  reg.StudentEmail,
		RecipientName:   reg.StudentName,
		CertificateCode: cert.CertificateCode,
	})
}

// GenerateCode builds a certificate code from the event ID and ten hex
// characters of crypto/rand entropy. Uniqueness is enforced by the database
// constraint on certificate_code.
func GenerateCode(eventID int64) (string, error) {
	b := make([]byte, 5)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("CERT-%d-%s", eventID, strings.ToUpper(hex.EncodeToString(b))), nil
}
