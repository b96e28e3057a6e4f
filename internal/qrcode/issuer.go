package qrcode

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	qrc "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/campus-events/backend/internal/models"
)

var (
	// ErrRenderFailed is returned when the QR image could not be encoded. The
	// caller's approval transition must treat this as non-fatal: the token stays
	// unset and a later IssueFor attempt starts clean.
	ErrRenderFailed = errors.New("qr image rendering failed")
	// ErrNotEligible is returned by GetOrIssue when the registration is not
	// approved and holds no token. Only approval mints a credential; undecided
	// and rejected rows keep qr_token null.
	ErrNotEligible = errors.New("registration not approved")
)

// Store is the registration persistence the issuer needs. Implemented by
// registrations.Repository.
type Store interface {
	GetByID(ctx context.Context, id int64) (*models.Registration, error)
	SetQRTokenIfEmpty(ctx context.Context, id int64, token string) (string, error)
}

// Credential is a check-in credential: the opaque token stored on the
// registration row plus the scannable image handed to the participant.
type Credential struct {
	Token string
	Image []byte // PNG
}

// Payload is the structure encoded into the QR image. The scanner resolves
// registration_id against the store; event and student IDs let gate staff
// cross-check without a lookup.
type Payload struct {
	RegistrationID int64 `json:"registration_id"`
	EventID        int64 `json:"event_id"`
	StudentID      int64 `json:"student_id"`
}

// Renderer encodes a payload string into a PNG image.
type Renderer func(content string, size int) ([]byte, error)

// PNGRenderer renders with skip2/go-qrcode at medium error correction.
func PNGRenderer(content string, size int) ([]byte, error) {
	return qrc.Encode(content, qrc.Medium, size)
}

// Issuer creates and retrieves check-in credentials. Issuance is
// get-or-create: a registration holds at most one token for its lifetime.
type Issuer struct {
	store     Store
	render    Renderer
	imageSize int
	logger    *zap.Logger
}

// NewIssuer creates a QR credential issuer.
func NewIssuer(store Store, render Renderer, imageSize int, logger *zap.Logger) *Issuer {
	if render == nil {
		render = PNGRenderer
	}
	if imageSize <= 0 {
		imageSize = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Issuer{store: store, render: render, imageSize: imageSize, logger: logger}
}

// IssueFor returns the registration's credential, creating the token on first
// use. The image is rendered before the token is persisted, so a rendering
// failure leaves qr_token null and the next attempt starts from scratch. The
// persisted token is written through a conditional update: when a concurrent
// issuance wins the race, the winner's token is returned unchanged.
func (i *Issuer) IssueFor(ctx context.Context, reg *models.Registration) (*Credential, error) {
	image, err := i.renderPayload(reg)
	if err != nil {
		i.logger.Warn("qr render failed", zap.Error(err), zap.Int64("registration_id", reg.ID))
		return nil, fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}

	if reg.QRToken != nil {
		return &Credential{Token: *reg.QRToken, Image: image}, nil
	}

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	stored, err := i.store.SetQRTokenIfEmpty(ctx, reg.ID, token)
	if err != nil {
		return nil, fmt.Errorf("persist token: %w", err)
	}
	return &Credential{Token: stored, Image: image}, nil
}

// IssueToken issues the credential and returns only the stored token.
func (i *Issuer) IssueToken(ctx context.Context, reg *models.Registration) (string, error) {
	cred, err := i.IssueFor(ctx, reg)
	if err != nil {
		return "", err
	}
	return cred.Token, nil
}

// GetOrIssue is the caller-facing entry point for credential display and
// download. It never invalidates a previously issued token, and it never
// mints one for a registration that is not approved: an existing token is
// served regardless of the row's current status, but a row without a token
// must be approved before a credential is created.
func (i *Issuer) GetOrIssue(ctx context.Context, registrationID int64) (*models.Registration, *Credential, error) {
	reg, err := i.store.GetByID(ctx, registrationID)
	if err != nil {
		return nil, nil, err
	}
	if reg.QRToken == nil && reg.Status != models.StatusApproved {
		return nil, nil, ErrNotEligible
	}
	cred, err := i.IssueFor(ctx, reg)
	if err != nil {
		return nil, nil, err
	}
	return reg, cred, nil
}

func (i *Issuer) renderPayload(reg *models.Registration) ([]byte, error) {
	content, err := json.Marshal(Payload{
		RegistrationID: reg.ID,
		EventID:        reg.EventID,
		StudentID:      reg.StudentID,
	})
	if err != nil {
		return nil, err
	}
	return i.render(string(content), i.imageSize)
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b)[:43], nil
}
